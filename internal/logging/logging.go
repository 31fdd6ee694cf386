// Package logging holds the small helpers shared by components that accept
// an injected *log.Logger.
package logging

import (
	"io"
	"log"
	"os"
)

// Flags matches the driver programs' log layout.
const Flags = log.LstdFlags | log.Lshortfile

// New returns a logger writing to w with the standard flags and prefix.
func New(w io.Writer, prefix string) *log.Logger {
	return log.New(w, prefix, Flags)
}

// Stderr returns a logger writing to standard error.
func Stderr(prefix string) *log.Logger {
	return New(os.Stderr, prefix)
}

// OrDiscard returns l, or a logger that drops everything when l is nil.
func OrDiscard(l *log.Logger) *log.Logger {
	if l == nil {
		return log.New(io.Discard, "", 0)
	}
	return l
}
