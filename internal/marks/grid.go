// Package marks decides which answer bubble is filled on a rectified sheet.
package marks

import (
	"fmt"
	"image"
)

// Grid is the bubble layout of a sheet in template pixel coordinates.
// Question q, option o is centered at (StartX + o*GapX, StartY + q*GapY).
type Grid struct {
	Questions int `json:"questions"`
	Options   int `json:"options"`
	StartX    int `json:"start_x"`
	StartY    int `json:"start_y"`
	GapX      int `json:"gap_x"`
	GapY      int `json:"gap_y"`
	Radius    int `json:"radius"`
}

// Validate checks that the grid describes at least one bubble.
func (g Grid) Validate() error {
	if g.Questions <= 0 {
		return fmt.Errorf("grid needs at least one question, got %d", g.Questions)
	}
	if g.Options <= 0 {
		return fmt.Errorf("grid needs at least one option, got %d", g.Options)
	}
	if g.Radius <= 0 {
		return fmt.Errorf("bubble radius must be positive, got %d", g.Radius)
	}
	if g.Options > 1 && g.GapX <= 0 {
		return fmt.Errorf("gap_x must be positive, got %d", g.GapX)
	}
	if g.Questions > 1 && g.GapY <= 0 {
		return fmt.Errorf("gap_y must be positive, got %d", g.GapY)
	}
	return nil
}

// Center returns the pixel center of bubble (question, option).
func (g Grid) Center(question, option int) image.Point {
	return image.Point{
		X: g.StartX + option*g.GapX,
		Y: g.StartY + question*g.GapY,
	}
}

// Bounds returns the rectangle covering every bubble.
func (g Grid) Bounds() image.Rectangle {
	last := g.Center(g.Questions-1, g.Options-1)
	return image.Rect(g.StartX-g.Radius, g.StartY-g.Radius, last.X+g.Radius+1, last.Y+g.Radius+1)
}

// Fits reports whether every bubble lies inside a width x height image.
func (g Grid) Fits(width, height int) bool {
	return g.Bounds().In(image.Rect(0, 0, width, height))
}
