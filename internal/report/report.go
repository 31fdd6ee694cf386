// Package report handles grading result files and console summaries.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"omr-grader/internal/marks"
	"omr-grader/internal/pipeline"
	"omr-grader/internal/scoring"
	"omr-grader/internal/version"
	"omr-grader/pkg/geometry"
)

// FormatVersion is the result file layout version.
const FormatVersion = 1

// File is a grading result written next to the debug images (result.json).
type File struct {
	Version   int       `json:"version"`
	Grader    string    `json:"grader"`
	Created   time.Time `json:"created"`
	Input     string    `json:"input,omitempty"`
	Template  string    `json:"template,omitempty"`

	Score     int     `json:"score"`
	Questions int     `json:"questions"`
	Percent   float64 `json:"percent"`

	Alignment AlignmentSummary         `json:"alignment"`
	Results   []scoring.QuestionResult `json:"results"`
	Evidence  []marks.OptionEvidence   `json:"evidence,omitempty"`
}

// AlignmentSummary records how well the photo was registered.
type AlignmentSummary struct {
	Matches   int                 `json:"matches"`
	Inliers   int                 `json:"inliers"`
	MeanError float64             `json:"mean_error_px"`
	Transform geometry.Homography `json:"transform"`
}

// New builds a result file from a pipeline outcome.
func New(input, template string, out *pipeline.Outcome) *File {
	return &File{
		Version:   FormatVersion,
		Grader:    version.Version,
		Created:   time.Now(),
		Input:     input,
		Template:  template,
		Score:     out.Report.Total,
		Questions: out.Report.Questions,
		Percent:   out.Report.Percent(),
		Alignment: AlignmentSummary{
			Matches:   out.Alignment.Matches,
			Inliers:   len(out.Alignment.Inliers),
			MeanError: out.Alignment.MeanError,
			Transform: out.Alignment.Transform,
		},
		Results:  out.Report.Results,
		Evidence: out.Evidence,
	}
}

// Load loads a result file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading result file: %w", err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &f, nil
}

// Save saves the result file to path.
func (f *File) Save(path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result file: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing result file: %w", err)
	}
	return nil
}

// WriteTable prints the per-question verdicts as a fixed-width table.
func WriteTable(w io.Writer, r *scoring.Report) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%-5s %-10s %-10s %-10s\n", "Q#", "User", "Correct", "Status")
	b.WriteString(strings.Repeat("-", 40) + "\n")
	for _, q := range r.Results {
		status := "WRONG"
		if q.IsCorrect {
			status = "OK"
		}
		if q.Ambiguous {
			status += " (multi)"
		}
		fmt.Fprintf(&b, "%-5d %-10s %-10s %-10s\n",
			q.Question, q.Detected.Letter(), marks.OptionLetter(q.Correct), status)
	}
	b.WriteString(strings.Repeat("-", 40) + "\n")
	fmt.Fprintf(&b, "Score: %d/%d (%.2f%%)\n", r.Total, r.Questions, r.Percent())

	_, err := io.WriteString(w, b.String())
	return err
}
