// Package scoring compares detected answers with an answer key.
package scoring

import (
	"errors"
	"fmt"

	"omr-grader/internal/marks"
)

// ErrConfigurationMismatch is returned when the detected answers and the
// answer key disagree in length.
var ErrConfigurationMismatch = errors.New("configuration mismatch")

// QuestionResult is the verdict for one question.
type QuestionResult struct {
	Question  int          `json:"question"` // 1-based
	Detected  marks.Answer `json:"detected"` // NoAnswer when unanswered
	Correct   int          `json:"correct"`
	IsCorrect bool         `json:"is_correct"`
	Ambiguous bool         `json:"ambiguous,omitempty"`
}

// Report is the graded sheet.
type Report struct {
	Total     int              `json:"total"`
	Questions int              `json:"questions"`
	Results   []QuestionResult `json:"results"`
}

// Percent returns the score as a percentage of the question count.
func (r *Report) Percent() float64 {
	if r.Questions == 0 {
		return 0
	}
	return float64(r.Total) / float64(r.Questions) * 100
}

// Score grades detected answers position by position against key.
// An unanswered question is never correct.
func Score(detected []marks.Answer, key []int) (*Report, error) {
	if len(detected) != len(key) {
		return nil, fmt.Errorf("%w: %d detected answers for %d key entries",
			ErrConfigurationMismatch, len(detected), len(key))
	}

	report := &Report{
		Questions: len(key),
		Results:   make([]QuestionResult, len(key)),
	}
	for i, want := range key {
		got := detected[i]
		ok := got.Marked() && int(got) == want
		if ok {
			report.Total++
		}
		report.Results[i] = QuestionResult{
			Question:  i + 1,
			Detected:  got,
			Correct:   want,
			IsCorrect: ok,
		}
	}
	return report, nil
}

// MarkAmbiguous copies per-question ambiguity flags onto the results.
func (r *Report) MarkAmbiguous(flags []bool) {
	for i := range r.Results {
		if i < len(flags) {
			r.Results[i].Ambiguous = flags[i]
		}
	}
}
