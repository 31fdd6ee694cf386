package marks

import (
	"bytes"
	"fmt"
	"log"
	"strconv"

	"omr-grader/internal/logging"

	"gocv.io/x/gocv"
)

// NoAnswer marks a question with no option above the threshold.
const NoAnswer Answer = -1

// Answer is a detected option index, or NoAnswer.
type Answer int

// Marked reports whether an option was detected.
func (a Answer) Marked() bool {
	return a >= 0
}

// Letter returns "A", "B", ... for marked answers and "N/A" otherwise.
func (a Answer) Letter() string {
	if !a.Marked() {
		return "N/A"
	}
	return OptionLetter(int(a))
}

func (a Answer) String() string {
	return a.Letter()
}

// MarshalJSON encodes NoAnswer as null.
func (a Answer) MarshalJSON() ([]byte, error) {
	if !a.Marked() {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(int(a))), nil
}

// UnmarshalJSON decodes null as NoAnswer.
func (a *Answer) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*a = NoAnswer
		return nil
	}
	n, err := strconv.Atoi(string(bytes.TrimSpace(data)))
	if err != nil {
		return fmt.Errorf("invalid answer %s: %w", data, err)
	}
	if n < 0 {
		n = int(NoAnswer)
	}
	*a = Answer(n)
	return nil
}

// OptionLetter maps option index 0.. to "A"...
func OptionLetter(option int) string {
	if option < 26 {
		return string(rune('A' + option))
	}
	return fmt.Sprintf("#%d", option)
}

// OptionEvidence is the ink pixel count inside one bubble.
type OptionEvidence struct {
	Question int `json:"question"`
	Option   int `json:"option"`
	X        int `json:"x"`
	Y        int `json:"y"`
	Count    int `json:"count"`
}

// Options configures mark detection.
type Options struct {
	Binarize  BinarizeParams
	Threshold int         // A bubble is marked when its count is strictly greater
	Logger    *log.Logger // nil discards output
}

// DefaultOptions returns the detection settings for the 20px bubbles
// printed by the fixture generator.
func DefaultOptions() Options {
	return Options{
		Binarize:  DefaultBinarizeParams(),
		Threshold: 300,
	}
}

// Detection is the outcome of grading one rectified sheet.
type Detection struct {
	Answers   []Answer         // One entry per question
	Evidence  []OptionEvidence // Questions x Options, question-major
	Ambiguous []bool           // More than one option above the threshold
	Binary    gocv.Mat         // Binarized sheet; the caller closes it
}

// Close releases the binarized image.
func (d *Detection) Close() {
	if d != nil {
		d.Binary.Close()
	}
}

// Detect binarizes the rectified sheet, measures the ink in every bubble of
// grid and picks the marked option per question.
func Detect(rectified gocv.Mat, grid Grid, opts Options) (*Detection, error) {
	if err := grid.Validate(); err != nil {
		return nil, fmt.Errorf("invalid grid: %w", err)
	}
	if opts.Threshold < 0 {
		return nil, fmt.Errorf("mark threshold must be >= 0, got %d", opts.Threshold)
	}
	logger := logging.OrDiscard(opts.Logger)

	binary, err := Binarize(rectified, opts.Binarize)
	if err != nil {
		return nil, fmt.Errorf("binarize: %w", err)
	}
	if !grid.Fits(binary.Cols(), binary.Rows()) {
		logger.Printf("marks: grid %v extends beyond the %dx%d sheet; outside pixels count as blank",
			grid.Bounds(), binary.Cols(), binary.Rows())
	}

	evidence := MeasureEvidence(binary, grid)
	answers, ambiguous := DecideAll(evidence, grid, opts.Threshold)

	for q, a := range answers {
		if ambiguous[q] {
			logger.Printf("marks: question %d has more than one filled bubble, taking %s", q+1, a)
		}
	}

	return &Detection{
		Answers:   answers,
		Evidence:  evidence,
		Ambiguous: ambiguous,
		Binary:    binary,
	}, nil
}

// MeasureEvidence counts foreground pixels inside every bubble of grid.
func MeasureEvidence(binary gocv.Mat, grid Grid) []OptionEvidence {
	evidence := make([]OptionEvidence, 0, grid.Questions*grid.Options)
	for q := 0; q < grid.Questions; q++ {
		for o := 0; o < grid.Options; o++ {
			c := grid.Center(q, o)
			evidence = append(evidence, OptionEvidence{
				Question: q,
				Option:   o,
				X:        c.X,
				Y:        c.Y,
				Count:    CountInk(binary, c.X, c.Y, grid.Radius),
			})
		}
	}
	return evidence
}

// CountInk returns the number of nonzero pixels of a single-channel image
// within radius of (cx, cy). Pixels outside the image are not counted.
func CountInk(binary gocv.Mat, cx, cy, radius int) int {
	rows, cols := binary.Rows(), binary.Cols()
	r2 := radius * radius
	count := 0
	for dy := -radius; dy <= radius; dy++ {
		y := cy + dy
		if y < 0 || y >= rows {
			continue
		}
		for dx := -radius; dx <= radius; dx++ {
			x := cx + dx
			if x < 0 || x >= cols || dx*dx+dy*dy > r2 {
				continue
			}
			if binary.GetUCharAt(y, x) != 0 {
				count++
			}
		}
	}
	return count
}

// DecideAll applies Decide to each question's counts.
func DecideAll(evidence []OptionEvidence, grid Grid, threshold int) ([]Answer, []bool) {
	answers := make([]Answer, grid.Questions)
	ambiguous := make([]bool, grid.Questions)
	counts := make([]int, grid.Options)
	for q := 0; q < grid.Questions; q++ {
		for o := 0; o < grid.Options; o++ {
			counts[o] = evidence[q*grid.Options+o].Count
		}
		answers[q] = Decide(counts, threshold)
		ambiguous[q] = countAbove(counts, threshold) > 1
	}
	return answers, ambiguous
}

// Decide returns the option with the largest count when that count is
// strictly greater than threshold; ties go to the lowest option index.
func Decide(counts []int, threshold int) Answer {
	best := NoAnswer
	maxCount := 0
	for o, c := range counts {
		if best == NoAnswer || c > maxCount {
			best = Answer(o)
			maxCount = c
		}
	}
	if best == NoAnswer || maxCount <= threshold {
		return NoAnswer
	}
	return best
}

func countAbove(counts []int, threshold int) int {
	n := 0
	for _, c := range counts {
		if c > threshold {
			n++
		}
	}
	return n
}
