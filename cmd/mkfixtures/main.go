// Command mkfixtures writes a synthetic template, a filled sheet and a
// distorted photo of it for trying out the grader.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"omr-grader/internal/fixture"
	omrimage "omr-grader/internal/image"
	"omr-grader/internal/marks"
)

func main() {
	dir := flag.String("dir", "data", "Output directory")
	answersFlag := flag.String("answers", "A,B,A,C,D", "Comma-separated answers, one per question (- for blank)")
	flag.Parse()

	answers, err := parseAnswers(*answersFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid -answers: %v\n", err)
		os.Exit(1)
	}

	layout := fixture.DefaultLayout()
	layout.Questions = len(answers)

	sheet, err := fixture.Generate(layout, answers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate sheet: %v\n", err)
		os.Exit(1)
	}
	defer sheet.Close()

	outputs := []struct {
		path string
		save func(string) error
	}{
		{filepath.Join(*dir, "template", "template.png"), func(p string) error { return omrimage.SaveMat(p, sheet.Template) }},
		{filepath.Join(*dir, "inputs", "filled_sheet.png"), func(p string) error { return omrimage.SaveMat(p, sheet.Filled) }},
		{filepath.Join(*dir, "inputs", "sample_sheet.png"), func(p string) error { return omrimage.SaveMat(p, sheet.Photo) }},
	}
	for _, o := range outputs {
		if err := os.MkdirAll(filepath.Dir(o.path), 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create %s: %v\n", filepath.Dir(o.path), err)
			os.Exit(1)
		}
		if err := o.save(o.path); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", o.path, err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s\n", o.path)
	}

	grid := layout.Grid(15)
	fmt.Printf("\nroi: start_x=%d start_y=%d gap_x=%d gap_y=%d radius=%d\n",
		grid.StartX, grid.StartY, grid.GapX, grid.GapY, grid.Radius)
	keys := make([]string, len(answers))
	for i, a := range answers {
		keys[i] = strconv.Itoa(int(a))
	}
	fmt.Printf("answer_key: [%s]\n", strings.Join(keys, ", "))
}

func parseAnswers(s string) ([]marks.Answer, error) {
	parts := strings.Split(s, ",")
	answers := make([]marks.Answer, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		switch {
		case p == "-" || p == "":
			answers = append(answers, marks.NoAnswer)
		case len(p) == 1 && p[0] >= 'A' && p[0] <= 'Z':
			answers = append(answers, marks.Answer(p[0]-'A'))
		default:
			return nil, fmt.Errorf("unrecognised answer %q", p)
		}
	}
	return answers, nil
}
