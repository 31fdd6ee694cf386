// Package render draws grading results onto the rectified sheet.
package render

import (
	"fmt"
	"image"

	"omr-grader/internal/marks"
	"omr-grader/internal/scoring"
	"omr-grader/pkg/colorutil"

	"gocv.io/x/gocv"
)

// ringPadding is how far outside the bubble radius result rings are drawn.
const ringPadding = 5

// DrawResults returns a copy of sheet with a green ring on every correct
// option and a red ring on each wrong marked option. Ambiguous questions get
// a yellow ring on the chosen option.
func DrawResults(sheet gocv.Mat, report *scoring.Report, grid marks.Grid) gocv.Mat {
	out := toBGR(sheet)
	radius := grid.Radius + ringPadding

	for _, r := range report.Results {
		q := r.Question - 1
		gocv.Circle(&out, grid.Center(q, r.Correct), radius, colorutil.Green, 3)

		if !r.Detected.Marked() {
			continue
		}
		detected := grid.Center(q, int(r.Detected))
		if !r.IsCorrect {
			gocv.Circle(&out, detected, radius, colorutil.Red, 3)
		}
		if r.Ambiguous {
			gocv.Circle(&out, detected, radius+ringPadding, colorutil.Yellow, 2)
		}
	}
	return out
}

// DrawScore writes the percentage score in the top-left corner of img.
func DrawScore(img *gocv.Mat, report *scoring.Report) {
	text := fmt.Sprintf("Score: %.0f%%", report.Percent())
	gocv.PutText(img, text, image.Point{X: 50, Y: 100}, gocv.FontHersheySimplex, 1.5, colorutil.Red, 4)
}

// Annotate draws the rings and the score onto a copy of sheet.
func Annotate(sheet gocv.Mat, report *scoring.Report, grid marks.Grid) gocv.Mat {
	out := DrawResults(sheet, report, grid)
	DrawScore(&out, report)
	return out
}

// toBGR returns a 3-channel copy of img.
func toBGR(img gocv.Mat) gocv.Mat {
	out := gocv.NewMat()
	if img.Channels() == 1 {
		gocv.CvtColor(img, &out, gocv.ColorGrayToBGR)
	} else {
		img.CopyTo(&out)
	}
	return out
}
