// Package fixture draws synthetic answer sheets: a blank template, a filled
// copy and a perspective-distorted "photo" of it.
package fixture

import (
	"fmt"
	"image"

	"omr-grader/internal/alignment"
	"omr-grader/internal/marks"
	"omr-grader/pkg/colorutil"
	"omr-grader/pkg/geometry"

	"gocv.io/x/gocv"
)

// Layout describes the printed sheet.
type Layout struct {
	Width, Height int
	Questions     int
	Options       int
	StartX        int
	StartY        int
	GapX          int
	GapY          int
	BubbleRadius  int // Printed outline radius
	FillRadius    int // Radius of a pencil mark
}

// DefaultLayout is a 600x800 sheet with 5 questions of 4 options.
func DefaultLayout() Layout {
	return Layout{
		Width:        600,
		Height:       800,
		Questions:    5,
		Options:      4,
		StartX:       150,
		StartY:       250,
		GapX:         60,
		GapY:         60,
		BubbleRadius: 20,
		FillRadius:   18,
	}
}

// Grid returns the detection grid for the layout, counting ink within
// countRadius of each bubble center.
func (l Layout) Grid(countRadius int) marks.Grid {
	return marks.Grid{
		Questions: l.Questions,
		Options:   l.Options,
		StartX:    l.StartX,
		StartY:    l.StartY,
		GapX:      l.GapX,
		GapY:      l.GapY,
		Radius:    countRadius,
	}
}

// Template draws the blank sheet: four nested-square fiducials, a title,
// question labels and lettered bubble outlines. The caller owns the result.
func Template(l Layout) gocv.Mat {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), l.Height, l.Width, gocv.MatTypeCV8UC3)

	w, h := l.Width, l.Height
	for _, corner := range []image.Point{
		{X: 20, Y: 20},
		{X: w - 100, Y: 20},
		{X: 20, Y: h - 100},
		{X: w - 100, Y: h - 100},
	} {
		drawFiducial(&img, corner)
	}

	gocv.PutText(&img, "OMR SHEET", image.Point{X: w/2 - 100, Y: 150},
		gocv.FontHersheySimplex, 1.5, colorutil.Black, 3)

	grid := l.Grid(l.BubbleRadius)
	for q := 0; q < l.Questions; q++ {
		y := grid.Center(q, 0).Y
		gocv.PutText(&img, fmt.Sprintf("Q%d", q+1), image.Point{X: 50, Y: y + 10},
			gocv.FontHersheySimplex, 0.8, colorutil.Black, 2)
		for o := 0; o < l.Options; o++ {
			c := grid.Center(q, o)
			gocv.Circle(&img, c, l.BubbleRadius, colorutil.Black, 2)
			gocv.PutText(&img, marks.OptionLetter(o), image.Point{X: c.X - 10, Y: c.Y + 10},
				gocv.FontHersheySimplex, 0.6, colorutil.Black, 1)
		}
	}
	return img
}

// drawFiducial draws an 80px black square with a white ring and a black core.
func drawFiducial(img *gocv.Mat, topLeft image.Point) {
	x, y := topLeft.X, topLeft.Y
	gocv.Rectangle(img, image.Rect(x, y, x+80, y+80), colorutil.Black, -1)
	gocv.Rectangle(img, image.Rect(x+10, y+10, x+70, y+70), colorutil.White, -1)
	gocv.Rectangle(img, image.Rect(x+20, y+20, x+60, y+60), colorutil.Black, -1)
}

// Fill returns a copy of template with a solid disc in each answered bubble.
func Fill(template gocv.Mat, l Layout, answers []marks.Answer) gocv.Mat {
	filled := template.Clone()
	grid := l.Grid(l.BubbleRadius)
	for q, a := range answers {
		if !a.Marked() || q >= l.Questions {
			continue
		}
		gocv.Circle(&filled, grid.Center(q, int(a)), l.FillRadius, colorutil.Black, -1)
	}
	return filled
}

// PhotoTransform is the perspective applied by Distort: the sheet shrinks and
// tilts as if photographed from slightly off-axis.
func PhotoTransform(width, height int) (geometry.Homography, error) {
	w, h := float64(width), float64(height)
	src := []geometry.Point2D{{X: 0, Y: 0}, {X: w, Y: 0}, {X: 0, Y: h}, {X: w, Y: h}}
	dst := []geometry.Point2D{
		{X: w * 0.1, Y: h * 0.1},
		{X: w * 0.95, Y: h * 0.05},
		{X: w * 0.05, Y: h * 0.9},
		{X: w * 0.9, Y: h * 0.95},
	}
	return alignment.HomographyFromPoints(src, dst)
}

// Distort warps img with PhotoTransform onto a white background and blurs it
// slightly. It returns the distorted image and the transform used.
func Distort(img gocv.Mat) (gocv.Mat, geometry.Homography, error) {
	transform, err := PhotoTransform(img.Cols(), img.Rows())
	if err != nil {
		return gocv.Mat{}, geometry.Homography{}, err
	}

	// WarpPerspective fills with black, so warp the negative and invert back.
	inverted := gocv.NewMat()
	defer inverted.Close()
	gocv.BitwiseNot(img, &inverted)

	warped := alignment.WarpPerspective(inverted, transform, img.Cols(), img.Rows())
	defer warped.Close()
	gocv.BitwiseNot(warped, &warped)

	blurred := gocv.NewMat()
	gocv.GaussianBlur(warped, &blurred, image.Point{X: 5, Y: 5}, 0, 0, gocv.BorderDefault)
	return blurred, transform, nil
}

// Sheet bundles a generated template and photo.
type Sheet struct {
	Layout    Layout
	Template  gocv.Mat
	Filled    gocv.Mat
	Photo     gocv.Mat
	Transform geometry.Homography // Template frame -> photo frame
}

// Close releases the generated images.
func (s *Sheet) Close() {
	s.Template.Close()
	s.Filled.Close()
	s.Photo.Close()
}

// Generate draws a template, fills answers and distorts the result.
func Generate(l Layout, answers []marks.Answer) (*Sheet, error) {
	if len(answers) > l.Questions {
		return nil, fmt.Errorf("%d answers for %d questions", len(answers), l.Questions)
	}
	for q, a := range answers {
		if int(a) >= l.Options {
			return nil, fmt.Errorf("answer %d for question %d is out of range", a, q+1)
		}
	}

	template := Template(l)
	filled := Fill(template, l, answers)
	photo, transform, err := Distort(filled)
	if err != nil {
		template.Close()
		filled.Close()
		return nil, fmt.Errorf("distort: %w", err)
	}
	return &Sheet{
		Layout:    l,
		Template:  template,
		Filled:    filled,
		Photo:     photo,
		Transform: transform,
	}, nil
}
