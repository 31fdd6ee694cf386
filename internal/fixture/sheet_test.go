package fixture

import (
	"testing"

	"omr-grader/internal/marks"
	"omr-grader/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplate(t *testing.T) {
	l := DefaultLayout()
	tmpl := Template(l)
	defer tmpl.Close()

	assert.Equal(t, l.Height, tmpl.Rows())
	assert.Equal(t, l.Width, tmpl.Cols())
	assert.Equal(t, 3, tmpl.Channels())

	// Fiducial core is black; paper and the inside of a bubble clear of its
	// letter are white.
	assert.Equal(t, uint8(0), tmpl.GetUCharAt(60, 60*3))
	assert.Equal(t, uint8(255), tmpl.GetUCharAt(700, 300*3))
	c := l.Grid(l.BubbleRadius).Center(0, 0)
	assert.Equal(t, uint8(255), tmpl.GetUCharAt(c.Y-12, (c.X+12)*3))
}

func TestFill(t *testing.T) {
	l := DefaultLayout()
	tmpl := Template(l)
	defer tmpl.Close()

	filled := Fill(tmpl, l, []marks.Answer{2, marks.NoAnswer})
	defer filled.Close()

	grid := l.Grid(l.BubbleRadius)
	marked := grid.Center(0, 2)
	blank := grid.Center(1, 0)
	assert.Equal(t, uint8(0), filled.GetUCharAt(marked.Y-12, (marked.X+12)*3))
	assert.Equal(t, uint8(255), filled.GetUCharAt(blank.Y-12, (blank.X+12)*3+1))

	// The template itself is untouched.
	assert.Equal(t, uint8(255), tmpl.GetUCharAt(marked.Y-12, (marked.X+12)*3))
}

func TestPhotoTransform(t *testing.T) {
	h, err := PhotoTransform(600, 800)
	require.NoError(t, err)

	want := map[geometry.Point2D]geometry.Point2D{
		{X: 0, Y: 0}:     {X: 60, Y: 80},
		{X: 600, Y: 0}:   {X: 570, Y: 40},
		{X: 0, Y: 800}:   {X: 30, Y: 720},
		{X: 600, Y: 800}: {X: 540, Y: 760},
	}
	for src, dst := range want {
		got, ok := h.Apply(src)
		require.True(t, ok)
		assert.InDelta(t, dst.X, got.X, 1e-6)
		assert.InDelta(t, dst.Y, got.Y, 1e-6)
	}
}

func TestGenerate(t *testing.T) {
	l := DefaultLayout()
	sheet, err := Generate(l, []marks.Answer{0, 1, 0, 2, 3})
	require.NoError(t, err)
	defer sheet.Close()

	assert.Equal(t, l.Height, sheet.Photo.Rows())
	assert.Equal(t, l.Width, sheet.Photo.Cols())
	// The border outside the warped sheet stays white.
	assert.Equal(t, uint8(255), sheet.Photo.GetUCharAt(2, 2*3))
}

func TestGenerateRejectsBadAnswers(t *testing.T) {
	l := DefaultLayout()
	_, err := Generate(l, make([]marks.Answer, l.Questions+1))
	assert.Error(t, err)

	_, err = Generate(l, []marks.Answer{marks.Answer(l.Options)})
	assert.Error(t, err)
}
