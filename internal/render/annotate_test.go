package render

import (
	"testing"

	"omr-grader/internal/marks"
	"omr-grader/internal/scoring"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

var testGrid = marks.Grid{Questions: 2, Options: 4, StartX: 150, StartY: 250, GapX: 60, GapY: 60, Radius: 15}

// bgrAt returns the pixel at (x, y) of a 3-channel Mat.
func bgrAt(m gocv.Mat, x, y int) [3]uint8 {
	return [3]uint8{m.GetUCharAt(y, x*3), m.GetUCharAt(y, x*3+1), m.GetUCharAt(y, x*3+2)}
}

func TestDrawResults(t *testing.T) {
	sheet := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 800, 600, gocv.MatTypeCV8UC3)
	defer sheet.Close()

	report, err := scoring.Score([]marks.Answer{1, 3}, []int{1, 0})
	require.NoError(t, err)

	out := DrawResults(sheet, report, testGrid)
	defer out.Close()

	assert.Equal(t, sheet.Rows(), out.Rows())
	assert.Equal(t, sheet.Cols(), out.Cols())

	ring := testGrid.Radius + ringPadding
	green := [3]uint8{0, 255, 0}
	red := [3]uint8{0, 0, 255}

	c := testGrid.Center(0, 1)
	assert.Equal(t, green, bgrAt(out, c.X+ring, c.Y), "correct answer ringed green")

	c = testGrid.Center(1, 0)
	assert.Equal(t, green, bgrAt(out, c.X+ring, c.Y), "key ringed green")
	c = testGrid.Center(1, 3)
	assert.Equal(t, red, bgrAt(out, c.X+ring, c.Y), "wrong mark ringed red")

	// Input is unchanged.
	assert.Equal(t, [3]uint8{255, 255, 255}, bgrAt(sheet, c.X+ring, c.Y))
}

func TestDrawResultsAmbiguous(t *testing.T) {
	sheet := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 800, 600, gocv.MatTypeCV8UC3)
	defer sheet.Close()

	report, err := scoring.Score([]marks.Answer{2, marks.NoAnswer}, []int{2, 1})
	require.NoError(t, err)
	report.MarkAmbiguous([]bool{true, false})

	out := DrawResults(sheet, report, testGrid)
	defer out.Close()

	c := testGrid.Center(0, 2)
	outer := testGrid.Radius + 2*ringPadding
	assert.Equal(t, [3]uint8{0, 255, 255}, bgrAt(out, c.X+outer, c.Y))
}

func TestAnnotateGrayInput(t *testing.T) {
	binary := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 800, 600, gocv.MatTypeCV8UC1)
	defer binary.Close()

	report, err := scoring.Score([]marks.Answer{0, 0}, []int{0, 0})
	require.NoError(t, err)

	out := Annotate(binary, report, testGrid)
	defer out.Close()
	assert.Equal(t, 3, out.Channels())
	assert.Equal(t, 800, out.Rows())
}
