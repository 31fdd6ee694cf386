package features

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestRatioTest(t *testing.T) {
	knn := [][]gocv.DMatch{
		{{QueryIdx: 0, TrainIdx: 5, Distance: 10}, {QueryIdx: 0, TrainIdx: 6, Distance: 40}},
		{{QueryIdx: 1, TrainIdx: 7, Distance: 30}, {QueryIdx: 1, TrainIdx: 8, Distance: 40}},
		{{QueryIdx: 2, TrainIdx: 9, Distance: 30}, {QueryIdx: 2, TrainIdx: 1, Distance: 40.0001}},
		{{QueryIdx: 3, TrainIdx: 2, Distance: 5}},
		{},
	}

	good := RatioTest(knn, 0.75)
	require.Len(t, good, 2)
	assert.Equal(t, 0, good[0].QueryIdx)
	assert.Equal(t, 5, good[0].TrainIdx)
	assert.Equal(t, 2, good[1].QueryIdx)
}

func TestRatioTestBoundaryIsStrict(t *testing.T) {
	knn := [][]gocv.DMatch{
		{{Distance: 30}, {Distance: 40}},
	}
	assert.Empty(t, RatioTest(knn, 0.75))
	assert.Len(t, RatioTest(knn, 0.76), 1)
}

func TestOptionsValidate(t *testing.T) {
	assert.NoError(t, DefaultOptions().Validate())
	assert.Error(t, Options{MaxFeatures: 0, MatchRatio: 0.75}.Validate())
	assert.Error(t, Options{MaxFeatures: 100, MatchRatio: 0}.Validate())
	assert.Error(t, Options{MaxFeatures: 100, MatchRatio: 1}.Validate())
}

func TestFindCorrespondencesBlankImage(t *testing.T) {
	blank := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 200, 200, gocv.MatTypeCV8UC3)
	defer blank.Close()

	_, err := FindCorrespondences(blank, blank, DefaultOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFeatureDetectionFailed))
}

func TestFindCorrespondencesEmptyImage(t *testing.T) {
	empty := gocv.NewMat()
	defer empty.Close()

	_, err := FindCorrespondences(empty, empty, DefaultOptions())
	assert.True(t, errors.Is(err, ErrFeatureDetectionFailed))
}

func TestToGray(t *testing.T) {
	bgr := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(10, 20, 30, 0), 4, 4, gocv.MatTypeCV8UC3)
	defer bgr.Close()
	gray := ToGray(bgr)
	defer gray.Close()
	assert.Equal(t, 1, gray.Channels())

	again := ToGray(gray)
	defer again.Close()
	assert.Equal(t, 1, again.Channels())
	assert.Equal(t, gray.GetUCharAt(0, 0), again.GetUCharAt(0, 0))
}
