// Package features finds point correspondences between two images using ORB
// keypoints, brute-force Hamming matching and Lowe's ratio test.
package features

import (
	"errors"
	"fmt"
	"log"

	"omr-grader/internal/logging"
	"omr-grader/pkg/geometry"

	"gocv.io/x/gocv"
)

// ErrFeatureDetectionFailed is returned when an image yields no keypoints.
var ErrFeatureDetectionFailed = errors.New("feature detection failed")

// Correspondence pairs a point in the source image with the point in the
// target image believed to show the same physical location.
type Correspondence struct {
	Source   geometry.Point2D `json:"source"`
	Target   geometry.Point2D `json:"target"`
	Distance float64          `json:"distance"` // Hamming distance between descriptors
}

// Options configures correspondence search.
type Options struct {
	MaxFeatures int         // Upper bound on keypoints detected per image
	MatchRatio  float64     // Lowe ratio threshold in (0,1); lower is stricter
	Logger      *log.Logger // nil discards output
}

// DefaultOptions returns the defaults used for phone photos of A4 sheets.
func DefaultOptions() Options {
	return Options{
		MaxFeatures: 5000,
		MatchRatio:  0.75,
	}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if o.MaxFeatures <= 0 {
		return fmt.Errorf("max features must be positive, got %d", o.MaxFeatures)
	}
	if o.MatchRatio <= 0 || o.MatchRatio >= 1 {
		return fmt.Errorf("match ratio must be in (0,1), got %g", o.MatchRatio)
	}
	return nil
}

// FindCorrespondences detects up to MaxFeatures ORB keypoints in each image
// and returns the matches from source to target that pass the ratio test.
// Neither input is modified.
func FindCorrespondences(source, target gocv.Mat, opts Options) ([]Correspondence, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	logger := logging.OrDiscard(opts.Logger)

	orb := gocv.NewORBWithParams(opts.MaxFeatures, 1.2, 8, 31, 0, 2, gocv.ORBScoreTypeHarris, 31, 20)
	defer orb.Close()

	srcKeys, srcDesc, err := detect(&orb, source, "source")
	if err != nil {
		return nil, err
	}
	defer srcDesc.Close()

	dstKeys, dstDesc, err := detect(&orb, target, "template")
	if err != nil {
		return nil, err
	}
	defer dstDesc.Close()

	logger.Printf("features: %d keypoints in source, %d in template", len(srcKeys), len(dstKeys))

	matcher := gocv.NewBFMatcherWithParams(gocv.NormHamming, false)
	defer matcher.Close()

	knn := matcher.KnnMatch(srcDesc, dstDesc, 2)
	good := RatioTest(knn, opts.MatchRatio)

	logger.Printf("features: %d of %d matches passed ratio test %.2f", len(good), len(knn), opts.MatchRatio)

	out := make([]Correspondence, 0, len(good))
	for _, m := range good {
		if m.QueryIdx < 0 || m.QueryIdx >= len(srcKeys) || m.TrainIdx < 0 || m.TrainIdx >= len(dstKeys) {
			continue
		}
		s := srcKeys[m.QueryIdx]
		d := dstKeys[m.TrainIdx]
		out = append(out, Correspondence{
			Source:   geometry.Point2D{X: s.X, Y: s.Y},
			Target:   geometry.Point2D{X: d.X, Y: d.Y},
			Distance: m.Distance,
		})
	}
	return out, nil
}

// RatioTest keeps the best match of each k-NN group only when its distance
// is strictly below ratio times the second-best distance. Groups with fewer
// than two candidates cannot be disambiguated and are dropped.
func RatioTest(knn [][]gocv.DMatch, ratio float64) []gocv.DMatch {
	good := make([]gocv.DMatch, 0, len(knn))
	for _, pair := range knn {
		if len(pair) < 2 {
			continue
		}
		if pair[0].Distance < ratio*pair[1].Distance {
			good = append(good, pair[0])
		}
	}
	return good
}

func detect(orb *gocv.ORB, img gocv.Mat, name string) ([]gocv.KeyPoint, gocv.Mat, error) {
	if img.Empty() {
		return nil, gocv.Mat{}, fmt.Errorf("%w: %s image is empty", ErrFeatureDetectionFailed, name)
	}

	gray := ToGray(img)
	defer gray.Close()

	mask := gocv.NewMat()
	defer mask.Close()

	keys, desc := orb.DetectAndCompute(gray, mask)
	if len(keys) == 0 || desc.Empty() {
		desc.Close()
		return nil, gocv.Mat{}, fmt.Errorf("%w: no keypoints in %s image", ErrFeatureDetectionFailed, name)
	}
	return keys, desc, nil
}

// ToGray returns a single-channel copy of img. The caller owns the result.
func ToGray(img gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	switch img.Channels() {
	case 1:
		img.CopyTo(&gray)
	case 4:
		gocv.CvtColor(img, &gray, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	}
	return gray
}
