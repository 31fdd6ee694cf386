// Package alignment rectifies a photographed sheet into the template's
// coordinate frame using a RANSAC-estimated homography.
package alignment

import (
	"errors"
	"fmt"
	"image"
	"log"

	"omr-grader/internal/features"
	"omr-grader/internal/logging"
	"omr-grader/pkg/geometry"

	"gocv.io/x/gocv"
)

var (
	// ErrInsufficientMatches is returned when fewer than four correspondences are supplied.
	ErrInsufficientMatches = errors.New("insufficient matches")
	// ErrAlignmentFailed is returned when no usable homography can be estimated.
	ErrAlignmentFailed = errors.New("alignment failed")
)

// Options configures the alignment process.
type Options struct {
	RANSAC RANSACParams
	Logger *log.Logger // nil discards output
}

// DefaultOptions returns default alignment options.
func DefaultOptions() Options {
	return Options{RANSAC: DefaultRANSACParams()}
}

// Result holds the result of image alignment.
type Result struct {
	Rectified gocv.Mat            // Source resampled into the template's size
	Transform geometry.Homography // Source -> template
	Matches   int                 // Correspondences considered
	Inliers   []int               // Indices of correspondences consistent with Transform
	MeanError float64             // Mean reprojection error over inliers (px)
}

// Close releases the rectified image.
func (r *Result) Close() {
	if r != nil {
		r.Rectified.Close()
	}
}

// Align estimates the homography from correspondences and warps source
// into the pixel dimensions of template. The inputs are not modified.
func Align(source, template gocv.Mat, corr []features.Correspondence, opts Options) (*Result, error) {
	if len(corr) < minSample {
		return nil, fmt.Errorf("%w: got %d correspondences, need at least %d",
			ErrInsufficientMatches, len(corr), minSample)
	}
	if source.Empty() || template.Empty() {
		return nil, fmt.Errorf("%w: empty input image", ErrAlignmentFailed)
	}
	logger := logging.OrDiscard(opts.Logger)

	srcPts := make([]geometry.Point2D, len(corr))
	dstPts := make([]geometry.Point2D, len(corr))
	for i, c := range corr {
		srcPts[i] = c.Source
		dstPts[i] = c.Target
	}

	transform, inliers, err := EstimateTransform(srcPts, dstPts, template.Cols(), template.Rows(), opts.RANSAC)
	if err != nil {
		return nil, err
	}

	inlierSrc := make([]geometry.Point2D, len(inliers))
	inlierDst := make([]geometry.Point2D, len(inliers))
	for i, idx := range inliers {
		inlierSrc[i] = srcPts[idx]
		inlierDst[i] = dstPts[idx]
	}
	meanErr := CalculateAlignmentError(inlierSrc, inlierDst, transform)

	logger.Printf("alignment: %d/%d inliers, mean reprojection error %.2f px", len(inliers), len(corr), meanErr)

	rectified := WarpPerspective(source, transform, template.Cols(), template.Rows())

	return &Result{
		Rectified: rectified,
		Transform: transform,
		Matches:   len(corr),
		Inliers:   inliers,
		MeanError: meanErr,
	}, nil
}

// EstimateTransform runs the consensus search and rejects estimates whose
// preimage of the template rectangle is not a convex quadrilateral, which
// is what a folded or mirrored fit produces.
func EstimateTransform(srcPts, dstPts []geometry.Point2D, width, height int, params RANSACParams) (geometry.Homography, []int, error) {
	if len(srcPts) < minSample {
		return geometry.Homography{}, nil, fmt.Errorf("%w: got %d correspondences, need at least %d",
			ErrInsufficientMatches, len(srcPts), minSample)
	}

	transform, inliers, err := ComputeHomographyRANSAC(srcPts, dstPts, params)
	if err != nil {
		return geometry.Homography{}, nil, fmt.Errorf("%w: %v", ErrAlignmentFailed, err)
	}

	inv, ok := transform.Inverse()
	if !ok {
		return geometry.Homography{}, nil, fmt.Errorf("%w: singular transform", ErrAlignmentFailed)
	}
	quad := make([]geometry.Point2D, 0, 4)
	for _, c := range geometry.RectCorners(width, height) {
		p, ok := inv.Apply(c)
		if !ok {
			return geometry.Homography{}, nil, fmt.Errorf("%w: template corner maps to infinity", ErrAlignmentFailed)
		}
		quad = append(quad, p)
	}
	if !geometry.IsConvex(quad) || geometry.SignedArea(quad) <= 0 {
		return geometry.Homography{}, nil, fmt.Errorf("%w: transform folds the sheet", ErrAlignmentFailed)
	}

	return transform, inliers, nil
}

// WarpPerspective applies a homography to an image, producing a
// width x height result. Pixels outside the source are black.
func WarpPerspective(src gocv.Mat, transform geometry.Homography, width, height int) gocv.Mat {
	transformMat := HomographyToMat(transform)
	defer transformMat.Close()

	dst := gocv.NewMat()
	gocv.WarpPerspective(src, &dst, transformMat, image.Point{X: width, Y: height})
	return dst
}

// HomographyToMat converts a homography to a 3x3 CV_64F Mat. The caller owns the result.
func HomographyToMat(h geometry.Homography) gocv.Mat {
	m := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.SetDoubleAt(i, j, h[i][j])
		}
	}
	return m
}

// CreateOverlay blends the rectified image over the template so
// misregistration shows up as ghosting.
func CreateOverlay(template, rectified gocv.Mat, opacity float64) gocv.Mat {
	if template.Empty() || rectified.Empty() {
		return gocv.NewMat()
	}

	dst := gocv.NewMat()
	gocv.AddWeighted(template, opacity, rectified, 1.0-opacity, 0, &dst)
	return dst
}
