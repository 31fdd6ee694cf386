package marks

import (
	"fmt"
	"strings"

	"omr-grader/internal/features"

	"gocv.io/x/gocv"
)

// Method selects how the adaptive threshold weights the neighbourhood.
type Method int

const (
	// MethodGaussian weights the neighbourhood with a Gaussian window.
	MethodGaussian Method = iota
	// MethodMean uses the plain neighbourhood mean.
	MethodMean
)

func (m Method) String() string {
	switch m {
	case MethodGaussian:
		return "gaussian"
	case MethodMean:
		return "mean"
	default:
		return "unknown"
	}
}

// ParseMethod maps a config string to a Method. Empty means gaussian.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "gaussian":
		return MethodGaussian, nil
	case "mean":
		return MethodMean, nil
	default:
		return 0, fmt.Errorf("unknown binarization method %q (want gaussian or mean)", s)
	}
}

// BinarizeParams configures adaptive thresholding.
type BinarizeParams struct {
	BlockSize int     // Neighbourhood size, odd and >= 3
	C         float64 // Constant subtracted from the weighted mean
	Method    Method
}

// DefaultBinarizeParams returns the thresholding used on phone photos. The
// block must be wider than a bubble or a filled interior reads as paper.
func DefaultBinarizeParams() BinarizeParams {
	return BinarizeParams{BlockSize: 51, C: 10, Method: MethodGaussian}
}

// Validate checks the block size constraints.
func (p BinarizeParams) Validate() error {
	if p.BlockSize < 3 {
		return fmt.Errorf("block size must be >= 3, got %d", p.BlockSize)
	}
	if p.BlockSize%2 == 0 {
		return fmt.Errorf("block size must be odd, got %d", p.BlockSize)
	}
	return nil
}

// Binarize converts img to grayscale and applies an inverted adaptive
// threshold, so dark ink on light paper becomes nonzero foreground.
// The caller owns the result.
func Binarize(img gocv.Mat, params BinarizeParams) (gocv.Mat, error) {
	if img.Empty() {
		return gocv.Mat{}, fmt.Errorf("empty image")
	}
	if err := params.Validate(); err != nil {
		return gocv.Mat{}, err
	}

	gray := features.ToGray(img)
	defer gray.Close()

	adaptive := gocv.AdaptiveThresholdGaussian
	if params.Method == MethodMean {
		adaptive = gocv.AdaptiveThresholdMean
	}

	binary := gocv.NewMat()
	gocv.AdaptiveThreshold(gray, &binary, 255, adaptive, gocv.ThresholdBinaryInv,
		params.BlockSize, float32(params.C))
	return binary, nil
}
