package alignment

import (
	"fmt"
	"math"
	"math/rand"

	"omr-grader/pkg/geometry"

	"gonum.org/v1/gonum/mat"
)

// minSample is the number of point pairs that determine a homography.
const minSample = 4

// RANSACParams tunes the consensus search.
type RANSACParams struct {
	Threshold     float64 // Max reprojection distance (px) for an inlier
	MaxIterations int     // Hard cap on sampled hypotheses
	Confidence    float64 // Stop early once this probability of an outlier-free sample is reached
	Seed          int64   // Seed for the sampler; equal seeds give equal results
}

// DefaultRANSACParams returns the parameters used for sheet alignment.
func DefaultRANSACParams() RANSACParams {
	return RANSACParams{
		Threshold:     5.0,
		MaxIterations: 2000,
		Confidence:    0.995,
		Seed:          1,
	}
}

// ComputeHomographyRANSAC estimates the homography mapping srcPoints onto
// dstPoints. It repeatedly fits minimal 4-point samples, keeps the model
// with the largest inlier set, and refines it by least squares over those
// inliers. Returned indices refer to the input slices.
func ComputeHomographyRANSAC(srcPoints, dstPoints []geometry.Point2D, params RANSACParams) (geometry.Homography, []int, error) {
	if len(srcPoints) != len(dstPoints) {
		return geometry.Homography{}, nil, fmt.Errorf("point count mismatch: %d vs %d", len(srcPoints), len(dstPoints))
	}
	n := len(srcPoints)
	if n < minSample {
		return geometry.Homography{}, nil, fmt.Errorf("need at least %d points, got %d", minSample, n)
	}
	if params.Threshold <= 0 {
		return geometry.Homography{}, nil, fmt.Errorf("reprojection threshold must be positive, got %g", params.Threshold)
	}

	rng := rand.New(rand.NewSource(params.Seed))
	maxIter := params.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultRANSACParams().MaxIterations
	}

	var bestInliers []int
	var bestTransform geometry.Homography

	sample := make([]geometry.Point2D, minSample)
	target := make([]geometry.Point2D, minSample)
	indices := make([]int, minSample)

	for iter := 0; iter < maxIter; iter++ {
		sampleIndices(rng, n, indices)
		for i, idx := range indices {
			sample[i] = srcPoints[idx]
			target[i] = dstPoints[idx]
		}

		if geometry.AnyCollinear(sample, 1.0) || geometry.AnyCollinear(target, 1.0) {
			continue
		}

		transform, err := computeHomographyDLT(sample, target)
		if err != nil {
			continue
		}

		inliers := countInliers(transform, srcPoints, dstPoints, params.Threshold)
		if len(inliers) > len(bestInliers) {
			bestInliers = inliers
			bestTransform = transform
			maxIter = min(maxIter, adaptiveIterations(len(inliers), n, params.Confidence, maxIter))
		}
	}

	if len(bestInliers) < minSample {
		return geometry.Homography{}, nil, fmt.Errorf("RANSAC failed to find enough inliers (%d)", len(bestInliers))
	}

	// Recompute transform using all inliers
	inlierSrc := make([]geometry.Point2D, len(bestInliers))
	inlierDst := make([]geometry.Point2D, len(bestInliers))
	for i, idx := range bestInliers {
		inlierSrc[i] = srcPoints[idx]
		inlierDst[i] = dstPoints[idx]
	}

	refined, err := computeHomographyDLT(inlierSrc, inlierDst)
	if err != nil {
		return bestTransform, bestInliers, nil
	}
	refinedInliers := countInliers(refined, srcPoints, dstPoints, params.Threshold)
	if len(refinedInliers) < len(bestInliers) {
		return bestTransform, bestInliers, nil
	}
	return refined, refinedInliers, nil
}

// HomographyFromPoints computes the exact homography taking four source
// points onto four destination points.
func HomographyFromPoints(src, dst []geometry.Point2D) (geometry.Homography, error) {
	if len(src) != minSample || len(dst) != minSample {
		return geometry.Homography{}, fmt.Errorf("need exactly %d points", minSample)
	}
	if geometry.AnyCollinear(src, 1e-9) || geometry.AnyCollinear(dst, 1e-9) {
		return geometry.Homography{}, fmt.Errorf("degenerate points")
	}
	return computeHomographyDLT(src, dst)
}

// computeHomographyDLT solves for the homography with the normalised direct
// linear transform. With more than four pairs the result is the algebraic
// least-squares fit.
func computeHomographyDLT(src, dst []geometry.Point2D) (geometry.Homography, error) {
	n := len(src)
	if n < minSample || len(dst) != n {
		return geometry.Homography{}, fmt.Errorf("need at least %d point pairs", minSample)
	}

	srcT, srcNorm, err := normalizePoints(src)
	if err != nil {
		return geometry.Homography{}, err
	}
	dstT, dstNorm, err := normalizePoints(dst)
	if err != nil {
		return geometry.Homography{}, err
	}

	// Each pair contributes two rows of A*h = 0
	A := mat.NewDense(n*2, 9, nil)
	for i := 0; i < n; i++ {
		x, y := srcNorm[i].X, srcNorm[i].Y
		u, v := dstNorm[i].X, dstNorm[i].Y

		A.SetRow(i*2, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		A.SetRow(i*2+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	var svd mat.SVD
	if ok := svd.Factorize(A, mat.SVDFull); !ok {
		return geometry.Homography{}, fmt.Errorf("SVD factorization failed")
	}
	var vt mat.Dense
	svd.VTo(&vt)

	// h is the right singular vector of the smallest singular value
	var hn geometry.Homography
	for i := 0; i < 9; i++ {
		hn[i/3][i%3] = vt.At(i, 8)
	}

	dstInv, ok := dstT.Inverse()
	if !ok {
		return geometry.Homography{}, fmt.Errorf("singular normalization")
	}
	h := dstInv.Compose(hn).Compose(srcT)
	if math.Abs(h[2][2]) < 1e-12 {
		return geometry.Homography{}, fmt.Errorf("degenerate homography")
	}
	h = h.Normalize()
	if !h.IsFinite() || math.Abs(h.Determinant()) < 1e-12 {
		return geometry.Homography{}, fmt.Errorf("degenerate homography")
	}
	return h, nil
}

// normalizePoints translates the points to their centroid and scales them
// so the mean distance from the origin is sqrt(2).
func normalizePoints(points []geometry.Point2D) (geometry.Homography, []geometry.Point2D, error) {
	c := geometry.Centroid(points)
	mean := geometry.MeanDistance(points, c)
	if mean < 1e-12 {
		return geometry.Homography{}, nil, fmt.Errorf("coincident points")
	}
	s := math.Sqrt2 / mean
	t := geometry.Homography{
		{s, 0, -s * c.X},
		{0, s, -s * c.Y},
		{0, 0, 1},
	}
	out := make([]geometry.Point2D, len(points))
	for i, p := range points {
		out[i] = geometry.Point2D{X: s * (p.X - c.X), Y: s * (p.Y - c.Y)}
	}
	return t, out, nil
}

// countInliers returns the indices whose reprojection error is within threshold.
func countInliers(h geometry.Homography, src, dst []geometry.Point2D, threshold float64) []int {
	var inliers []int
	for i := range src {
		p, ok := h.Apply(src[i])
		if !ok {
			continue
		}
		if p.Distance(dst[i]) <= threshold {
			inliers = append(inliers, i)
		}
	}
	return inliers
}

// adaptiveIterations returns how many samples are needed to draw one
// all-inlier sample with the given confidence at the observed inlier ratio.
func adaptiveIterations(inliers, total int, confidence float64, current int) int {
	if confidence <= 0 || confidence >= 1 || total == 0 {
		return current
	}
	w := float64(inliers) / float64(total)
	pAllInliers := math.Pow(w, minSample)
	if pAllInliers >= 1 {
		return 0
	}
	if pAllInliers <= 0 {
		return current
	}
	k := math.Log(1-confidence) / math.Log(1-pAllInliers)
	if math.IsNaN(k) || k > float64(current) {
		return current
	}
	return int(math.Ceil(k))
}

// sampleIndices fills out with distinct random indices in [0, n).
func sampleIndices(rng *rand.Rand, n int, out []int) {
	for i := range out {
	retry:
		for {
			idx := rng.Intn(n)
			for j := 0; j < i; j++ {
				if out[j] == idx {
					continue retry
				}
			}
			out[i] = idx
			break
		}
	}
}

// CalculateAlignmentError calculates the mean reprojection error of the
// given pairs under transform.
func CalculateAlignmentError(srcPoints, dstPoints []geometry.Point2D, transform geometry.Homography) float64 {
	if len(srcPoints) != len(dstPoints) || len(srcPoints) == 0 {
		return math.Inf(1)
	}

	var totalError float64
	for i := range srcPoints {
		transformed, ok := transform.Apply(srcPoints[i])
		if !ok {
			return math.Inf(1)
		}
		totalError += transformed.Distance(dstPoints[i])
	}

	return totalError / float64(len(srcPoints))
}
