// Package geometry provides basic geometric types used throughout the application.
package geometry

import (
	"math"
)

// Point2D represents a 2D point with floating-point coordinates.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance to another point.
func (p Point2D) Distance(other Point2D) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Homography is a 3x3 projective transform in row-major order.
//
//	[h00 h01 h02]   [x]
//	[h10 h11 h12] * [y]
//	[h20 h21 h22]   [1]
//
// The matrix is defined up to scale; Normalize fixes h22 = 1.
type Homography [3][3]float64

// Apply maps a point through the homography. The second return is false
// when the point maps to infinity (w ~ 0).
func (h Homography) Apply(p Point2D) (Point2D, bool) {
	w := h[2][0]*p.X + h[2][1]*p.Y + h[2][2]
	if math.Abs(w) < 1e-12 {
		return Point2D{}, false
	}
	return Point2D{
		X: (h[0][0]*p.X + h[0][1]*p.Y + h[0][2]) / w,
		Y: (h[1][0]*p.X + h[1][1]*p.Y + h[1][2]) / w,
	}, true
}

// Compose returns h * other: applying the result equals applying other first, then h.
func (h Homography) Compose(other Homography) Homography {
	var out Homography
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = h[i][0]*other[0][j] + h[i][1]*other[1][j] + h[i][2]*other[2][j]
		}
	}
	return out
}

// Determinant returns the determinant of the 3x3 matrix.
func (h Homography) Determinant() float64 {
	return h[0][0]*(h[1][1]*h[2][2]-h[1][2]*h[2][1]) -
		h[0][1]*(h[1][0]*h[2][2]-h[1][2]*h[2][0]) +
		h[0][2]*(h[1][0]*h[2][1]-h[1][1]*h[2][0])
}

// Inverse returns the inverse homography, if it exists.
func (h Homography) Inverse() (Homography, bool) {
	det := h.Determinant()
	if math.Abs(det) < 1e-12 {
		return Homography{}, false
	}
	inv := 1.0 / det
	out := Homography{
		{
			(h[1][1]*h[2][2] - h[1][2]*h[2][1]) * inv,
			(h[0][2]*h[2][1] - h[0][1]*h[2][2]) * inv,
			(h[0][1]*h[1][2] - h[0][2]*h[1][1]) * inv,
		},
		{
			(h[1][2]*h[2][0] - h[1][0]*h[2][2]) * inv,
			(h[0][0]*h[2][2] - h[0][2]*h[2][0]) * inv,
			(h[0][2]*h[1][0] - h[0][0]*h[1][2]) * inv,
		},
		{
			(h[1][0]*h[2][1] - h[1][1]*h[2][0]) * inv,
			(h[0][1]*h[2][0] - h[0][0]*h[2][1]) * inv,
			(h[0][0]*h[1][1] - h[0][1]*h[1][0]) * inv,
		},
	}
	return out.Normalize(), true
}

// Normalize scales the matrix so that h22 == 1. A matrix with h22 ~ 0 is
// returned unchanged.
func (h Homography) Normalize() Homography {
	s := h[2][2]
	if math.Abs(s) < 1e-12 {
		return h
	}
	var out Homography
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = h[i][j] / s
		}
	}
	return out
}

// IsFinite reports whether every element is a finite number.
func (h Homography) IsFinite() bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.IsNaN(h[i][j]) || math.IsInf(h[i][j], 0) {
				return false
			}
		}
	}
	return true
}

// Centroid computes the centroid (average position) of a set of points.
func Centroid(points []Point2D) Point2D {
	if len(points) == 0 {
		return Point2D{}
	}
	var sumX, sumY float64
	for _, p := range points {
		sumX += p.X
		sumY += p.Y
	}
	n := float64(len(points))
	return Point2D{X: sumX / n, Y: sumY / n}
}

// MeanDistance returns the average distance of the points from center.
func MeanDistance(points []Point2D, center Point2D) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range points {
		sum += p.Distance(center)
	}
	return sum / float64(len(points))
}

// RectCorners returns the four corners of a width x height image in
// clockwise order starting at the origin.
func RectCorners(width, height int) []Point2D {
	w, h := float64(width), float64(height)
	return []Point2D{{X: 0, Y: 0}, {X: w, Y: 0}, {X: w, Y: h}, {X: 0, Y: h}}
}
