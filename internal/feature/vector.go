package feature

import (
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch signals a programming error: vectors from different
// extractor configurations were compared. It is never a user-facing outcome.
var ErrDimensionMismatch = errors.New("feature vector dimension mismatch")

// Vector is a signature produced by an Extractor.
type Vector []float64

func checkDims(a, b []float64) error {
	if len(a) != len(b) {
		return fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}
	return nil
}

// Cosine returns the cosine similarity in [-1, 1]. A zero vector has no
// direction and yields 0.
func Cosine(a, b []float64) (float64, error) {
	if err := checkDims(a, b); err != nil {
		return 0, err
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// rounding can push identical vectors a hair past 1
	return math.Max(-1, math.Min(1, sim)), nil
}

// Euclidean returns the L2 distance.
func Euclidean(a, b []float64) (float64, error) {
	if err := checkDims(a, b); err != nil {
		return 0, err
	}

	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Mean returns the componentwise arithmetic mean.
func Mean(vectors ...[]float64) (Vector, error) {
	if len(vectors) == 0 {
		return nil, errors.New("mean of zero vectors")
	}

	dim := len(vectors[0])
	mean := make(Vector, dim)
	for _, v := range vectors {
		if err := checkDims(vectors[0], v); err != nil {
			return nil, err
		}
		for i, x := range v {
			mean[i] += x
		}
	}

	n := float64(len(vectors))
	for i := range mean {
		mean[i] /= n
	}
	return mean, nil
}

// Clamp01 bounds a confidence to [0, 1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ApproxEqual reports whether a and b have the same dimension and differ by
// at most tol in every component.
func ApproxEqual(a, b []float64, tol float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}
