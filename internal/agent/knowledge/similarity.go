package knowledge

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDimensionMismatch is returned when a query embedding and a stored
	// embedding do not have the same length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrNonFinite is returned when an embedding holds NaN or an infinity.
	ErrNonFinite = errors.New("embedding has a non-finite component")
)

// CosineSimilarity returns the cosine of the angle between a and b.
// A zero-magnitude vector has similarity 0 with everything.
// Each vector is scaled by its largest component first, so sums of squares
// cannot overflow for large finite inputs.
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	scaleA, err := maxAbs(a)
	if err != nil {
		return 0, err
	}
	scaleB, err := maxAbs(b)
	if err != nil {
		return 0, err
	}
	if scaleA == 0 || scaleB == 0 {
		return 0, nil
	}

	var dot, magA, magB float64
	for i := range a {
		x, y := a[i]/scaleA, b[i]/scaleB
		dot += x * y
		magA += x * x
		magB += y * y
	}
	sim := dot / (math.Sqrt(magA) * math.Sqrt(magB))
	// rounding can push the ratio just past ±1
	return math.Max(-1, math.Min(1, sim)), nil
}

func maxAbs(v []float64) (float64, error) {
	var m float64
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, fmt.Errorf("%w at index %d", ErrNonFinite, i)
		}
		if ax := math.Abs(x); ax > m {
			m = ax
		}
	}
	return m, nil
}
