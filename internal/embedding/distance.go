package embedding

import (
	"math"

	"github.com/your-org/eventface/internal/faceerr"
)

// Euclidean returns sqrt(sum((a[i]-b[i])^2)) accumulated in float64.
// Both vectors must have the same length; callers validate beforehand.
func Euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// ValidateDimension checks v has exactly dim finite components.
func ValidateDimension(v []float32, dim int) error {
	if len(v) != dim {
		return faceerr.Validation("embedding", "expected %d dimensions, got %d", dim, len(v))
	}
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return faceerr.Validation("embedding", "component %d is not finite", i)
		}
	}
	return nil
}

// ValidateAll runs ValidateDimension on every vector, reporting the first
// offending index.
func ValidateAll(vs [][]float32, dim int) error {
	for i, v := range vs {
		if err := ValidateDimension(v, dim); err != nil {
			return faceerr.Validation("embedding", "face %d: %v", i, err)
		}
	}
	return nil
}

// Normalize scales v to unit L2 norm in place. Zero vectors are left as is.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
}
