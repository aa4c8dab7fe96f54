package distance

import (
	"fmt"
	"math"
	"strings"
)

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}

	return sum
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
func SquaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}

	return sum
}

// Cosine returns 1 minus the cosine similarity of a and b. A zero vector
// is at distance 1 from everything.
func Cosine(a, b []float32) float32 {
	var dot, na, nb float32
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}

	if na == 0 || nb == 0 {
		return 1
	}

	return 1 - dot/float32(math.Sqrt(float64(na)*float64(nb)))
}

// NegativeDot returns -Dot(a, b) so that larger inner products rank first.
func NegativeDot(a, b []float32) float32 {
	return -Dot(a, b)
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm.
func NormalizeL2InPlace(v []float32) bool {
	if len(v) == 0 {
		return false
	}

	norm2 := Dot(v, v)
	if norm2 == 0 {
		return false
	}

	inv := float32(1 / math.Sqrt(float64(norm2)))
	for i := range v {
		v[i] *= inv
	}

	return true
}

// Metric represents the distance metric used for vector comparison.
type Metric int

const (
	MetricL2 Metric = iota
	MetricCosine
	MetricDot
)

func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "L2"
	case MetricCosine:
		return "Cosine"
	case MetricDot:
		return "Dot"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

// ParseMetric parses the name of a metric, case-insensitively.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(s) {
	case "l2", "":
		return MetricL2, nil
	case "cosine":
		return MetricCosine, nil
	case "dot":
		return MetricDot, nil
	default:
		return 0, fmt.Errorf("unknown metric %q", s)
	}
}

// Func is a function type for distance calculation.
type Func func(a, b []float32) float32

// Provider returns the distance function for the given metric.
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricL2:
		return SquaredL2, nil
	case MetricCosine:
		return Cosine, nil
	case MetricDot:
		return NegativeDot, nil
	default:
		return nil, fmt.Errorf("unsupported metric for float32: %v", m)
	}
}
