// Package vector provides exact similarity search over in-memory vectors.
package vector

import (
	"fmt"
	"math"
)

// Metric selects how a query is scored against stored vectors. Higher scores are
// always more similar.
type Metric string

const (
	// Cosine scores by cosine similarity in [-1, 1].
	Cosine Metric = "cosine"
	// Euclidean scores by 1/(1+distance) in (0, 1].
	Euclidean Metric = "euclidean"
)

// ParseMetric returns the metric named s; empty means Cosine.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case Cosine, "":
		return Cosine, nil
	case Euclidean:
		return Euclidean, nil
	default:
		return "", fmt.Errorf("unknown metric %q (supported: cosine, euclidean)", s)
	}
}

// Score returns the similarity of a and b under m. Vectors of different length score 0.
func (m Metric) Score(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	if m == Euclidean {
		return 1 / (1 + EuclideanDistance(a, b))
	}
	na, nb := L2Norm(a), L2Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return InnerProduct(a, b) / (na * nb)
}

// InnerProduct returns the inner product of two vectors (for normalized vectors equals cosine similarity).
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// EuclideanDistance returns the L2 distance between a and b.
func EuclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}
