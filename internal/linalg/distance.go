package linalg

import (
	"fmt"
	"math"

	"secuer/internal/domain"
)

// Metric measures the dissimilarity of two equal-length vectors.
type Metric func(a, b []float64) float64

// MetricByName maps a distance name onto its implementation.
func MetricByName(name string) (Metric, error) {
	switch name {
	case domain.DistanceEuclidean:
		return Euclidean, nil
	case domain.DistanceSqEuclidean:
		return SqEuclidean, nil
	case domain.DistanceCosine:
		return Cosine, nil
	case domain.DistanceL1:
		return L1, nil
	}
	return nil, fmt.Errorf("linalg: unknown distance %q", name)
}

// SqEuclidean returns the squared Euclidean distance.
func SqEuclidean(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// Euclidean returns the Euclidean distance.
func Euclidean(a, b []float64) float64 { return math.Sqrt(SqEuclidean(a, b)) }

// L1 returns the city-block distance.
func L1(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += math.Abs(a[i] - b[i])
	}
	return sum
}

// Cosine returns 1 minus the cosine similarity; zero vectors are at
// distance 1 from everything.
func Cosine(a, b []float64) float64 {
	na, nb := Norm(a), Norm(b)
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - Dot(a, b)/(na*nb)
}
