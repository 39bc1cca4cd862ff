package linalg

import (
	"errors"
	"math"
	"math/rand"
)

// ErrEmptyInput is returned by KMeans when there is nothing to cluster.
var ErrEmptyInput = errors.New("linalg: no points to cluster")

// KMeansResult holds the output of KMeans.
type KMeansResult struct {
	Labels    []int
	Centers   [][]float64
	Iter      int
	Converged bool
}

// KMeans runs Lloyd iterations from a k-means++ initialization drawn from a
// source seeded with seed. k is clamped to the number of points.
func KMeans(points [][]float64, k int, seed int64, maxIter int) (KMeansResult, error) {
	n := len(points)
	if n == 0 {
		return KMeansResult{}, ErrEmptyInput
	}
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	if maxIter <= 0 {
		maxIter = 100
	}
	rng := rand.New(rand.NewSource(seed))
	centers := seedPlusPlus(points, k, rng)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}

	res := KMeansResult{}
	for iter := 1; iter <= maxIter; iter++ {
		res.Iter = iter
		changed := 0
		for i, p := range points {
			best, bestD := 0, math.Inf(1)
			for c, center := range centers {
				if d := SqEuclidean(p, center); d < bestD {
					best, bestD = c, d
				}
			}
			if labels[i] != best {
				labels[i] = best
				changed++
			}
		}
		if changed == 0 {
			res.Converged = true
			break
		}
		centers = recenter(points, labels, centers)
	}
	res.Labels = labels
	res.Centers = centers
	return res, nil
}

func seedPlusPlus(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(points)
	centers := make([][]float64, 0, k)
	centers = append(centers, append([]float64(nil), points[rng.Intn(n)]...))
	dist := make([]float64, n)
	for i, p := range points {
		dist[i] = SqEuclidean(p, centers[0])
	}
	for len(centers) < k {
		total := 0.0
		for _, d := range dist {
			total += d
		}
		pick := 0
		if total > 0 {
			target := rng.Float64() * total
			for i, d := range dist {
				target -= d
				if target <= 0 {
					pick = i
					break
				}
				pick = i
			}
		} else {
			pick = rng.Intn(n)
		}
		c := append([]float64(nil), points[pick]...)
		centers = append(centers, c)
		for i, p := range points {
			if d := SqEuclidean(p, c); d < dist[i] {
				dist[i] = d
			}
		}
	}
	return centers
}

// recenter computes cluster means. An empty cluster takes the point that is
// farthest from its current center.
func recenter(points [][]float64, labels []int, old [][]float64) [][]float64 {
	k, dim := len(old), len(points[0])
	sums := make([][]float64, k)
	counts := make([]int, k)
	for c := range sums {
		sums[c] = make([]float64, dim)
	}
	for i, p := range points {
		Axpy(1, p, sums[labels[i]])
		counts[labels[i]]++
	}
	for c := range sums {
		if counts[c] == 0 {
			far, farD := 0, -1.0
			for i, p := range points {
				if d := SqEuclidean(p, old[labels[i]]); d > farD {
					far, farD = i, d
				}
			}
			sums[c] = append([]float64(nil), points[far]...)
			continue
		}
		for j := range sums[c] {
			sums[c][j] /= float64(counts[c])
		}
	}
	return sums
}
