// Package neighbors answers k-nearest-anchor queries for the bipartite
// graph builder.
package neighbors

import (
	"errors"
	"sync"

	"secuer/internal/linalg"
)

// Result is one neighbor of a query vector.
type Result struct {
	Index    int
	Distance float64
}

// Index is a brute-force nearest-neighbor index under a configurable metric.
// Reads are safe for concurrent use once loading is done.
type Index struct {
	mu        sync.RWMutex
	metric    linalg.Metric
	dimension int
	vectors   [][]float64
}

// NewIndex creates an empty index using metric.
func NewIndex(metric linalg.Metric) *Index { return &Index{metric: metric} }

// Init resets the index for vectors of the given dimension.
func (s *Index) Init(dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.vectors = nil
	return nil
}

// Upsert appends vectors; their indices continue from the current size.
func (s *Index) Upsert(vectors [][]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		if len(v) != s.dimension {
			return errors.New("vector dimension mismatch")
		}
	}
	s.vectors = append(s.vectors, vectors...)
	return nil
}

// Len returns the number of indexed vectors.
func (s *Index) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}

// Search returns the topK closest vectors, nearest first. Ties keep index
// order so results are deterministic.
func (s *Index) Search(vector []float64, topK int) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(vector) != s.dimension {
		return nil, errors.New("query dimension mismatch")
	}
	if topK <= 0 {
		topK = 5
	}
	dists := make([]float64, len(s.vectors))
	for i := range s.vectors {
		dists[i] = s.metric(s.vectors[i], vector)
	}
	idxs := argsortAsc(dists)
	if topK > len(idxs) {
		topK = len(idxs)
	}
	results := make([]Result, topK)
	for i := 0; i < topK; i++ {
		j := idxs[i]
		results[i] = Result{Index: j, Distance: dists[j]}
	}
	return results, nil
}

func argsortAsc(vals []float64) []int {
	idxs := make([]int, len(vals))
	for i := range vals {
		idxs[i] = i
	}
	quicksort(idxs, vals, 0, len(idxs)-1)
	return idxs
}

func less(vals []float64, a, b int) bool {
	if vals[a] != vals[b] {
		return vals[a] < vals[b]
	}
	return a < b
}

func quicksort(idxs []int, vals []float64, lo, hi int) {
	if lo >= hi {
		return
	}
	i, j := lo, hi
	pivot := idxs[(lo+hi)/2]
	for i <= j {
		for less(vals, idxs[i], pivot) {
			i++
		}
		for less(vals, pivot, idxs[j]) {
			j--
		}
		if i <= j {
			idxs[i], idxs[j] = idxs[j], idxs[i]
			i++
			j--
		}
	}
	if lo < j {
		quicksort(idxs, vals, lo, j)
	}
	if i < hi {
		quicksort(idxs, vals, i, hi)
	}
}
