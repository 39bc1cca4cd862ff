package secuer

import (
	"fmt"
	"math/rand"
	"sort"

	"secuer/internal/domain"
	"secuer/internal/linalg"
)

// maxGapEigen bounds how many leading eigenvalues the gap estimator inspects.
const maxGapEigen = 50

// EstimateK estimates the number of clusters of g with the named method.
func EstimateK(g *Bipartite, method string, resolution float64, gapth int, seed int64) (int, error) {
	switch method {
	case domain.EstimateBiGraph:
		return estimateByGap(g, gapth, seed)
	case domain.EstimateSubGraph:
		return estimateByModularity(g, resolution, seed), nil
	}
	return 0, fmt.Errorf("estimate clusters: unknown method %q", method)
}

// estimateByGap locates the gapth widest gaps between consecutive leading
// eigenvalues of the normalized column graph and returns the largest of
// their positions.
func estimateByGap(g *Bipartite, gapth int, seed int64) (int, error) {
	l := g.Cols
	if l > maxGapEigen {
		l = maxGapEigen
	}
	if l < 2 {
		return 1, nil
	}
	vals, _, err := linalg.TopEigen(newSpectrum(g).m, l, seed)
	if err != nil {
		return 0, fmt.Errorf("estimate clusters: %w", err)
	}
	gaps := make([]int, len(vals)-1)
	for i := range gaps {
		gaps[i] = i
	}
	sort.SliceStable(gaps, func(a, b int) bool {
		return vals[gaps[a]]-vals[gaps[a]+1] > vals[gaps[b]]-vals[gaps[b]+1]
	})
	if gapth > len(gaps) {
		gapth = len(gaps)
	}
	k := 1
	for _, pos := range gaps[:gapth] {
		if pos+1 > k {
			k = pos + 1
		}
	}
	return k, nil
}

// estimateByModularity counts the communities Louvain finds in the column
// graph at the given resolution.
func estimateByModularity(g *Bipartite, resolution float64, seed int64) int {
	comm := Louvain(g.ColumnGraph(), resolution, seed)
	used := make(map[int]struct{})
	deg := g.ColDegrees()
	for j, c := range comm {
		// unused columns form singleton communities that say nothing about
		// the cluster structure of the rows
		if deg[j] > 0 {
			used[c] = struct{}{}
		}
	}
	if len(used) == 0 {
		return 1
	}
	return len(used)
}

// Louvain returns a community id per node of the dense weighted graph w,
// maximizing modularity at the given resolution. Nodes are visited in an
// order shuffled by seed.
func Louvain(w [][]float64, resolution float64, seed int64) []int {
	n := len(w)
	rng := rand.New(rand.NewSource(seed))
	member := make([]int, n)
	for i := range member {
		member[i] = i
	}
	graph := w
	for level := 0; level < 32; level++ {
		comm, moved := localMoving(graph, resolution, rng)
		if !moved {
			break
		}
		comm = Relabel(comm)
		k := 0
		for _, c := range comm {
			if c+1 > k {
				k = c + 1
			}
		}
		for i := range member {
			member[i] = comm[member[i]]
		}
		if k == len(graph) {
			break
		}
		graph = aggregate(graph, comm, k)
	}
	return Relabel(member)
}

// localMoving greedily moves single nodes between communities until no move
// improves modularity.
func localMoving(w [][]float64, resolution float64, rng *rand.Rand) ([]int, bool) {
	n := len(w)
	k := make([]float64, n)
	m2 := 0.0
	for i := range w {
		for _, v := range w[i] {
			k[i] += v
		}
		m2 += k[i]
	}
	comm := make([]int, n)
	tot := make([]float64, n)
	for i := range comm {
		comm[i] = i
		tot[i] = k[i]
	}
	if m2 == 0 {
		return comm, false
	}

	order := rng.Perm(n)
	link := make([]float64, n)
	seen := make([]bool, n)
	moved := false
	for pass := 0; pass < 100; pass++ {
		changed := false
		for _, i := range order {
			var cands []int
			for j, v := range w[i] {
				if j == i || v == 0 {
					continue
				}
				c := comm[j]
				if !seen[c] {
					seen[c] = true
					cands = append(cands, c)
				}
				link[c] += v
			}
			own := comm[i]
			tot[own] -= k[i]
			best := own
			bestGain := link[own] - resolution*tot[own]*k[i]/m2
			for _, c := range cands {
				if gain := link[c] - resolution*tot[c]*k[i]/m2; gain > bestGain+1e-12 {
					best, bestGain = c, gain
				}
			}
			tot[best] += k[i]
			if best != own {
				comm[i] = best
				changed, moved = true, true
			}
			for _, c := range cands {
				link[c], seen[c] = 0, false
			}
			link[own] = 0
		}
		if !changed {
			break
		}
	}
	return comm, moved
}

func aggregate(w [][]float64, comm []int, k int) [][]float64 {
	out := make([][]float64, k)
	for c := range out {
		out[c] = make([]float64, k)
	}
	for i := range w {
		for j, v := range w[i] {
			out[comm[i]][comm[j]] += v
		}
	}
	return out
}
