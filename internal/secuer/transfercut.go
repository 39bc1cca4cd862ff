package secuer

import (
	"fmt"
	"math"

	"secuer/internal/domain"
	"secuer/internal/linalg"
)

const kmeansMaxIter = 100

// spectrum is the normalized column graph of a bipartite graph together with
// the scaling needed to map its eigenvectors back onto the columns.
type spectrum struct {
	m       [][]float64
	invSqrt []float64
}

func newSpectrum(g *Bipartite) spectrum {
	w := g.ColumnGraph()
	deg := g.ColDegrees()
	inv := make([]float64, len(deg))
	for j, d := range deg {
		if d > 0 {
			inv[j] = 1 / math.Sqrt(d)
		}
	}
	for a := range w {
		for b := range w[a] {
			w[a][b] *= inv[a] * inv[b]
		}
	}
	return spectrum{m: w, invSqrt: inv}
}

// TransferCut partitions the row nodes of g into k groups. The column graph
// is decomposed, its k leading eigenvectors are transferred to the rows and
// the rows (Kmeans) or the columns (AnchorVote) are clustered in that space.
// Labels are numbered by first appearance.
func TransferCut(g *Bipartite, k int, method string, seed int64) (domain.LabelVector, error) {
	n := g.Rows()
	if n == 0 {
		return nil, fmt.Errorf("transfer cut: empty graph")
	}
	if k > g.Cols {
		k = g.Cols
	}
	if k > n {
		k = n
	}
	if k <= 1 {
		return make(domain.LabelVector, n), nil
	}
	if method != domain.PartitionKmeans && method != domain.PartitionAnchorVote {
		return nil, fmt.Errorf("transfer cut: unknown partition method %q", method)
	}

	sp := newSpectrum(g)
	vals, vecs, err := linalg.TopEigen(sp.m, k, seed)
	if err != nil {
		return nil, fmt.Errorf("transfer cut: %w", err)
	}

	// column embedding v = D⁻½u, one row per column node
	cols := make([][]float64, g.Cols)
	for j := range cols {
		cols[j] = make([]float64, k)
		for c := 0; c < k; c++ {
			cols[j][c] = vecs[c][j] * sp.invSqrt[j]
		}
	}

	var labels []int
	switch method {
	case domain.PartitionKmeans:
		scale := make([]float64, k)
		for c, mu := range vals {
			if mu > 1e-12 {
				scale[c] = 1 / math.Sqrt(mu)
			}
		}
		rows := make([][]float64, n)
		deg := g.RowDegrees()
		for i, edges := range g.Edges {
			f := make([]float64, k)
			for _, e := range edges {
				linalg.Axpy(e.Weight, cols[e.Col], f)
			}
			if deg[i] > 0 {
				for c := range f {
					f[c] *= scale[c] / deg[i]
				}
			}
			rows[i] = unit(f)
		}
		res, err := linalg.KMeans(rows, k, seed, kmeansMaxIter)
		if err != nil {
			return nil, fmt.Errorf("transfer cut: %w", err)
		}
		labels = res.Labels
	case domain.PartitionAnchorVote:
		for j := range cols {
			cols[j] = unit(cols[j])
		}
		res, err := linalg.KMeans(cols, k, seed, kmeansMaxIter)
		if err != nil {
			return nil, fmt.Errorf("transfer cut: %w", err)
		}
		labels = make([]int, n)
		for i, j := range g.Strongest() {
			if j >= 0 {
				labels[i] = res.Labels[j]
			}
		}
	}
	return Relabel(labels), nil
}

// Relabel renumbers labels 0..K-1 in order of first appearance.
func Relabel(labels []int) domain.LabelVector {
	out := make(domain.LabelVector, len(labels))
	ids := make(map[int]int)
	for i, l := range labels {
		id, ok := ids[l]
		if !ok {
			id = len(ids)
			ids[l] = id
		}
		out[i] = id
	}
	return out
}

func unit(v []float64) []float64 {
	if n := linalg.Norm(v); n > 0 {
		for i := range v {
			v[i] /= n
		}
	}
	return v
}
