package secuer

import (
	"fmt"
	"math"

	"secuer/internal/domain"
	"secuer/internal/linalg"
	"secuer/internal/neighbors"
)

// Edge is one weighted link from a row node to a column node.
type Edge struct {
	Col    int
	Weight float64
}

// Bipartite is a sparse weighted graph between Rows row nodes (observations)
// and Cols column nodes (anchors or base clusters).
type Bipartite struct {
	Cols  int
	Edges [][]Edge
}

// Rows returns the number of row nodes.
func (g *Bipartite) Rows() int { return len(g.Edges) }

// RowDegrees returns the weighted degree of every row node.
func (g *Bipartite) RowDegrees() []float64 {
	out := make([]float64, len(g.Edges))
	for i, row := range g.Edges {
		for _, e := range row {
			out[i] += e.Weight
		}
	}
	return out
}

// ColDegrees returns the weighted degree of every column node.
func (g *Bipartite) ColDegrees() []float64 {
	out := make([]float64, g.Cols)
	for _, row := range g.Edges {
		for _, e := range row {
			out[e.Col] += e.Weight
		}
	}
	return out
}

// Strongest returns, for every row, the column of its heaviest edge (lowest
// column on ties) or -1 for an isolated row.
func (g *Bipartite) Strongest() []int {
	out := make([]int, len(g.Edges))
	for i, row := range g.Edges {
		best, bestW := -1, math.Inf(-1)
		for _, e := range row {
			if e.Weight > bestW || (e.Weight == bestW && e.Col < best) {
				best, bestW = e.Col, e.Weight
			}
		}
		out[i] = best
	}
	return out
}

// ColumnGraph returns the dense column-column similarity Bᵀ D⁻¹ B where D
// holds the row degrees. Isolated rows contribute nothing.
func (g *Bipartite) ColumnGraph() [][]float64 {
	w := make([][]float64, g.Cols)
	for j := range w {
		w[j] = make([]float64, g.Cols)
	}
	deg := g.RowDegrees()
	for i, row := range g.Edges {
		if deg[i] <= 0 {
			continue
		}
		for _, a := range row {
			for _, b := range row {
				w[a.Col][b.Col] += a.Weight * b.Weight / deg[i]
			}
		}
	}
	return w
}

// BuildAnchorGraph links every observation to its knn nearest anchors and
// weighs each link with the configured kernel.
func BuildAnchorGraph(points, anchors [][]float64, knn int, distance, kernel string) (*Bipartite, error) {
	if len(anchors) == 0 {
		return nil, fmt.Errorf("anchor graph: no anchors")
	}
	metric, err := linalg.MetricByName(distance)
	if err != nil {
		return nil, err
	}
	index := neighbors.NewIndex(metric)
	if err := index.Init(len(anchors[0])); err != nil {
		return nil, fmt.Errorf("anchor graph: %w", err)
	}
	if err := index.Upsert(anchors); err != nil {
		return nil, fmt.Errorf("anchor graph: %w", err)
	}
	if knn > index.Len() {
		knn = index.Len()
	}

	hits := make([][]neighbors.Result, len(points))
	for i, p := range points {
		res, err := index.Search(p, knn)
		if err != nil {
			return nil, fmt.Errorf("anchor graph: observation %d: %w", i, err)
		}
		hits[i] = res
	}

	g := &Bipartite{Cols: len(anchors), Edges: make([][]Edge, len(points))}
	switch kernel {
	case domain.KernelLocalScaled:
		for i, res := range hits {
			sigma := 0.0
			for _, r := range res {
				sigma += r.Distance
			}
			g.Edges[i] = weigh(res, sigma/float64(len(res)))
		}
	case domain.KernelGaussian:
		sum, cnt := 0.0, 0
		for _, res := range hits {
			for _, r := range res {
				sum += r.Distance
				cnt++
			}
		}
		sigma := 0.0
		if cnt > 0 {
			sigma = sum / float64(cnt)
		}
		for i, res := range hits {
			g.Edges[i] = weigh(res, sigma)
		}
	default:
		return nil, fmt.Errorf("anchor graph: unknown kernel %q", kernel)
	}
	return g, nil
}

// weigh turns neighbor distances into exp(-d²/2σ²) weights. A row whose
// weights all underflow keeps a unit link to its nearest anchor.
func weigh(res []neighbors.Result, sigma float64) []Edge {
	if sigma <= 0 || math.IsNaN(sigma) || math.IsInf(sigma, 0) {
		sigma = 1
	}
	edges := make([]Edge, 0, len(res))
	for _, r := range res {
		w := math.Exp(-r.Distance * r.Distance / (2 * sigma * sigma))
		if w > 0 {
			edges = append(edges, Edge{Col: r.Index, Weight: w})
		}
	}
	if len(edges) == 0 && len(res) > 0 {
		edges = append(edges, Edge{Col: res[0].Index, Weight: 1})
	}
	return edges
}
