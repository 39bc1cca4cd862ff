package ensemble

import (
	"fmt"

	"secuer/internal/domain"
	"secuer/internal/secuer"
)

// CoAssociation records how often pairs of observations share a label across
// a set of runs. It is stored as the indicator matrix H with one column per
// (run, label) so that memory stays linear in the number of observations.
type CoAssociation struct {
	runs    int
	cols    int
	columns [][]int // columns[i][r] is the H column observation i hits in run r
}

// NewCoAssociation builds the structure from runs of equal length. Label ids
// need not be comparable across runs.
func NewCoAssociation(runs []domain.LabelVector) (*CoAssociation, error) {
	if len(runs) == 0 {
		return nil, fmt.Errorf("co-association: no runs")
	}
	n := len(runs[0])
	ca := &CoAssociation{runs: len(runs), columns: make([][]int, n)}
	for i := range ca.columns {
		ca.columns[i] = make([]int, len(runs))
	}
	for r, labels := range runs {
		if len(labels) != n {
			return nil, fmt.Errorf("co-association: run %d has %d labels, want %d", r, len(labels), n)
		}
		compact := secuer.Relabel(labels)
		offset := ca.cols
		for i, l := range compact {
			ca.columns[i][r] = offset + l
		}
		ca.cols += compact.NumClusters()
	}
	return ca, nil
}

// Len returns the number of observations.
func (c *CoAssociation) Len() int { return len(c.columns) }

// Runs returns the number of runs aggregated.
func (c *CoAssociation) Runs() int { return c.runs }

// Pair returns the fraction of runs in which observations i and j share a
// label.
func (c *CoAssociation) Pair(i, j int) float64 {
	same := 0
	for r := 0; r < c.runs; r++ {
		if c.columns[i][r] == c.columns[j][r] {
			same++
		}
	}
	return float64(same) / float64(c.runs)
}

// Graph returns H/M as a bipartite graph between observations and base
// clusters. HHᵀ/M of this graph is the co-association matrix.
func (c *CoAssociation) Graph() *secuer.Bipartite {
	w := 1 / float64(c.runs)
	g := &secuer.Bipartite{Cols: c.cols, Edges: make([][]secuer.Edge, len(c.columns))}
	for i, cols := range c.columns {
		edges := make([]secuer.Edge, len(cols))
		for r, col := range cols {
			edges[r] = secuer.Edge{Col: col, Weight: w}
		}
		g.Edges[i] = edges
	}
	return g
}
