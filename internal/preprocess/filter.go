package preprocess

import (
	"fmt"

	"secuer/internal/anndata"
	"secuer/internal/config"
)

// FilterGenes keeps features whose total count and number of expressing
// observations fall inside the configured bounds. It returns a new matrix.
func FilterGenes(m *anndata.Matrix, o config.GeneOptions) (*anndata.Matrix, error) {
	counts := make([]float64, m.NVars())
	cells := make([]float64, m.NVars())
	for _, row := range m.X {
		for j, v := range row {
			counts[j] += v
			if v > 0 {
				cells[j]++
			}
		}
	}
	keep := make([]int, 0, m.NVars())
	for j := range counts {
		if within(counts[j], o.MinCounts, o.MaxCounts) && within(cells[j], o.MinCells, o.MaxCells) {
			keep = append(keep, j)
		}
	}
	if len(keep) == 0 {
		return nil, fmt.Errorf("filter genes: no feature passes the thresholds")
	}
	out := m.SubsetVars(keep)
	out.Var["n_counts"] = formatAt(counts, keep)
	out.Var["n_cells"] = formatAt(cells, keep)
	return out, nil
}

// FilterCells keeps observations whose total count and number of expressed
// features fall inside the configured bounds. It returns a new matrix.
func FilterCells(m *anndata.Matrix, o config.CellOptions) (*anndata.Matrix, error) {
	counts := make([]float64, m.NObs())
	genes := make([]float64, m.NObs())
	keep := make([]int, 0, m.NObs())
	for i, row := range m.X {
		for _, v := range row {
			counts[i] += v
			if v > 0 {
				genes[i]++
			}
		}
		if within(counts[i], o.MinCounts, o.MaxCounts) && within(genes[i], o.MinGenes, o.MaxGenes) {
			keep = append(keep, i)
		}
	}
	if len(keep) == 0 {
		return nil, fmt.Errorf("filter cells: no observation passes the thresholds")
	}
	out := m.SubsetObs(keep)
	out.Obs["n_counts"] = formatAt(counts, keep)
	out.Obs["n_genes"] = formatAt(genes, keep)
	return out, nil
}

func within(v float64, lo, hi *float64) bool {
	if lo != nil && v < *lo {
		return false
	}
	if hi != nil && v > *hi {
		return false
	}
	return true
}

func formatAt(vals []float64, idx []int) []string {
	out := make([]string, len(idx))
	for i, k := range idx {
		out[i] = fmt.Sprintf("%g", vals[k])
	}
	return out
}
