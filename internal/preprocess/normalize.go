package preprocess

import (
	"fmt"
	"math"
	"sort"

	"secuer/internal/anndata"
	"secuer/internal/config"
)

// NormalizeTotal rescales every observation in place so its values sum to
// the target. Without a target the median of the non-zero totals is used.
// Observations with a zero total are left untouched.
func NormalizeTotal(m *anndata.Matrix, o config.NormOptions) error {
	totals := make([]float64, m.NObs())
	for i, row := range m.X {
		for _, v := range row {
			totals[i] += v
		}
	}
	var target float64
	if o.TargetSum != nil {
		target = *o.TargetSum
	} else {
		target = medianNonZero(totals)
	}
	if target <= 0 || math.IsNaN(target) || math.IsInf(target, 0) {
		return fmt.Errorf("normalize: invalid target sum %g", target)
	}
	for i, row := range m.X {
		if totals[i] == 0 {
			continue
		}
		f := target / totals[i]
		for j := range row {
			row[j] *= f
		}
	}
	return nil
}

// Log1p replaces every value v with ln(1+v) in place.
func Log1p(m *anndata.Matrix) error {
	for i, row := range m.X {
		for j, v := range row {
			if v < -1 {
				return fmt.Errorf("log1p: value %g at (%d,%d) below -1", v, i, j)
			}
			row[j] = math.Log1p(v)
		}
	}
	return nil
}

// Scale standardizes every feature to zero mean and unit variance in place
// and clips the result to [-maxValue, maxValue]. Constant features become 0.
func Scale(m *anndata.Matrix, maxValue float64) error {
	n := m.NObs()
	if n == 0 {
		return fmt.Errorf("scale: empty matrix")
	}
	means, vars := columnMeanVar(m.X)
	for j := range means {
		std := math.Sqrt(vars[j])
		if std == 0 {
			std = 1
		}
		for _, row := range m.X {
			v := (row[j] - means[j]) / std
			if maxValue > 0 {
				v = math.Max(-maxValue, math.Min(maxValue, v))
			}
			row[j] = v
		}
	}
	return nil
}

// columnMeanVar returns per-column means and unbiased variances.
func columnMeanVar(x [][]float64) ([]float64, []float64) {
	if len(x) == 0 {
		return nil, nil
	}
	d := len(x[0])
	means := make([]float64, d)
	vars := make([]float64, d)
	for _, row := range x {
		for j, v := range row {
			means[j] += v
		}
	}
	n := float64(len(x))
	for j := range means {
		means[j] /= n
	}
	for _, row := range x {
		for j, v := range row {
			dv := v - means[j]
			vars[j] += dv * dv
		}
	}
	denom := n - 1
	if denom < 1 {
		denom = 1
	}
	for j := range vars {
		vars[j] /= denom
	}
	return means, vars
}

func medianNonZero(vals []float64) float64 {
	nz := make([]float64, 0, len(vals))
	for _, v := range vals {
		if v > 0 {
			nz = append(nz, v)
		}
	}
	if len(nz) == 0 {
		return 0
	}
	sort.Float64s(nz)
	mid := len(nz) / 2
	if len(nz)%2 == 1 {
		return nz[mid]
	}
	return (nz[mid-1] + nz[mid]) / 2
}
