package preprocess

import (
	"fmt"
	"math"

	"secuer/internal/linalg"
)

// pcaSeed fixes the start basis of the iterative eigen solver so the
// embedding is identical across invocations.
const pcaSeed = 0

// PCA projects the column-centered x onto its nComps leading principal axes.
// It returns the scores (one row per observation) and the variance explained
// by each component. The covariance matrix is decomposed when features do
// not outnumber observations, the Gram matrix otherwise.
func PCA(x [][]float64, nComps int) ([][]float64, []float64, error) {
	n := len(x)
	if n == 0 {
		return nil, nil, fmt.Errorf("pca: empty matrix")
	}
	d := len(x[0])
	k := nComps
	if k > d {
		k = d
	}
	if n > 1 && k > n-1 {
		k = n - 1
	}
	if k < 1 {
		k = 1
	}

	means := make([]float64, d)
	for _, row := range x {
		linalg.Axpy(1, row, means)
	}
	for j := range means {
		means[j] /= float64(n)
	}
	c := make([][]float64, n)
	for i, row := range x {
		r := make([]float64, d)
		for j, v := range row {
			r[j] = v - means[j]
		}
		c[i] = r
	}
	denom := float64(n - 1)
	if denom < 1 {
		denom = 1
	}

	scores := make([][]float64, n)
	for i := range scores {
		scores[i] = make([]float64, k)
	}
	var variance []float64
	if d <= n {
		cov := make([][]float64, d)
		for a := range cov {
			cov[a] = make([]float64, d)
		}
		for _, row := range c {
			for a := 0; a < d; a++ {
				if row[a] == 0 {
					continue
				}
				for b := a; b < d; b++ {
					cov[a][b] += row[a] * row[b]
				}
			}
		}
		for a := 0; a < d; a++ {
			for b := a; b < d; b++ {
				cov[a][b] /= denom
				cov[b][a] = cov[a][b]
			}
		}
		vals, vecs, err := linalg.TopEigen(cov, k, pcaSeed)
		if err != nil {
			return nil, nil, fmt.Errorf("pca: %w", err)
		}
		for i, row := range c {
			for comp, v := range vecs {
				scores[i][comp] = linalg.Dot(row, v)
			}
		}
		variance = clampNonNegative(vals)
	} else {
		gram := make([][]float64, n)
		for a := range gram {
			gram[a] = make([]float64, n)
		}
		for a := 0; a < n; a++ {
			for b := a; b < n; b++ {
				g := linalg.Dot(c[a], c[b])
				gram[a][b], gram[b][a] = g, g
			}
		}
		vals, vecs, err := linalg.TopEigen(gram, k, pcaSeed)
		if err != nil {
			return nil, nil, fmt.Errorf("pca: %w", err)
		}
		variance = make([]float64, k)
		for comp, u := range vecs {
			s := math.Sqrt(math.Max(vals[comp], 0))
			variance[comp] = math.Max(vals[comp], 0) / denom
			for i := range scores {
				scores[i][comp] = u[i] * s
			}
		}
	}
	return scores, variance, nil
}

func clampNonNegative(vals []float64) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = math.Max(v, 0)
	}
	return out
}
