package preprocess

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"secuer/internal/anndata"
	"secuer/internal/config"
	"secuer/internal/domain"
	"secuer/internal/logging"
)

const testDocument = `
gene:
  min_counts: null
  min_cells: null
  max_counts: null
  max_cells: null
cell:
  min_counts: null
  min_genes: null
  max_counts: null
  max_genes: null
norm:
  target_sum: 100
hvg:
  min_mean: 0.0125
  max_mean: 3
  min_disp: 0.5
  flavor: seurat
  n_top_genes: %s
  span: 0.3
pca:
  svd_solver: arpack
  n_comps: 5
`

func resolve(t *testing.T, nTop string) *config.Configuration {
	t.Helper()
	path := filepath.Join(t.TempDir(), "opts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(testDocument, nTop)), 0o644))
	cfg, err := config.Resolve(nil, path)
	require.NoError(t, err)
	return cfg
}

func names(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return out
}

// countMatrix has two groups of observations expressing different halves of
// the features.
func countMatrix(t *testing.T, n, d int) *anndata.Matrix {
	t.Helper()
	rng := rand.New(rand.NewSource(3))
	x := make([][]float64, n)
	for i := range x {
		x[i] = make([]float64, d)
		for j := range x[i] {
			base := 2
			if (i < n/2) == (j < d/2) {
				base = 15
			}
			x[i][j] = float64(rng.Intn(base) + 1)
		}
	}
	m, err := anndata.New(x, names("cell", n), names("gene", d))
	require.NoError(t, err)
	return m
}

func TestPipelineProducesEmbedding(t *testing.T) {
	m := countMatrix(t, 40, 25)
	orig := m.Clone()

	res, err := NewPipeline(logging.Discard()).Run(m, resolve(t, "10"))
	require.NoError(t, err)
	require.True(t, res.FeatureSelection)
	require.Equal(t, 10, res.Matrix.NVars())
	require.Equal(t, 10, res.LogNormalized.NVars())
	require.Len(t, res.Embedding, 40)
	for _, row := range res.Embedding {
		require.Len(t, row, 5)
	}
	require.Equal(t, res.Embedding, res.Matrix.Obsm[EmbeddingKey])
	require.Len(t, res.Variance, 5)
	for i := 1; i < len(res.Variance); i++ {
		require.GreaterOrEqual(t, res.Variance[i-1], res.Variance[i]-1e-9)
	}
	require.Equal(t, orig, m, "caller's matrix must not change")
}

func TestPipelineFallsBackWhenSelectionFails(t *testing.T) {
	x := make([][]float64, 12)
	for i := range x {
		x[i] = []float64{1, 2, 3, 4, 5, 6}
	}
	m, err := anndata.New(x, names("cell", 12), names("gene", 6))
	require.NoError(t, err)

	_, selErr := HighlyVariableGenes(m, config.HVGOptions{MaxDisp: math.Inf(1), Flavor: "seurat"})
	var target *SelectionError
	require.True(t, errors.As(selErr, &target))

	res, err := NewPipeline(logging.Discard()).Run(m, resolve(t, "null"))
	require.NoError(t, err)
	require.False(t, res.FeatureSelection)
	require.Equal(t, 6, res.Matrix.NVars())
	require.Len(t, res.Embedding, 12)
	for _, row := range res.Embedding {
		for _, v := range row {
			require.False(t, math.IsNaN(v))
		}
	}
	require.Equal(t, "false", res.Matrix.Uns["hvg_applied"])
}

func TestPipelineFilteringEverythingIsFatal(t *testing.T) {
	m := countMatrix(t, 10, 6)
	doc := fmt.Sprintf(testDocument, "null")
	path := filepath.Join(t.TempDir(), "opts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc+"---\ngene:\n  min_counts: 1000000\n  min_cells: null\n  max_counts: null\n  max_cells: null\n"), 0o644))
	cfg, err := config.Resolve(nil, path)
	require.NoError(t, err)

	_, err = NewPipeline(logging.Discard()).Run(m, cfg)
	require.ErrorIs(t, err, domain.ErrPreprocessing)
}

func TestFilterBounds(t *testing.T) {
	m, err := anndata.New([][]float64{
		{0, 5, 1},
		{0, 3, 0},
		{0, 9, 2},
	}, names("c", 3), names("g", 3))
	require.NoError(t, err)

	two := 2.0
	genes, err := FilterGenes(m, config.GeneOptions{MinCells: &two})
	require.NoError(t, err)
	require.Equal(t, []string{"g1", "g2"}, genes.VarNames)
	require.Equal(t, []string{"3", "2"}, genes.Var["n_cells"])

	ten := 10.0
	cells, err := FilterCells(genes, config.CellOptions{MaxCounts: &ten})
	require.NoError(t, err)
	require.Equal(t, []string{"c0", "c1"}, cells.ObsNames)
	require.Equal(t, []string{"6", "3"}, cells.Obs["n_counts"])
}

func TestNormalizeLogScale(t *testing.T) {
	m, err := anndata.New([][]float64{{1, 3}, {2, 2}, {0, 0}}, names("c", 3), names("g", 2))
	require.NoError(t, err)

	target := 8.0
	require.NoError(t, NormalizeTotal(m, config.NormOptions{TargetSum: &target}))
	require.Equal(t, []float64{2, 6}, m.X[0])
	require.Equal(t, []float64{4, 4}, m.X[1])
	require.Equal(t, []float64{0, 0}, m.X[2])

	require.NoError(t, Log1p(m))
	require.InDelta(t, math.Log(3), m.X[0][0], 1e-12)

	require.NoError(t, Scale(m, 1))
	for _, row := range m.X {
		for _, v := range row {
			require.LessOrEqual(t, math.Abs(v), 1.0)
		}
	}
}

func TestNormalizeDefaultsToMedianTotal(t *testing.T) {
	m, err := anndata.New([][]float64{{1, 1}, {3, 1}, {5, 5}}, names("c", 3), names("g", 2))
	require.NoError(t, err)
	require.NoError(t, NormalizeTotal(m, config.NormOptions{}))
	for _, row := range m.X {
		require.InDelta(t, 4.0, row[0]+row[1], 1e-12)
	}
}

func TestPCARecoversDominantAxis(t *testing.T) {
	x := make([][]float64, 30)
	for i := range x {
		s := float64(i - 15)
		x[i] = []float64{s, 2 * s, 0.01 * float64(i%3)}
	}
	scores, variance, err := PCA(x, 2)
	require.NoError(t, err)
	require.Len(t, scores, 30)
	require.Len(t, variance, 2)
	require.Greater(t, variance[0], 100*variance[1])

	// wide input takes the Gram route and agrees on the explained variance
	wide := make([][]float64, 4)
	for i := range wide {
		wide[i] = make([]float64, 8)
		for j := range wide[i] {
			wide[i][j] = float64(i * (j + 1))
		}
	}
	_, v, err := PCA(wide, 10)
	require.NoError(t, err)
	require.Len(t, v, 3)
	require.Greater(t, v[0], 0.0)
}
