package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"secuer/internal/anndata"
	"secuer/internal/container"
	"secuer/internal/domain"
	"secuer/internal/logging"
)

type failingPlotter struct{ calls int }

func (p *failingPlotter) Plot(string, string, [][]float64, [][2]int, domain.LabelVector) error {
	p.calls++
	return errors.New("no display")
}

func sample(t *testing.T) *anndata.Matrix {
	t.Helper()
	m, err := anndata.New(
		[][]float64{{1, 0}, {0.9, 0.1}, {0, 1}, {0.1, 1.1}},
		[]string{"c0", "c1", "c2", "c3"},
		[]string{"g0", "g1"},
	)
	require.NoError(t, err)
	m.Obsm[EmbeddingKey] = [][]float64{{1, 0, 0}, {0.9, 0.1, 0}, {-1, 0, 0}, {-0.9, -0.1, 0}}
	return m
}

func TestPrepareOutput(t *testing.T) {
	root := t.TempDir()

	fresh := filepath.Join(root, "a", "b")
	require.NoError(t, PrepareOutput(fresh, logging.Discard()))
	info, err := os.Stat(fresh)
	require.NoError(t, err)
	require.True(t, info.IsDir())

	require.NoError(t, PrepareOutput(fresh, logging.Discard()))

	file := filepath.Join(root, "taken")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	err = PrepareOutput(file, logging.Discard())
	require.ErrorIs(t, err, domain.ErrConfiguration)

	require.ErrorIs(t, PrepareOutput("", logging.Discard()), domain.ErrConfiguration)
}

func TestWriteAllArtifacts(t *testing.T) {
	dir := t.TempDir()
	m := sample(t)
	labels := domain.LabelVector{0, 0, 1, 1}

	rep, err := NewWriter(logging.Discard(), nil).Write(Request{
		Dir:     dir,
		Name:    "SecuerResult",
		Labels:  labels,
		Matrix:  m,
		Plot:    true,
		Markers: true,
		Params:  map[string]string{"secuer_mode": "S"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, rep.RunID)

	raw, err := os.ReadFile(rep.LabelsPath)
	require.NoError(t, err)
	require.Equal(t, "0\n0\n1\n1\n", string(raw))
	require.Equal(t, []string{"0", "0", "1", "1"}, m.Obs[LabelKey])

	got, err := container.Read(rep.ContainerPath)
	require.NoError(t, err)
	require.Equal(t, m.Obs[LabelKey], got.Obs[LabelKey])
	require.Equal(t, rep.RunID, got.Uns["run_id"])
	require.Equal(t, "S", got.Uns["secuer_mode"])
	require.Len(t, got.Obsm["X_2d"], 4)

	require.Len(t, rep.PlotPaths, 2)
	svg, err := os.ReadFile(filepath.Join(dir, "SecuerResult_pca.svg"))
	require.NoError(t, err)
	require.Equal(t, 4, strings.Count(string(svg), "<circle"))
	require.Contains(t, string(svg), "<line")
	tsv, err := os.ReadFile(filepath.Join(dir, "SecuerResult_pca.tsv"))
	require.NoError(t, err)
	require.Len(t, strings.Split(strings.TrimSpace(string(tsv)), "\n"), 5)

	mk, err := os.ReadFile(rep.MarkersPath)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(mk), "cluster\trank\tfeature"))
}

func TestPlotFailureIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	p := &failingPlotter{}
	rep, err := NewWriter(logging.Discard(), p).Write(Request{
		Dir:    dir,
		Name:   "SecuerConsenResult",
		Labels: domain.LabelVector{0, 1, 0, 1},
		Matrix: sample(t),
		Plot:   true,
	})
	require.NoError(t, err)
	require.Equal(t, 1, p.calls)
	require.Empty(t, rep.PlotPaths)
	require.FileExists(t, rep.ContainerPath)
}

func TestWriteRejectsMismatchedLabels(t *testing.T) {
	_, err := NewWriter(logging.Discard(), nil).Write(Request{
		Dir:    t.TempDir(),
		Name:   "x",
		Labels: domain.LabelVector{0},
		Matrix: sample(t),
	})
	require.Error(t, err)
}

func TestNeighborEdgesAreUndirectedAndUnique(t *testing.T) {
	edges, err := neighborEdges([][]float64{{0}, {1}, {2}, {10}}, 1)
	require.NoError(t, err)
	seen := map[[2]int]bool{}
	for _, e := range edges {
		require.Less(t, e[0], e[1])
		require.False(t, seen[e])
		seen[e] = true
	}
	require.True(t, seen[[2]int{0, 1}])
	require.True(t, seen[[2]int{2, 3}])
}
