package anndata

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMakeUnique(t *testing.T) {
	got := MakeUnique([]string{"CD3", "CD3", "MS4A1", "CD3", "CD3-1"})
	require.Equal(t, []string{"CD3", "CD3-2", "MS4A1", "CD3-3", "CD3-1"}, got)

	seen := map[string]bool{}
	for _, n := range got {
		require.False(t, seen[n], "duplicate %q", n)
		seen[n] = true
	}
}

func TestSubsetDoesNotTouchSource(t *testing.T) {
	m, err := New([][]float64{{1, 2, 3}, {4, 5, 6}}, []string{"c1", "c2"}, []string{"g1", "g2", "g3"})
	require.NoError(t, err)
	require.NoError(t, m.SetObs("batch", []string{"a", "b"}))

	rows := m.SubsetObs([]int{1})
	rows.X[0][0] = 100
	require.Equal(t, 4.0, m.X[1][0])
	require.Equal(t, []string{"b"}, rows.Obs["batch"])

	cols := m.SubsetVars([]int{2, 0})
	require.Equal(t, []string{"g3", "g1"}, cols.VarNames)
	require.Equal(t, [][]float64{{3, 1}, {6, 4}}, cols.X)
}

func TestTransposeSwapsAxes(t *testing.T) {
	m, err := New([][]float64{{1, 2, 3}, {4, 5, 6}}, []string{"c1", "c2"}, []string{"g1", "g2", "g3"})
	require.NoError(t, err)

	tr := m.Transpose()
	require.Equal(t, 3, tr.NObs())
	require.Equal(t, 2, tr.NVars())
	require.Equal(t, []string{"g1", "g2", "g3"}, tr.ObsNames)
	require.Equal(t, []float64{2, 5}, tr.X[1])
}

func TestNewRejectsRaggedRows(t *testing.T) {
	_, err := New([][]float64{{1, 2}, {3}}, []string{"a", "b"}, []string{"x", "y"})
	require.Error(t, err)
	require.Error(t, (&Matrix{ObsNames: []string{"a"}}).SetObs("k", nil))
}
