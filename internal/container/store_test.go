package container

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"secuer/internal/anndata"
)

func TestWriteReadRoundTrip(t *testing.T) {
	m, err := anndata.New(
		[][]float64{{0, 1.5, 2}, {3.25, 0, -1}},
		[]string{"AAAC-1", "AAAG-1"},
		[]string{"CD3E", "MS4A1", "LYZ"},
	)
	require.NoError(t, err)
	require.NoError(t, m.SetObs("Secuer", []string{"0", "1"}))
	m.Var["highly_variable"] = []string{"true", "false", "true"}
	m.Obsm["X_pca"] = [][]float64{{0.1, 0.2}, {-0.1, -0.2}}
	m.Uns["run_id"] = "abc"

	path := filepath.Join(t.TempDir(), "out.scdb")
	require.NoError(t, Write(path, m))
	// Writing twice replaces the file rather than failing on unique names.
	require.NoError(t, Write(path, m))

	got, err := Read(path)
	require.NoError(t, err)
	require.Equal(t, m.X, got.X)
	require.Equal(t, m.ObsNames, got.ObsNames)
	require.Equal(t, m.VarNames, got.VarNames)
	require.Equal(t, m.Obs, got.Obs)
	require.Equal(t, m.Var, got.Var)
	require.Equal(t, m.Obsm, got.Obsm)
	require.Equal(t, "abc", got.Uns["run_id"])
	require.Equal(t, FormatVersion, got.Uns["scdb_version"])
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.scdb"))
	require.Error(t, err)
}
