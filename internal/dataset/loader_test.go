package dataset

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"secuer/internal/anndata"
	"secuer/internal/container"
	"secuer/internal/domain"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadCSVDeduplicatesFeatures(t *testing.T) {
	path := writeFile(t, "counts.csv", "cell,CD3,CD3,LYZ,CD3\nc1,1,2,3,4\nc2,5,6,7,8\n")

	m, err := Load(path, false)
	require.NoError(t, err)
	require.Equal(t, []string{"CD3", "CD3-1", "LYZ", "CD3-2"}, m.VarNames)
	require.Equal(t, []string{"c1", "c2"}, m.ObsNames)
	require.Equal(t, []float64{5, 6, 7, 8}, m.X[1])

	seen := map[string]bool{}
	for _, n := range m.VarNames {
		require.False(t, seen[n])
		seen[n] = true
	}
}

func TestLoadTSVWithoutCornerAndTranspose(t *testing.T) {
	path := writeFile(t, "counts.tsv", "c1\tc2\tc3\ng1\t1\t2\t3\ng2\t4\t5\t6\n")

	m, err := Load(path, true)
	require.NoError(t, err)
	require.Equal(t, []string{"c1", "c2", "c3"}, m.ObsNames)
	require.Equal(t, []string{"g1", "g2"}, m.VarNames)
	require.Equal(t, []float64{3, 6}, m.X[2])
}

func TestLoadWhitespaceText(t *testing.T) {
	path := writeFile(t, "counts.txt", "id a b\nx 1 2\n\ny 3 4\n")
	m, err := Load(path, false)
	require.NoError(t, err)
	require.Equal(t, 2, m.NObs())
	require.Equal(t, []string{"a", "b"}, m.VarNames)
}

func TestLoadMatrixMarketGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matrix.mtx.gz")
	writeGzip(t, path, "%%MatrixMarket matrix coordinate integer general\n% comment\n2 3 3\n1 1 5\n2 3 7\n1 2 1\n")

	m, err := Load(path, false)
	require.NoError(t, err)
	require.Equal(t, [][]float64{{5, 0}, {1, 0}, {0, 7}}, m.X)
	require.Equal(t, []string{"0", "1"}, m.VarNames)
	require.Equal(t, []string{"0", "1", "2"}, m.ObsNames)
}

func writeGzip(t *testing.T, path, body string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
}

func TestLoadMatrixMarketTenXLayout(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "matrix.mtx")
	require.NoError(t, os.WriteFile(path, []byte("%%MatrixMarket matrix coordinate integer general\n3 2 4\n1 1 4\n3 1 2\n2 2 9\n3 2 1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "genes.tsv"), []byte("ENSG01\tCD3E\nENSG02\tMS4A1\nENSG03\tLYZ\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "barcodes.tsv"), []byte("AAAC-1\nAAAG-1\n"), 0o644))

	m, err := Load(path, false)
	require.NoError(t, err)
	require.Equal(t, 2, m.NObs())
	require.Equal(t, 3, m.NVars())
	require.Equal(t, []string{"AAAC-1", "AAAG-1"}, m.ObsNames)
	require.Equal(t, []string{"CD3E", "MS4A1", "LYZ"}, m.VarNames)
	require.Equal(t, [][]float64{{4, 0, 2}, {0, 9, 1}}, m.X)
}

func TestLoadMatrixMarketGzipFeatures(t *testing.T) {
	dir := t.TempDir()
	writeGzip(t, filepath.Join(dir, "matrix.mtx.gz"), "%%MatrixMarket matrix coordinate integer general\n2 1 2\n1 1 3\n2 1 5\n")
	writeGzip(t, filepath.Join(dir, "features.tsv.gz"), "ENSG01\tACTB\tGene Expression\nENSG02\tACTB\tGene Expression\n")
	writeGzip(t, filepath.Join(dir, "barcodes.tsv.gz"), "TTTG-1\n")

	m, err := Load(filepath.Join(dir, "matrix.mtx.gz"), false)
	require.NoError(t, err)
	require.Equal(t, []string{"TTTG-1"}, m.ObsNames)
	require.Equal(t, []string{"ACTB", "ACTB-1"}, m.VarNames)
	require.Equal(t, [][]float64{{3, 5}}, m.X)
}

func TestLoadMatrixMarketNameCountMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "matrix.mtx")
	require.NoError(t, os.WriteFile(path, []byte("%%MatrixMarket matrix coordinate integer general\n2 2 1\n1 1 1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "barcodes.tsv"), []byte("only-1\n"), 0o644))

	_, err := Load(path, false)
	require.ErrorContains(t, err, "barcodes.tsv lists 1 names, matrix has 2")
}

func TestLoadContainer(t *testing.T) {
	src, err := anndata.New([][]float64{{1, 2}}, []string{"c"}, []string{"g1", "g2"})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "in."+container.Extension)
	require.NoError(t, container.Write(path, src))

	m, err := Load(path, false)
	require.NoError(t, err)
	require.Equal(t, src.X, m.X)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.csv"), false)
	require.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = Load(writeFile(t, "data.parquet", "x"), false)
	require.ErrorIs(t, err, domain.ErrUnsupportedFormat)

	_, err = Load(writeFile(t, "data.h5ad", "x"), false)
	require.ErrorIs(t, err, domain.ErrUnsupportedFormat)

	_, err = Load(writeFile(t, "bad.csv", "id,a\nx,notanumber\n"), false)
	require.Error(t, err)
}

func TestExtension(t *testing.T) {
	require.Equal(t, "mtx.gz", Extension("/d/Matrix.MTX.GZ"))
	require.Equal(t, "soft.gz", Extension("a.soft.gz"))
	require.Equal(t, "csv", Extension("dir.v2/a.csv"))
	require.Equal(t, "", Extension("dir.v2/noext"))
}
