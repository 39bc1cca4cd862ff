package markers

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"secuer/internal/anndata"
	"secuer/internal/domain"
)

func TestRankFindsSeparatingFeature(t *testing.T) {
	x := [][]float64{
		{5.1, 1.0, 0.2},
		{4.9, 1.2, 0.3},
		{5.0, 0.9, 0.1},
		{0.1, 1.1, 0.2},
		{0.0, 1.0, 0.4},
		{0.2, 0.8, 0.1},
	}
	m, err := anndata.New(x, []string{"a", "b", "c", "d", "e", "f"}, []string{"CD3E", "ACTB", "MT-CO1"})
	require.NoError(t, err)
	labels := domain.LabelVector{0, 0, 0, 1, 1, 1}

	ms, err := Rank(m, labels, 2)
	require.NoError(t, err)
	require.Len(t, ms, 4)

	require.Equal(t, 0, ms[0].Cluster)
	require.Equal(t, 1, ms[0].Rank)
	require.Equal(t, "CD3E", ms[0].Feature)
	require.Greater(t, ms[0].Score, 10.0)
	require.InDelta(t, 4.9, ms[0].MeanDiff, 1e-9)
	require.Equal(t, 1.0, ms[0].PctCluster)

	require.Equal(t, "ACTB", ms[1].Feature)

	require.Equal(t, 1, ms[2].Cluster)
	require.Equal(t, "MT-CO1", ms[2].Feature)
	require.Equal(t, "ACTB", ms[3].Feature)
	require.Less(t, ms[3].Score, 0.0)

	var buf bytes.Buffer
	require.NoError(t, WriteTSV(&buf, ms))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	require.True(t, strings.HasPrefix(lines[1], "0\t1\tCD3E\t"))
}

func TestRankSingleClusterHasNoMarkers(t *testing.T) {
	m, err := anndata.New([][]float64{{1}, {2}}, []string{"a", "b"}, []string{"g"})
	require.NoError(t, err)
	ms, err := Rank(m, domain.LabelVector{0, 0}, 0)
	require.NoError(t, err)
	require.Empty(t, ms)

	_, err = Rank(m, domain.LabelVector{0}, 0)
	require.Error(t, err)
}
