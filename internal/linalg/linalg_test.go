package linalg

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"secuer/internal/domain"
)

func TestSymEigenDiagonalizes(t *testing.T) {
	a := [][]float64{
		{4, 1, 0},
		{1, 3, 1},
		{0, 1, 2},
	}
	vals, vecs, err := SymEigen(a)
	require.NoError(t, err)
	require.Len(t, vals, 3)
	require.GreaterOrEqual(t, vals[0], vals[1])
	require.GreaterOrEqual(t, vals[1], vals[2])
	require.InDelta(t, 9.0, vals[0]+vals[1]+vals[2], 1e-9)

	for i, v := range vecs {
		av := MatVec(a, v)
		for k := range v {
			require.InDelta(t, vals[i]*v[k], av[k], 1e-9)
		}
		require.InDelta(t, 1.0, Norm(v), 1e-9)
	}
}

func TestSymEigenRejectsAsymmetric(t *testing.T) {
	_, _, err := SymEigen([][]float64{{1, 2}, {3, 4}})
	require.ErrorIs(t, err, ErrNotSymmetric)
}

func TestTopEigenMatchesFullDecomposition(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	n := 90
	x := make([][]float64, n)
	for i := range x {
		x[i] = make([]float64, 6)
		for j := range x[i] {
			x[i][j] = rng.NormFloat64() * float64(j+1)
		}
	}
	// Gram matrix of rank 6.
	g := make([][]float64, n)
	for i := range g {
		g[i] = make([]float64, n)
		for j := range g[i] {
			g[i][j] = Dot(x[i], x[j])
		}
	}
	full, _, err := SymEigen(g)
	require.NoError(t, err)
	top, vecs, err := TopEigen(g, 4, 1)
	require.NoError(t, err)
	require.Len(t, vecs, 4)
	for i := range top {
		require.InDelta(t, full[i], top[i], 1e-6*math.Abs(full[0]))
	}
}

func TestMetrics(t *testing.T) {
	a, b := []float64{0, 3}, []float64{4, 0}
	for name, want := range map[string]float64{
		domain.DistanceEuclidean:   5,
		domain.DistanceSqEuclidean: 25,
		domain.DistanceL1:          7,
		domain.DistanceCosine:      1,
	} {
		m, err := MetricByName(name)
		require.NoError(t, err)
		require.InDelta(t, want, m(a, b), 1e-12, name)
	}
	_, err := MetricByName("hamming")
	require.Error(t, err)
}

func TestKMeansSeparatesBlobs(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	var pts [][]float64
	for c := 0; c < 3; c++ {
		for i := 0; i < 30; i++ {
			pts = append(pts, []float64{float64(c)*10 + rng.Float64(), rng.Float64()})
		}
	}
	res, err := KMeans(pts, 3, 1, 100)
	require.NoError(t, err)
	require.True(t, res.Converged)
	for c := 0; c < 3; c++ {
		first := res.Labels[c*30]
		for i := 0; i < 30; i++ {
			require.Equal(t, first, res.Labels[c*30+i])
		}
	}
	require.NotEqual(t, res.Labels[0], res.Labels[30])
	require.NotEqual(t, res.Labels[30], res.Labels[60])

	again, err := KMeans(pts, 3, 1, 100)
	require.NoError(t, err)
	require.Equal(t, res.Labels, again.Labels)

	_, err = KMeans(nil, 2, 1, 10)
	require.ErrorIs(t, err, ErrEmptyInput)
}
