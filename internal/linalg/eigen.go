// Package linalg holds the small dense linear-algebra kernels the pipeline
// needs: symmetric eigen decomposition, distances and k-means.
package linalg

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// ErrNotSymmetric is returned when an input matrix is not symmetric.
var ErrNotSymmetric = errors.New("linalg: matrix is not symmetric")

// ErrEigenFailed is returned when Jacobi sweeps do not converge.
var ErrEigenFailed = errors.New("linalg: eigen decomposition did not converge")

const (
	jacobiTol      = 1e-12
	jacobiMaxSweep = 100
)

// SymEigen decomposes the symmetric matrix a with cyclic Jacobi rotations.
// Eigenvalues are returned in descending order; vecs[i] is the eigenvector
// of vals[i]. a is not modified.
// Complexity: O(n³) per sweep.
func SymEigen(a [][]float64) ([]float64, [][]float64, error) {
	n := len(a)
	for i := range a {
		if len(a[i]) != n {
			return nil, nil, fmt.Errorf("SymEigen: row %d has %d columns, want %d", i, len(a[i]), n)
		}
		for j := 0; j < i; j++ {
			if math.Abs(a[i][j]-a[j][i]) > 1e-9*(1+math.Abs(a[i][j])) {
				return nil, nil, ErrNotSymmetric
			}
		}
	}
	w := make([][]float64, n)
	q := make([][]float64, n)
	fro := 0.0
	for i := range a {
		w[i] = append([]float64(nil), a[i]...)
		q[i] = make([]float64, n)
		q[i][i] = 1
		fro += Dot(a[i], a[i])
	}

	converged := n < 2
	for sweep := 0; sweep < jacobiMaxSweep && !converged; sweep++ {
		off := 0.0
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				off += w[i][j] * w[i][j]
			}
		}
		if off <= jacobiTol*jacobiTol*fro || off < 1e-300 {
			converged = true
			break
		}
		for p := 0; p < n; p++ {
			for r := p + 1; r < n; r++ {
				apr := w[p][r]
				if math.Abs(apr) < 1e-300 {
					continue
				}
				theta := (w[r][r] - w[p][p]) / (2 * apr)
				t := math.Copysign(1/(math.Abs(theta)+math.Sqrt(theta*theta+1)), theta)
				c := 1 / math.Sqrt(t*t+1)
				s := t * c
				for k := 0; k < n; k++ {
					akp, akr := w[k][p], w[k][r]
					w[k][p] = c*akp - s*akr
					w[k][r] = s*akp + c*akr
				}
				for k := 0; k < n; k++ {
					apk, ark := w[p][k], w[r][k]
					w[p][k] = c*apk - s*ark
					w[r][k] = s*apk + c*ark
				}
				for k := 0; k < n; k++ {
					qkp, qkr := q[k][p], q[k][r]
					q[k][p] = c*qkp - s*qkr
					q[k][r] = s*qkp + c*qkr
				}
			}
		}
	}
	if !converged {
		return nil, nil, ErrEigenFailed
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(x, y int) bool { return w[order[x]][order[x]] > w[order[y]][order[y]] })
	vals := make([]float64, n)
	vecs := make([][]float64, n)
	for rank, idx := range order {
		vals[rank] = w[idx][idx]
		v := make([]float64, n)
		for k := 0; k < n; k++ {
			v[k] = q[k][idx]
		}
		vecs[rank] = canonicalSign(v)
	}
	return vals, vecs, nil
}

// TopEigen returns the k largest eigenpairs of the symmetric positive
// semi-definite matrix a using block orthogonal iteration followed by a
// Rayleigh-Ritz step. Small problems go straight to SymEigen.
func TopEigen(a [][]float64, k int, seed int64) ([]float64, [][]float64, error) {
	n := len(a)
	if k <= 0 || n == 0 {
		return nil, nil, nil
	}
	if k > n {
		k = n
	}
	if n <= 64 || 3*k >= n {
		vals, vecs, err := SymEigen(a)
		if err != nil {
			return nil, nil, err
		}
		return vals[:k], vecs[:k], nil
	}

	block := k + 8
	if block > n {
		block = n
	}
	rng := rand.New(rand.NewSource(seed))
	basis := make([][]float64, block)
	for i := range basis {
		v := make([]float64, n)
		for j := range v {
			v[j] = rng.NormFloat64()
		}
		basis[i] = v
	}
	orthonormalize(basis)

	prev := make([]float64, block)
	for iter := 0; iter < 300; iter++ {
		next := make([][]float64, block)
		for i, v := range basis {
			next[i] = MatVec(a, v)
		}
		orthonormalize(next)
		basis = next
		if iter%10 != 9 {
			continue
		}
		ritz := rayleigh(a, basis)
		delta := 0.0
		for i := 0; i < k; i++ {
			delta = math.Max(delta, math.Abs(ritz[i][i]-prev[i]))
			prev[i] = ritz[i][i]
		}
		if delta < 1e-10*(1+math.Abs(prev[0])) {
			break
		}
	}

	vals, small, err := SymEigen(rayleigh(a, basis))
	if err != nil {
		return nil, nil, err
	}
	vecs := make([][]float64, k)
	for r := 0; r < k; r++ {
		v := make([]float64, n)
		for i, coef := range small[r] {
			Axpy(coef, basis[i], v)
		}
		vecs[r] = canonicalSign(v)
	}
	return vals[:k], vecs, nil
}

// rayleigh returns Bᵀ A B for an orthonormal basis B given as rows.
func rayleigh(a [][]float64, basis [][]float64) [][]float64 {
	m := len(basis)
	av := make([][]float64, m)
	for i, v := range basis {
		av[i] = MatVec(a, v)
	}
	t := make([][]float64, m)
	for i := range t {
		t[i] = make([]float64, m)
	}
	for i := 0; i < m; i++ {
		for j := i; j < m; j++ {
			d := Dot(basis[i], av[j])
			t[i][j], t[j][i] = d, d
		}
	}
	return t
}

// orthonormalize applies modified Gram-Schmidt in place. Vectors that
// collapse to zero are replaced by unit basis vectors orthogonalized
// against the rest.
func orthonormalize(vs [][]float64) {
	for i := range vs {
		for j := 0; j < i; j++ {
			Axpy(-Dot(vs[i], vs[j]), vs[j], vs[i])
		}
		norm := Norm(vs[i])
		if norm < 1e-12 {
			for e := 0; e < len(vs[i]) && norm < 1e-12; e++ {
				for k := range vs[i] {
					vs[i][k] = 0
				}
				vs[i][(i+e)%len(vs[i])] = 1
				for j := 0; j < i; j++ {
					Axpy(-Dot(vs[i], vs[j]), vs[j], vs[i])
				}
				norm = Norm(vs[i])
			}
		}
		for k := range vs[i] {
			vs[i][k] /= norm
		}
	}
}

// canonicalSign flips v so that its largest-magnitude entry is positive,
// which makes eigenvectors reproducible across runs.
func canonicalSign(v []float64) []float64 {
	best, at := 0.0, -1
	for i, x := range v {
		if math.Abs(x) > best+1e-12 {
			best, at = math.Abs(x), i
		}
	}
	if at >= 0 && v[at] < 0 {
		for i := range v {
			v[i] = -v[i]
		}
	}
	return v
}

// MatVec returns a·x.
func MatVec(a [][]float64, x []float64) []float64 {
	out := make([]float64, len(a))
	for i, row := range a {
		out[i] = Dot(row, x)
	}
	return out
}

// Dot returns the inner product of a and b.
func Dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Norm returns the Euclidean norm of v.
func Norm(v []float64) float64 { return math.Sqrt(Dot(v, v)) }

// Axpy computes y += alpha·x.
func Axpy(alpha float64, x, y []float64) {
	for i := range x {
		y[i] += alpha * x[i]
	}
}
