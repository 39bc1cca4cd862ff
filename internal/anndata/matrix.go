package anndata

import (
	"fmt"
	"strconv"
)

// Matrix is an annotated observations x features matrix.
//
// Obs and Var are per-axis string tables keyed by column name; every column
// has the length of its axis. Obsm holds per-observation numeric blocks such
// as the PCA embedding, Uns free-form string metadata.
type Matrix struct {
	X        [][]float64
	ObsNames []string
	VarNames []string
	Obs      map[string][]string
	Var      map[string][]string
	Obsm     map[string][][]float64
	Uns      map[string]string
}

// New builds a matrix and checks that names match the shape of x.
func New(x [][]float64, obsNames, varNames []string) (*Matrix, error) {
	if len(x) != len(obsNames) {
		return nil, fmt.Errorf("anndata: %d rows but %d observation names", len(x), len(obsNames))
	}
	for i, row := range x {
		if len(row) != len(varNames) {
			return nil, fmt.Errorf("anndata: row %d has %d values, want %d", i, len(row), len(varNames))
		}
	}
	return &Matrix{
		X:        x,
		ObsNames: obsNames,
		VarNames: varNames,
		Obs:      map[string][]string{},
		Var:      map[string][]string{},
		Obsm:     map[string][][]float64{},
		Uns:      map[string]string{},
	}, nil
}

// NObs returns the number of observations (rows).
func (m *Matrix) NObs() int { return len(m.ObsNames) }

// NVars returns the number of features (columns).
func (m *Matrix) NVars() int { return len(m.VarNames) }

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	out := &Matrix{
		X:        cloneRows(m.X),
		ObsNames: append([]string(nil), m.ObsNames...),
		VarNames: append([]string(nil), m.VarNames...),
		Obs:      make(map[string][]string, len(m.Obs)),
		Var:      make(map[string][]string, len(m.Var)),
		Obsm:     make(map[string][][]float64, len(m.Obsm)),
		Uns:      make(map[string]string, len(m.Uns)),
	}
	for k, v := range m.Obs {
		out.Obs[k] = append([]string(nil), v...)
	}
	for k, v := range m.Var {
		out.Var[k] = append([]string(nil), v...)
	}
	for k, v := range m.Obsm {
		out.Obsm[k] = cloneRows(v)
	}
	for k, v := range m.Uns {
		out.Uns[k] = v
	}
	return out
}

// SubsetObs returns a new matrix restricted to the given row indices.
func (m *Matrix) SubsetObs(idx []int) *Matrix {
	out := &Matrix{
		X:        make([][]float64, len(idx)),
		ObsNames: make([]string, len(idx)),
		VarNames: append([]string(nil), m.VarNames...),
		Obs:      make(map[string][]string, len(m.Obs)),
		Var:      make(map[string][]string, len(m.Var)),
		Obsm:     make(map[string][][]float64, len(m.Obsm)),
		Uns:      make(map[string]string, len(m.Uns)),
	}
	for i, r := range idx {
		out.X[i] = append([]float64(nil), m.X[r]...)
		out.ObsNames[i] = m.ObsNames[r]
	}
	for k, col := range m.Obs {
		out.Obs[k] = pickStrings(col, idx)
	}
	for k, v := range m.Var {
		out.Var[k] = append([]string(nil), v...)
	}
	for k, block := range m.Obsm {
		rows := make([][]float64, len(idx))
		for i, r := range idx {
			rows[i] = append([]float64(nil), block[r]...)
		}
		out.Obsm[k] = rows
	}
	for k, v := range m.Uns {
		out.Uns[k] = v
	}
	return out
}

// SubsetVars returns a new matrix restricted to the given column indices.
// Obsm blocks are dropped because they were derived from the old feature set.
func (m *Matrix) SubsetVars(idx []int) *Matrix {
	out := &Matrix{
		X:        make([][]float64, len(m.X)),
		ObsNames: append([]string(nil), m.ObsNames...),
		VarNames: pickStrings(m.VarNames, idx),
		Obs:      make(map[string][]string, len(m.Obs)),
		Var:      make(map[string][]string, len(m.Var)),
		Obsm:     map[string][][]float64{},
		Uns:      make(map[string]string, len(m.Uns)),
	}
	for i, row := range m.X {
		nr := make([]float64, len(idx))
		for j, c := range idx {
			nr[j] = row[c]
		}
		out.X[i] = nr
	}
	for k, v := range m.Obs {
		out.Obs[k] = append([]string(nil), v...)
	}
	for k, col := range m.Var {
		out.Var[k] = pickStrings(col, idx)
	}
	for k, v := range m.Uns {
		out.Uns[k] = v
	}
	return out
}

// Transpose swaps observations and features. Side tables swap with their
// axis; Obsm does not survive.
func (m *Matrix) Transpose() *Matrix {
	nObs, nVars := m.NObs(), m.NVars()
	x := make([][]float64, nVars)
	for j := 0; j < nVars; j++ {
		row := make([]float64, nObs)
		for i := 0; i < nObs; i++ {
			row[i] = m.X[i][j]
		}
		x[j] = row
	}
	out := &Matrix{
		X:        x,
		ObsNames: append([]string(nil), m.VarNames...),
		VarNames: append([]string(nil), m.ObsNames...),
		Obs:      make(map[string][]string, len(m.Var)),
		Var:      make(map[string][]string, len(m.Obs)),
		Obsm:     map[string][][]float64{},
		Uns:      make(map[string]string, len(m.Uns)),
	}
	for k, v := range m.Var {
		out.Obs[k] = append([]string(nil), v...)
	}
	for k, v := range m.Obs {
		out.Var[k] = append([]string(nil), v...)
	}
	for k, v := range m.Uns {
		out.Uns[k] = v
	}
	return out
}

// SetObs attaches a per-observation column.
func (m *Matrix) SetObs(key string, values []string) error {
	if len(values) != m.NObs() {
		return fmt.Errorf("anndata: obs column %q has %d values, want %d", key, len(values), m.NObs())
	}
	m.Obs[key] = values
	return nil
}

// MakeVarNamesUnique appends "-1", "-2", ... to repeated feature names.
func (m *Matrix) MakeVarNamesUnique() { m.VarNames = MakeUnique(m.VarNames) }

// MakeObsNamesUnique appends "-1", "-2", ... to repeated observation names.
func (m *Matrix) MakeObsNamesUnique() { m.ObsNames = MakeUnique(m.ObsNames) }

// MakeUnique returns names with duplicates disambiguated. The first
// occurrence keeps its name; later ones get the lowest free numeric suffix,
// so a suffixed name never collides with a name already present.
func MakeUnique(names []string) []string {
	out := make([]string, len(names))
	taken := make(map[string]struct{}, len(names))
	for _, n := range names {
		taken[n] = struct{}{}
	}
	seen := make(map[string]struct{}, len(names))
	next := make(map[string]int)
	for i, n := range names {
		if _, dup := seen[n]; !dup {
			seen[n] = struct{}{}
			out[i] = n
			continue
		}
		k := next[n]
		var candidate string
		for {
			k++
			candidate = n + "-" + strconv.Itoa(k)
			if _, clash := taken[candidate]; !clash {
				break
			}
		}
		next[n] = k
		taken[candidate] = struct{}{}
		seen[candidate] = struct{}{}
		out[i] = candidate
	}
	return out
}

func cloneRows(rows [][]float64) [][]float64 {
	if rows == nil {
		return nil
	}
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = append([]float64(nil), r...)
	}
	return out
}

func pickStrings(src []string, idx []int) []string {
	out := make([]string, len(idx))
	for i, k := range idx {
		out[i] = src[k]
	}
	return out
}
