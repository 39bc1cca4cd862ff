package dataset

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"secuer/internal/anndata"
	"secuer/internal/container"
	"secuer/internal/domain"
)

// readers maps every recognized extension to its reader. Extensions mapped
// to nil are recognized formats without a reader in this build.
var readers = map[string]func(path string) (*anndata.Matrix, error){
	"csv":               readDelimited,
	"tsv":               readDelimited,
	"tab":               readDelimited,
	"data":              readDelimited,
	"txt":               readDelimited,
	"mtx":               readMatrixMarket,
	"mtx.gz":            readMatrixMarket,
	container.Extension: container.Read,
	"anndata":           nil,
	"h5ad":              nil,
	"h5":                nil,
	"loom":              nil,
	"xlsx":              nil,
	"soft.gz":           nil,
}

// Extensions lists every recognized extension, sorted.
func Extensions() []string {
	out := make([]string, 0, len(readers))
	for ext := range readers {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Load reads the matrix at path, makes feature and observation ids unique
// and optionally transposes it so that rows are observations.
func Load(path string, transpose bool) (*anndata.Matrix, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: inputfile %s does not exist", domain.ErrConfiguration, path)
		}
		return nil, fmt.Errorf("%w: inputfile %s: %v", domain.ErrConfiguration, path, err)
	}
	ext := Extension(path)
	read, known := readers[ext]
	if !known {
		return nil, fmt.Errorf("%w: %q (recognized: %s)", domain.ErrUnsupportedFormat, ext, strings.Join(Extensions(), ", "))
	}
	if read == nil {
		return nil, fmt.Errorf("%w: no reader for %q files", domain.ErrUnsupportedFormat, ext)
	}
	m, err := read(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	m.MakeVarNamesUnique()
	m.MakeObsNamesUnique()
	if transpose {
		m = m.Transpose()
	}
	return m, nil
}

// Extension returns the lower-cased extension of path, keeping the compound
// suffixes "mtx.gz" and "soft.gz".
func Extension(path string) string {
	lower := strings.ToLower(path)
	for _, compound := range []string{"mtx.gz", "soft.gz"} {
		if strings.HasSuffix(lower, "."+compound) {
			return compound
		}
	}
	dot := strings.LastIndexByte(lower, '.')
	if dot < 0 || strings.ContainsAny(lower[dot:], `/\`) {
		return ""
	}
	return lower[dot+1:]
}
