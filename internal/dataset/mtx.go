package dataset

import (
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"secuer/internal/anndata"
)

// Sibling name files of a 10x export, in lookup order.
var (
	featureFiles = []string{"features.tsv", "features.tsv.gz", "genes.tsv", "genes.tsv.gz"}
	barcodeFiles = []string{"barcodes.tsv", "barcodes.tsv.gz"}
)

// readMatrixMarket reads a coordinate MatrixMarket file, optionally gzipped,
// in the 10x layout: file rows are features and file columns observations.
// Feature and observation ids come from features.tsv (or genes.tsv) and
// barcodes.tsv next to the matrix, falling back to 0-based positions.
func readMatrixMarket(path string) (*anndata.Matrix, error) {
	r, closeFn, err := openMaybeGzip(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	if !sc.Scan() {
		return nil, fmt.Errorf("empty MatrixMarket file")
	}
	banner := strings.Fields(strings.ToLower(sc.Text()))
	if len(banner) < 5 || banner[0] != "%%matrixmarket" || banner[1] != "matrix" || banner[2] != "coordinate" {
		return nil, fmt.Errorf("unsupported MatrixMarket banner %q", sc.Text())
	}
	pattern := banner[3] == "pattern"
	symmetric := banner[4] == "symmetric"

	var features, obs, nnz int
	sized := false
	seen := 0
	var x [][]float64
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}
		fields := strings.Fields(line)
		if !sized {
			if len(fields) != 3 {
				return nil, fmt.Errorf("bad size line %q", line)
			}
			if features, err = strconv.Atoi(fields[0]); err != nil {
				return nil, err
			}
			if obs, err = strconv.Atoi(fields[1]); err != nil {
				return nil, err
			}
			if nnz, err = strconv.Atoi(fields[2]); err != nil {
				return nil, err
			}
			x = make([][]float64, obs)
			for i := range x {
				x[i] = make([]float64, features)
			}
			sized = true
			continue
		}
		if len(fields) < 2 || (!pattern && len(fields) < 3) {
			return nil, fmt.Errorf("bad entry %q", line)
		}
		i, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, err
		}
		j, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, err
		}
		if i < 1 || i > features || j < 1 || j > obs {
			return nil, fmt.Errorf("entry (%d,%d) outside %dx%d", i, j, features, obs)
		}
		v := 1.0
		if !pattern {
			if v, err = strconv.ParseFloat(fields[2], 64); err != nil {
				return nil, err
			}
		}
		x[j-1][i-1] = v
		if symmetric && i != j && i <= obs && j <= features {
			x[i-1][j-1] = v
		}
		seen++
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if !sized {
		return nil, fmt.Errorf("MatrixMarket file has no size line")
	}
	if seen != nnz {
		return nil, fmt.Errorf("expected %d entries, read %d", nnz, seen)
	}

	dir := filepath.Dir(path)
	varNames, err := siblingNames(dir, featureFiles, features, 1)
	if err != nil {
		return nil, err
	}
	obsNames, err := siblingNames(dir, barcodeFiles, obs, 0)
	if err != nil {
		return nil, err
	}
	return anndata.New(x, obsNames, varNames)
}

// siblingNames reads the first existing candidate in dir and returns column
// col of every line (column 0 when a line is shorter). Without a candidate
// the names are positional.
func siblingNames(dir string, candidates []string, n, col int) ([]string, error) {
	for _, name := range candidates {
		path := filepath.Join(dir, name)
		names, err := readNameColumn(path, col)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if len(names) != n {
			return nil, fmt.Errorf("%s lists %d names, matrix has %d", name, len(names), n)
		}
		return names, nil
	}
	return positionalNames(n), nil
}

func readNameColumn(path string, col int) ([]string, error) {
	r, closeFn, err := openMaybeGzip(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if col < len(fields) && fields[col] != "" {
			out = append(out, fields[col])
		} else {
			out = append(out, fields[0])
		}
	}
	return out, sc.Err()
}

// openMaybeGzip opens path, decompressing when it ends in .gz.
func openMaybeGzip(path string) (io.Reader, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	if !strings.HasSuffix(strings.ToLower(path), ".gz") {
		return f, func() { f.Close() }, nil
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("gzip: %w", err)
	}
	return gz, func() { gz.Close(); f.Close() }, nil
}

func positionalNames(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.Itoa(i)
	}
	return out
}
