package dataset

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"secuer/internal/anndata"
)

// readDelimited reads a text table whose first row holds feature ids and
// whose first column holds observation ids. The header may or may not carry
// a corner label.
func readDelimited(path string) (*anndata.Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	first, err := br.Peek(4096)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, err
	}
	delim, fields := sniffDelimiter(Extension(path), string(first))

	var records [][]string
	if fields {
		records, err = readFields(br)
	} else {
		r := csv.NewReader(br)
		r.Comma = delim
		r.FieldsPerRecord = -1
		r.TrimLeadingSpace = true
		records, err = r.ReadAll()
	}
	if err != nil {
		return nil, err
	}
	return parseTable(records)
}

func sniffDelimiter(ext, head string) (rune, bool) {
	switch ext {
	case "csv":
		return ',', false
	case "tsv", "tab":
		return '\t', false
	}
	line := head
	if i := strings.IndexByte(head, '\n'); i >= 0 {
		line = head[:i]
	}
	switch {
	case strings.Contains(line, "\t"):
		return '\t', false
	case strings.Contains(line, ","):
		return ',', false
	}
	return 0, true
}

func readFields(r io.Reader) ([][]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1024*1024), 64*1024*1024)
	var out [][]string
	for sc.Scan() {
		f := strings.Fields(sc.Text())
		if len(f) == 0 {
			continue
		}
		out = append(out, f)
	}
	return out, sc.Err()
}

func parseTable(records [][]string) (*anndata.Matrix, error) {
	if len(records) < 2 {
		return nil, fmt.Errorf("table needs a header and at least one row, got %d lines", len(records))
	}
	header := records[0]
	width := len(records[1])
	if width < 2 {
		return nil, fmt.Errorf("table rows need an id column and at least one value")
	}
	var varNames []string
	switch len(header) {
	case width:
		varNames = header[1:]
	case width - 1:
		varNames = header
	default:
		return nil, fmt.Errorf("header has %d fields but rows have %d", len(header), width)
	}
	obsNames := make([]string, 0, len(records)-1)
	x := make([][]float64, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) != width {
			return nil, fmt.Errorf("line %d has %d fields, want %d", i+2, len(rec), width)
		}
		row := make([]float64, width-1)
		for j, cell := range rec[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %d: %w", i+2, j+2, err)
			}
			row[j] = v
		}
		obsNames = append(obsNames, rec[0])
		x = append(x, row)
	}
	return anndata.New(x, obsNames, append([]string(nil), varNames...))
}
