// Package container persists annotated matrices as self-describing SQLite
// files (extension .scdb). Rows of X and of every obsm block are stored as
// little-endian float64 BLOBs.
package container

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"

	_ "modernc.org/sqlite"

	"secuer/internal/anndata"
)

// Extension is the file extension of the container format.
const Extension = "scdb"

// FormatVersion is stored under uns["scdb_version"].
const FormatVersion = "1"

const schema = `
CREATE TABLE uns (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE obs_names (
	idx  INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE var_names (
	idx  INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE x_rows (
	idx  INTEGER PRIMARY KEY,
	data BLOB NOT NULL
);

CREATE TABLE obs_columns (
	column_name TEXT NOT NULL,
	idx         INTEGER NOT NULL,
	value       TEXT NOT NULL,
	PRIMARY KEY (column_name, idx)
);

CREATE TABLE var_columns (
	column_name TEXT NOT NULL,
	idx         INTEGER NOT NULL,
	value       TEXT NOT NULL,
	PRIMARY KEY (column_name, idx)
);

CREATE TABLE obsm_rows (
	key  TEXT NOT NULL,
	idx  INTEGER NOT NULL,
	data BLOB NOT NULL,
	PRIMARY KEY (key, idx)
);
`

// Write stores m at path, replacing any existing file.
func Write(path string, m *anndata.Matrix) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("container: replace %s: %w", path, err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("container: open db: %w", err)
	}
	defer db.Close()
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("container: migrate: %w", err)
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("container: begin: %w", err)
	}
	if err := writeAll(tx, m); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("container: commit: %w", err)
	}
	return nil
}

func writeAll(tx *sql.Tx, m *anndata.Matrix) error {
	if _, err := tx.Exec(`INSERT INTO uns (key, value) VALUES (?, ?)`, "scdb_version", FormatVersion); err != nil {
		return fmt.Errorf("container: uns: %w", err)
	}
	for k, v := range m.Uns {
		if k == "scdb_version" {
			continue
		}
		if _, err := tx.Exec(`INSERT INTO uns (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("container: uns %s: %w", k, err)
		}
	}
	for i, name := range m.ObsNames {
		if _, err := tx.Exec(`INSERT INTO obs_names (idx, name) VALUES (?, ?)`, i, name); err != nil {
			return fmt.Errorf("container: obs name %q: %w", name, err)
		}
	}
	for j, name := range m.VarNames {
		if _, err := tx.Exec(`INSERT INTO var_names (idx, name) VALUES (?, ?)`, j, name); err != nil {
			return fmt.Errorf("container: var name %q: %w", name, err)
		}
	}
	for i, row := range m.X {
		if _, err := tx.Exec(`INSERT INTO x_rows (idx, data) VALUES (?, ?)`, i, encodeRow(row)); err != nil {
			return fmt.Errorf("container: x row %d: %w", i, err)
		}
	}
	if err := writeColumns(tx, "obs_columns", m.Obs); err != nil {
		return err
	}
	if err := writeColumns(tx, "var_columns", m.Var); err != nil {
		return err
	}
	for key, block := range m.Obsm {
		for i, row := range block {
			if _, err := tx.Exec(`INSERT INTO obsm_rows (key, idx, data) VALUES (?, ?, ?)`, key, i, encodeRow(row)); err != nil {
				return fmt.Errorf("container: obsm %s row %d: %w", key, i, err)
			}
		}
	}
	return nil
}

func writeColumns(tx *sql.Tx, table string, cols map[string][]string) error {
	stmt := fmt.Sprintf(`INSERT INTO %s (column_name, idx, value) VALUES (?, ?, ?)`, table)
	for name, values := range cols {
		for i, v := range values {
			if _, err := tx.Exec(stmt, name, i, v); err != nil {
				return fmt.Errorf("container: %s %s[%d]: %w", table, name, i, err)
			}
		}
	}
	return nil
}

// Read loads a matrix written by Write.
func Read(path string) (*anndata.Matrix, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("container: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("container: open db: %w", err)
	}
	defer db.Close()

	obsNames, err := readNames(db, "obs_names")
	if err != nil {
		return nil, err
	}
	varNames, err := readNames(db, "var_names")
	if err != nil {
		return nil, err
	}
	x, err := readRows(db, `SELECT idx, data FROM x_rows ORDER BY idx`, len(obsNames))
	if err != nil {
		return nil, err
	}
	m, err := anndata.New(x, obsNames, varNames)
	if err != nil {
		return nil, fmt.Errorf("container: %w", err)
	}
	if m.Obs, err = readColumns(db, "obs_columns", len(obsNames)); err != nil {
		return nil, err
	}
	if m.Var, err = readColumns(db, "var_columns", len(varNames)); err != nil {
		return nil, err
	}
	if m.Obsm, err = readObsm(db, len(obsNames)); err != nil {
		return nil, err
	}
	rows, err := db.Query(`SELECT key, value FROM uns`)
	if err != nil {
		return nil, fmt.Errorf("container: uns: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("container: uns scan: %w", err)
		}
		m.Uns[k] = v
	}
	return m, rows.Err()
}

func readNames(db *sql.DB, table string) ([]string, error) {
	rows, err := db.Query(fmt.Sprintf(`SELECT name FROM %s ORDER BY idx`, table))
	if err != nil {
		return nil, fmt.Errorf("container: %s: %w", table, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("container: %s scan: %w", table, err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func readRows(db *sql.DB, query string, n int, args ...any) ([][]float64, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("container: rows: %w", err)
	}
	defer rows.Close()
	out := make([][]float64, n)
	for rows.Next() {
		var (
			idx  int
			data []byte
		)
		if err := rows.Scan(&idx, &data); err != nil {
			return nil, fmt.Errorf("container: row scan: %w", err)
		}
		if idx < 0 || idx >= n {
			return nil, fmt.Errorf("container: row index %d out of range [0,%d)", idx, n)
		}
		out[idx] = decodeRow(data)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, r := range out {
		if r == nil {
			return nil, fmt.Errorf("container: row %d missing", i)
		}
	}
	return out, nil
}

func readColumns(db *sql.DB, table string, n int) (map[string][]string, error) {
	rows, err := db.Query(fmt.Sprintf(`SELECT column_name, idx, value FROM %s ORDER BY column_name, idx`, table))
	if err != nil {
		return nil, fmt.Errorf("container: %s: %w", table, err)
	}
	defer rows.Close()
	out := map[string][]string{}
	for rows.Next() {
		var (
			name, value string
			idx         int
		)
		if err := rows.Scan(&name, &idx, &value); err != nil {
			return nil, fmt.Errorf("container: %s scan: %w", table, err)
		}
		col, ok := out[name]
		if !ok {
			col = make([]string, n)
			out[name] = col
		}
		if idx < 0 || idx >= n {
			return nil, fmt.Errorf("container: %s %s index %d out of range", table, name, idx)
		}
		col[idx] = value
	}
	return out, rows.Err()
}

func readObsm(db *sql.DB, n int) (map[string][][]float64, error) {
	keys, err := db.Query(`SELECT DISTINCT key FROM obsm_rows ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("container: obsm keys: %w", err)
	}
	var names []string
	for keys.Next() {
		var k string
		if err := keys.Scan(&k); err != nil {
			keys.Close()
			return nil, fmt.Errorf("container: obsm key scan: %w", err)
		}
		names = append(names, k)
	}
	keys.Close()
	out := make(map[string][][]float64, len(names))
	for _, k := range names {
		block, err := readRows(db, `SELECT idx, data FROM obsm_rows WHERE key = ? ORDER BY idx`, n, k)
		if err != nil {
			return nil, err
		}
		out[k] = block
	}
	return out, nil
}

func encodeRow(v []float64) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeRow(b []byte) []float64 {
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return v
}
