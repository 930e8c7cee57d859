// Package dataset stores real detector showers in SQLite and serves them,
// transformed, for comparison against generated samples.
package dataset

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/FLC-QU-hep/synthetic-data-generator/internal/shower"
	"gorgonia.org/tensor"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS showers (
	idx     INTEGER PRIMARY KEY,
	energy  REAL NOT NULL,
	layers  INTEGER NOT NULL,
	xbins   INTEGER NOT NULL,
	ybins   INTEGER NOT NULL,
	image   BLOB NOT NULL
);
`
// #endregion schema

// #region store-struct
// Store keeps one row per shower; images are little-endian float32 blobs.
type Store struct {
	db *sql.DB
}
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
// #endregion constructor

// #region append
// Append stores one shower and returns its index.
func (s *Store) Append(energy float64, geom shower.Geometry, image []float64) (int, error) {
	if len(image) != geom.Cells() {
		return 0, &shower.ShapeError{Op: "append shower", Size: len(image), Want: tensor.Shape{geom.Layers, geom.X, geom.Y}}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var idx int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM showers`).Scan(&idx); err != nil {
		return 0, fmt.Errorf("count showers: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO showers (idx, energy, layers, xbins, ybins, image) VALUES (?, ?, ?, ?, ?, ?)`,
		idx, energy, geom.Layers, geom.X, geom.Y, encodeImage(image),
	)
	if err != nil {
		return 0, fmt.Errorf("insert shower: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return idx, nil
}

// Len returns the number of stored showers.
func (s *Store) Len() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM showers`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count showers: %w", err)
	}
	return n, nil
}
// #endregion append

// #region ranges
// DataRange returns images [start, start+count) as (n, layers, X, Y). Every
// shower in the range must share one geometry.
func (s *Store) DataRange(start, count int) (*tensor.Dense, error) {
	rows, err := s.db.Query(
		`SELECT layers, xbins, ybins, image FROM showers WHERE idx >= ? AND idx < ? ORDER BY idx`,
		start, start+count,
	)
	if err != nil {
		return nil, fmt.Errorf("data range: %w", err)
	}
	defer rows.Close()

	var geom shower.Geometry
	var vals []float64
	n := 0
	for rows.Next() {
		var g shower.Geometry
		var blob []byte
		if err := rows.Scan(&g.Layers, &g.X, &g.Y, &blob); err != nil {
			return nil, fmt.Errorf("scan shower: %w", err)
		}
		if n == 0 {
			geom = g
		} else if g != geom {
			return nil, fmt.Errorf("data range: shower %d has geometry %v, want %v", start+n, g, geom)
		}
		vals = append(vals, decodeImage(blob)...)
		n++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("data range: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("data range [%d, %d): %w", start, start+count, ErrNoShowers)
	}
	return shower.New(vals, geom.Shape(n)...)
}

// EnergyRange returns energies [start, start+count) as (n, 1).
func (s *Store) EnergyRange(start, count int) (*tensor.Dense, error) {
	rows, err := s.db.Query(
		`SELECT energy FROM showers WHERE idx >= ? AND idx < ? ORDER BY idx`,
		start, start+count,
	)
	if err != nil {
		return nil, fmt.Errorf("energy range: %w", err)
	}
	defer rows.Close()

	var energies []float64
	for rows.Next() {
		var e float64
		if err := rows.Scan(&e); err != nil {
			return nil, fmt.Errorf("scan energy: %w", err)
		}
		energies = append(energies, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("energy range: %w", err)
	}
	if len(energies) == 0 {
		return nil, fmt.Errorf("energy range [%d, %d): %w", start, start+count, ErrNoShowers)
	}
	return shower.New(energies, len(energies), 1)
}
// #endregion ranges

// #region image-encoding
func encodeImage(v []float64) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(f)))
	}
	return buf
}

func decodeImage(b []byte) []float64 {
	v := make([]float64, len(b)/4)
	for i := range v {
		v[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:])))
	}
	return v
}
// #endregion image-encoding
