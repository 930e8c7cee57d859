// Package runs persists generation runs and their per-observable
// divergences in SQLite.
package runs

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/FLC-QU-hep/synthetic-data-generator/internal/logging"
	"github.com/FLC-QU-hep/synthetic-data-generator/internal/shower"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	mode         TEXT NOT NULL,
	count        INTEGER NOT NULL,
	batch_size   INTEGER NOT NULL,
	min_e        REAL NOT NULL,
	max_e        REAL NOT NULL,
	mip_cut      REAL NOT NULL,
	params_json  TEXT,
	passed       INTEGER NOT NULL DEFAULT 0,
	reason       TEXT,
	created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS metric_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL,
	observable   TEXT NOT NULL,
	divergence   REAL,
	passed       INTEGER NOT NULL,
	warning      TEXT,
	created_at   TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
`
// #endregion schema

// #region store-struct
// Store manages recorded runs in SQLite.
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
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an already migrated database.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}
// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}
// #endregion close

// #region create-run
// CreateRun assigns a run ID and creation time and inserts the run.
func (s *Store) CreateRun(run Run) (Run, error) {
	if !run.Kind.Valid() {
		return Run{}, fmt.Errorf("create run: %w", shower.ErrUnknownKind)
	}
	run.RunID = uuid.New().String()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, kind, mode, count, batch_size, min_e, max_e, mip_cut, params_json, passed, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Kind.String(), run.Mode, run.Count, run.BatchSize,
		run.MinE, run.MaxE, run.MIPCut, nullIfEmpty(run.ParamsJSON),
		run.Passed, nullIfEmpty(run.Reason), run.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// SetOutcome records the evaluation verdict of a run.
func (s *Store) SetOutcome(runID string, passed bool, reason string) error {
	res, err := s.db.Exec(`UPDATE runs SET passed = ?, reason = ? WHERE run_id = ?`, passed, nullIfEmpty(reason), runID)
	if err != nil {
		return fmt.Errorf("set outcome: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set outcome: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}
// #endregion create-run

// #region get-run
// GetRun retrieves a run by ID.
func (s *Store) GetRun(id string) (Run, error) {
	row := s.db.QueryRow(
		`SELECT run_id, kind, mode, count, batch_size, min_e, max_e, mip_cut, params_json, passed, reason, created_at
		 FROM runs WHERE run_id = ?`, id,
	)
	run, err := scanRun(row)
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}
// #endregion get-run

// #region list-runs
// ListRuns returns the most recent runs.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	rows, err := s.db.Query(
		`SELECT run_id, kind, mode, count, batch_size, min_e, max_e, mip_cut, params_json, passed, reason, created_at
		 FROM runs ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
// #endregion list-runs

// #region metrics
// Metrics returns the metric log of a run in insertion order.
func (s *Store) Metrics(runID string) ([]logging.MetricEntry, error) {
	rows, err := s.db.Query(
		`SELECT run_id, observable, divergence, passed, warning, created_at
		 FROM metric_log WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("metrics %s: %w", runID, err)
	}
	defer rows.Close()

	var out []logging.MetricEntry
	for rows.Next() {
		var m logging.MetricEntry
		var div sql.NullFloat64
		var warning sql.NullString
		var createdStr string
		if err := rows.Scan(&m.RunID, &m.Observable, &div, &m.Passed, &warning, &createdStr); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		m.Divergence = math.NaN()
		if div.Valid {
			m.Divergence = div.Float64
		}
		if warning.Valid {
			m.Warning = warning.String
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, m)
	}
	return out, rows.Err()
}
// #endregion metrics

// #region helpers
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var run Run
	var kind, createdStr string
	var params, reason sql.NullString
	err := sc.Scan(&run.RunID, &kind, &run.Mode, &run.Count, &run.BatchSize,
		&run.MinE, &run.MaxE, &run.MIPCut, &params, &run.Passed, &reason, &createdStr)
	if err != nil {
		return Run{}, err
	}
	if run.Kind, err = shower.ParseKind(kind); err != nil {
		return Run{}, err
	}
	if params.Valid {
		run.ParamsJSON = params.String
	}
	if reason.Valid {
		run.Reason = reason.String
	}
	run.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return run, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
// #endregion helpers
