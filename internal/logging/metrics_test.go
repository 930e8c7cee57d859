package logging

import (
	"database/sql"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/FLC-QU-hep/synthetic-data-generator/internal/divergence"
	"github.com/FLC-QU-hep/synthetic-data-generator/internal/eval"
	_ "modernc.org/sqlite"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	_, err = db.Exec(`CREATE TABLE metric_log (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id      TEXT NOT NULL,
		observable  TEXT NOT NULL,
		divergence  REAL,
		passed      INTEGER NOT NULL,
		warning     TEXT,
		created_at  TEXT NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

// #endregion helpers

// #region log-metric-tests
func TestLogMetric_Success(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := MetricEntry{
		RunID:      "run-1",
		Observable: "total_energy",
		Divergence: 0.12,
		Passed:     true,
		CreatedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	if err := LogMetric(db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM metric_log").Scan(&count)
	if count != 1 {
		t.Errorf("expected 1 row, got %d", count)
	}

	var runID, observable string
	var div float64
	var passed bool
	db.QueryRow("SELECT run_id, observable, divergence, passed FROM metric_log").Scan(&runID, &observable, &div, &passed)
	if runID != "run-1" {
		t.Errorf("expected run_id 'run-1', got %q", runID)
	}
	if observable != "total_energy" {
		t.Errorf("expected observable 'total_energy', got %q", observable)
	}
	if div != 0.12 || !passed {
		t.Errorf("expected 0.12 passed, got %f %v", div, passed)
	}
}

func TestLogMetric_ZeroCreatedAt(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	before := time.Now().UTC()
	if err := LogMetric(db, MetricEntry{RunID: "run-2", Observable: "occupancy"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var createdAtStr string
	db.QueryRow("SELECT created_at FROM metric_log").Scan(&createdAtStr)
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		t.Fatalf("parse created_at: %v", err)
	}
	if createdAt.Before(before) {
		t.Error("expected auto-filled created_at to be >= test start time")
	}
}

func TestLogMetric_NaNAndEmptyWarning(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := MetricEntry{RunID: "run-3", Observable: "center_of_gravity", Divergence: math.NaN()}
	if err := LogMetric(db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var div sql.NullFloat64
	var warning sql.NullString
	db.QueryRow("SELECT divergence, warning FROM metric_log").Scan(&div, &warning)
	if div.Valid {
		t.Errorf("expected NULL divergence for NaN, got %f", div.Float64)
	}
	if warning.Valid {
		t.Errorf("expected NULL warning, got %q", warning.String)
	}
}

func TestLogMetric_MissingTable(t *testing.T) {
	db, _ := sql.Open("sqlite", ":memory:")
	defer db.Close()
	if err := LogMetric(db, MetricEntry{RunID: "r", Observable: "o"}); err == nil {
		t.Fatal("expected error without metric_log table")
	}
}

// #endregion log-metric-tests

// #region log-eval-tests
func TestLogEvalResult(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	res := eval.EvalResult{
		Passed: false,
		Metrics: []eval.EvalMetric{
			{Name: "occupancy", Value: 0.01, Pass: true},
			{Name: "hit_energy", Value: math.NaN(), Pass: false, Warning: divergence.ErrBinMismatch},
		},
	}
	if err := LogEvalResult(db, "run-4", res); err != nil {
		t.Fatalf("LogEvalResult: %v", err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM metric_log WHERE run_id = 'run-4'").Scan(&count)
	if count != 2 {
		t.Fatalf("expected 2 rows, got %d", count)
	}

	var warning string
	db.QueryRow("SELECT warning FROM metric_log WHERE observable = 'hit_energy'").Scan(&warning)
	if warning != divergence.ErrBinMismatch.Error() {
		t.Errorf("expected bin mismatch warning, got %q", warning)
	}
}

func TestLogEvalResult_RollsBackOnError(t *testing.T) {
	db, _ := sql.Open("sqlite", ":memory:")
	defer db.Close()
	res := eval.EvalResult{Metrics: []eval.EvalMetric{{Name: "occupancy"}}}
	err := LogEvalResult(db, "run-5", res)
	if err == nil {
		t.Fatal("expected error without metric_log table")
	}
	if errors.Is(err, sql.ErrTxDone) {
		t.Errorf("unexpected tx state error: %v", err)
	}
}

// #endregion log-eval-tests
