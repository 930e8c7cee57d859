package logging

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/FLC-QU-hep/synthetic-data-generator/internal/eval"
)

// #region log-metric
// LogMetric writes a metric entry to the metric_log table.
func LogMetric(db *sql.DB, entry MetricEntry) error {
	return logMetric(db, entry)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func logMetric(db execer, entry MetricEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO metric_log (run_id, observable, divergence, passed, warning, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		entry.Observable,
		nullIfNaN(entry.Divergence),
		entry.Passed,
		nullIfEmpty(entry.Warning),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log metric %s: %w", entry.Observable, err)
	}
	return nil
}
// #endregion log-metric

// #region log-eval
// LogEvalResult writes every metric of res for runID in one transaction.
func LogEvalResult(db *sql.DB, runID string, res eval.EvalResult) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, m := range res.Metrics {
		entry := MetricEntry{
			RunID:      runID,
			Observable: m.Name,
			Divergence: m.Value,
			Passed:     m.Pass,
			CreatedAt:  now,
		}
		if m.Warning != nil {
			entry.Warning = m.Warning.Error()
		}
		if err := logMetric(tx, entry); err != nil {
			return err
		}
	}
	return tx.Commit()
}
// #endregion log-eval

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullIfNaN(f float64) interface{} {
	if math.IsNaN(f) {
		return nil
	}
	return f
}
// #endregion helpers
