package logging

import "time"

// #region metric-entry
// MetricEntry is a single row in the metric_log table: one observable's
// divergence for one run.
type MetricEntry struct {
	RunID      string
	Observable string
	Divergence float64 // NaN when the histograms were degenerate
	Passed     bool
	Warning    string
	CreatedAt  time.Time
}
// #endregion metric-entry
