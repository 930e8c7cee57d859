package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/FLC-QU-hep/synthetic-data-generator/internal/logging"
	"github.com/FLC-QU-hep/synthetic-data-generator/internal/runs"
	_ "modernc.org/sqlite"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to fidelity.db")
	last := flag.Int("last", 20, "show N most recent runs")
	runID := flag.String("run", "", "show single run detail")
	observable := flag.String("observable", "", "filter metrics to one observable")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/fidelity.db [--last N] [--run id] [--observable name] [--json]")
		os.Exit(2)
	}

	store, err := runs.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if *runID != "" {
		err = runDetailMode(os.Stdout, store, *runID, *observable, *jsonOut)
	} else {
		err = runListMode(os.Stdout, store, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	RunID     string  `json:"run_id"`
	Kind      string  `json:"kind"`
	Mode      string  `json:"mode"`
	Count     int     `json:"count"`
	Passed    bool    `json:"passed"`
	Worst     *metric `json:"worst,omitempty"`
	CreatedAt string  `json:"created_at"`
}

func runListMode(w io.Writer, store *runs.Store, last int, jsonOut bool) error {
	recorded, err := store.ListRuns(last)
	if err != nil {
		return err
	}
	if len(recorded) == 0 {
		fmt.Fprintln(os.Stderr, "no runs found")
		return nil
	}

	// store returns DESC, reverse for chronological
	rows := make([]listRow, len(recorded))
	for i, r := range recorded {
		entries, err := store.Metrics(r.RunID)
		if err != nil {
			return err
		}
		rows[len(recorded)-1-i] = listRow{
			RunID:     r.RunID,
			Kind:      r.Kind.String(),
			Mode:      r.Mode,
			Count:     r.Count,
			Passed:    r.Passed,
			Worst:     worstMetric(entries),
			CreatedAt: r.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}

	if jsonOut {
		return printJSON(w, rows)
	}

	fmt.Fprintf(w, "%-10s  %-7s  %-8s  %6s  %-6s  %-18s  %8s  %s\n",
		"Run", "Kind", "Mode", "Count", "Passed", "Worst", "JSD", "Time")
	fmt.Fprintf(w, "%-10s+-%-7s+-%-8s+-%6s+-%-6s+-%-18s+-%8s+-%s\n",
		"----------", "-------", "--------", "------", "------", "------------------", "--------", "--------------------")
	for _, r := range rows {
		worst, jsd := "—", "—"
		if r.Worst != nil {
			worst = r.Worst.Observable
			jsd = formatDivergence(r.Worst.Divergence)
		}
		fmt.Fprintf(w, "%-10s  %-7s  %-8s  %6d  %-6v  %-18s  %8s  %s\n",
			shortID(r.RunID), r.Kind, r.Mode, r.Count, r.Passed, worst, jsd, r.CreatedAt)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type metric struct {
	Observable string   `json:"observable"`
	Divergence *float64 `json:"divergence"` // null for NaN
	Passed     bool     `json:"passed"`
	Warning    string   `json:"warning,omitempty"`
}

type detailOutput struct {
	RunID     string   `json:"run_id"`
	Kind      string   `json:"kind"`
	Mode      string   `json:"mode"`
	Count     int      `json:"count"`
	BatchSize int      `json:"batch_size"`
	MinE      float64  `json:"min_e"`
	MaxE      float64  `json:"max_e"`
	MIPCut    float64  `json:"mip_cut"`
	Passed    bool     `json:"passed"`
	Reason    string   `json:"reason"`
	CreatedAt string   `json:"created_at"`
	Params    any      `json:"params,omitempty"`
	Metrics   []metric `json:"metrics"`
}

func runDetailMode(w io.Writer, store *runs.Store, runID, observable string, jsonOut bool) error {
	r, err := store.GetRun(runID)
	if err != nil {
		return err
	}
	entries, err := store.Metrics(runID)
	if err != nil {
		return err
	}

	out := detailOutput{
		RunID:     r.RunID,
		Kind:      r.Kind.String(),
		Mode:      r.Mode,
		Count:     r.Count,
		BatchSize: r.BatchSize,
		MinE:      r.MinE,
		MaxE:      r.MaxE,
		MIPCut:    r.MIPCut,
		Passed:    r.Passed,
		Reason:    r.Reason,
		CreatedAt: r.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
	if r.ParamsJSON != "" {
		var params any
		if err := json.Unmarshal([]byte(r.ParamsJSON), &params); err == nil {
			out.Params = params
		}
	}
	for _, e := range entries {
		if observable != "" && e.Observable != observable {
			continue
		}
		out.Metrics = append(out.Metrics, toMetric(e))
	}

	if jsonOut {
		return printJSON(w, out)
	}

	fmt.Fprintf(w, "Run:      %s\n", out.RunID)
	fmt.Fprintf(w, "Created:  %s\n", out.CreatedAt)
	fmt.Fprintf(w, "Kind:     %s (%s)\n", out.Kind, out.Mode)
	fmt.Fprintf(w, "Samples:  %d in batches of %d\n", out.Count, out.BatchSize)
	fmt.Fprintf(w, "Energy:   [%g, %g]\n", out.MinE, out.MaxE)
	fmt.Fprintf(w, "MIP cut:  %g\n", out.MIPCut)
	fmt.Fprintf(w, "Passed:   %v\n", out.Passed)
	fmt.Fprintf(w, "Reason:   %s\n", out.Reason)

	fmt.Fprintf(w, "\nDivergences:\n")
	for _, m := range out.Metrics {
		status := "pass"
		if !m.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(w, "  %-18s %8s  %s", m.Observable, formatDivergence(m.Divergence), status)
		if m.Warning != "" {
			fmt.Fprintf(w, "  (%s)", m.Warning)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// #endregion detail-mode

// #region metrics

func toMetric(e logging.MetricEntry) metric {
	m := metric{Observable: e.Observable, Passed: e.Passed, Warning: e.Warning}
	if !math.IsNaN(e.Divergence) {
		d := e.Divergence
		m.Divergence = &d
	}
	return m
}

// worstMetric picks the largest divergence; NaN entries count as worst.
func worstMetric(entries []logging.MetricEntry) *metric {
	var worst *metric
	for _, e := range entries {
		m := toMetric(e)
		switch {
		case worst == nil:
			worst = &m
		case worst.Divergence == nil:
		case m.Divergence == nil || *m.Divergence > *worst.Divergence:
			worst = &m
		}
	}
	return worst
}

// #endregion metrics

// #region output

func formatDivergence(d *float64) string {
	if d == nil {
		return "NaN"
	}
	return fmt.Sprintf("%.4f", *d)
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
