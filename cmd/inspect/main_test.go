package main

import (
	"bytes"
	"encoding/json"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/FLC-QU-hep/synthetic-data-generator/internal/logging"
	"github.com/FLC-QU-hep/synthetic-data-generator/internal/runs"
	"github.com/FLC-QU-hep/synthetic-data-generator/internal/shower"
)

func seededStore(t *testing.T) (*runs.Store, string) {
	t.Helper()
	s, err := runs.NewStore(filepath.Join(t.TempDir(), "fidelity.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	run, err := s.CreateRun(runs.Run{Kind: shower.Photon, Mode: runs.ModeRefined, Count: 200, BatchSize: 100, MaxE: 100})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	for _, e := range []logging.MetricEntry{
		{RunID: run.RunID, Observable: "occupancy", Divergence: 0.02, Passed: true},
		{RunID: run.RunID, Observable: "hit_energy", Divergence: 0.31},
	} {
		if err := logging.LogMetric(s.DB(), e); err != nil {
			t.Fatalf("LogMetric: %v", err)
		}
	}
	return s, run.RunID
}

func TestWorstMetric(t *testing.T) {
	entries := []logging.MetricEntry{
		{Observable: "a", Divergence: 0.1},
		{Observable: "b", Divergence: 0.4},
		{Observable: "c", Divergence: 0.2},
	}
	if w := worstMetric(entries); w.Observable != "b" {
		t.Errorf("expected b, got %s", w.Observable)
	}

	entries = append(entries, logging.MetricEntry{Observable: "d", Divergence: math.NaN()})
	if w := worstMetric(entries); w.Observable != "d" || w.Divergence != nil {
		t.Errorf("expected NaN entry d to be worst, got %+v", w)
	}
	if worstMetric(nil) != nil {
		t.Error("expected nil for no metrics")
	}
}

func TestListModeTable(t *testing.T) {
	s, id := seededStore(t)
	var buf bytes.Buffer
	if err := runListMode(&buf, s, 10, false); err != nil {
		t.Fatalf("runListMode: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, shortID(id)) || !strings.Contains(out, "hit_energy") {
		t.Errorf("expected run and worst observable in table, got:\n%s", out)
	}
}

func TestDetailModeJSON(t *testing.T) {
	s, id := seededStore(t)
	var buf bytes.Buffer
	if err := runDetailMode(&buf, s, id, "occupancy", true); err != nil {
		t.Fatalf("runDetailMode: %v", err)
	}
	var out detailOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Kind != "photon" || len(out.Metrics) != 1 || out.Metrics[0].Observable != "occupancy" {
		t.Errorf("unexpected detail %+v", out)
	}
}

func TestDetailModeUnknownRun(t *testing.T) {
	s, _ := seededStore(t)
	var buf bytes.Buffer
	if err := runDetailMode(&buf, s, "missing", "", false); err == nil {
		t.Fatal("expected error for unknown run")
	}
}
