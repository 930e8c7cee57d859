package eval

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/FLC-QU-hep/synthetic-data-generator/internal/divergence"
	"github.com/FLC-QU-hep/synthetic-data-generator/internal/shower"
)

// #region eval-config
// EvalConfig holds the histogram layout of every observable and the
// divergence threshold a metric must stay under.
type EvalConfig struct {
	Occupancy       divergence.Binning `json:"occupancy"`
	TotalEnergy     divergence.Binning `json:"total_energy"`
	HitEnergy       divergence.Binning `json:"hit_energy"`
	SpinalBins      int                `json:"spinal_bins"`
	CenterOfGravity divergence.Binning `json:"center_of_gravity"`
	RadialEnergy    divergence.Binning `json:"radial_energy"`

	MaxDivergence float64 `json:"max_divergence"` // fail if JSD exceeds this

	// PlotDir, when set, receives a total energy comparison plot.
	PlotDir string `json:"plot_dir,omitempty"`
	Epoch   int    `json:"epoch,omitempty"`
}

// DefaultEvalConfig returns binnings sized for the kind's grid. The radial
// range covers the farthest cell from the grid center: about 8.5 cells on
// the 13×13 pion core, about 20.5 on the 30×30 photon grid. Kinds other
// than Photon get the pion layout.
func DefaultEvalConfig(kind shower.Kind) EvalConfig {
	cfg := EvalConfig{
		Occupancy:       divergence.Binning{Bins: 50, Min: 0, Max: 1500},
		TotalEnergy:     divergence.Binning{Bins: 50, Min: 0, Max: 2500},
		HitEnergy:       divergence.Binning{Bins: 50, Min: 0, Max: 50},
		SpinalBins:      48,
		CenterOfGravity: divergence.Binning{Bins: 48, Min: 0, Max: 48},
		RadialEnergy:    divergence.Binning{Bins: 20, Min: 0, Max: 10},
		MaxDivergence:   0.2,
	}
	if kind == shower.Photon {
		cfg.RadialEnergy = divergence.Binning{Bins: 21, Min: 0, Max: 21}
	}
	return cfg
}

// LoadEvalConfig reads a JSON EvalConfig from path. Fields left out of the
// file keep the kind's defaults.
func LoadEvalConfig(path string, kind shower.Kind) (EvalConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return EvalConfig{}, fmt.Errorf("read eval config: %w", err)
	}
	cfg := DefaultEvalConfig(kind)
	if err := json.Unmarshal(data, &cfg); err != nil {
		return EvalConfig{}, fmt.Errorf("parse eval config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return EvalConfig{}, fmt.Errorf("eval config %s: %w", path, err)
	}
	return cfg, nil
}

func (c EvalConfig) validate() error {
	for name, b := range map[string]divergence.Binning{
		"occupancy":         c.Occupancy,
		"total_energy":      c.TotalEnergy,
		"hit_energy":        c.HitEnergy,
		"center_of_gravity": c.CenterOfGravity,
		"radial_energy":     c.RadialEnergy,
	} {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.SpinalBins <= 0 {
		return fmt.Errorf("spinal_bins: %d", c.SpinalBins)
	}
	return nil
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures the divergence of one observable.
type EvalMetric struct {
	Name    string
	Value   float64
	Pass    bool
	Warning error // divergence.ErrBinMismatch when the histograms disagree
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of a real-vs-fake comparison.
type EvalResult struct {
	Passed  bool
	Metrics []EvalMetric
	Reason  string
}

// #endregion eval-result
