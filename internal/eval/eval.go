package eval

import (
	"fmt"

	"github.com/FLC-QU-hep/synthetic-data-generator/internal/divergence"
	"github.com/FLC-QU-hep/synthetic-data-generator/internal/observables"
	"github.com/FLC-QU-hep/synthetic-data-generator/internal/shower"
	"gorgonia.org/tensor"
)

// Metric names, in the order Run reports them.
const (
	MetricOccupancy       = "occupancy"
	MetricTotalEnergy     = "total_energy"
	MetricHitEnergy       = "hit_energy"
	MetricSpinalProfile   = "spinal_profile"
	MetricCenterOfGravity = "center_of_gravity"
	MetricRadialEnergy    = "radial_energy"
)

// #region eval-harness
// EvalHarness compares real and generated showers observable by observable.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run computes the JSD of every observable between real and generated images of
// the given kind. A metric passes when its divergence is at most
// MaxDivergence; NaN divergences never pass.
func (h *EvalHarness) Run(realImages, fakeImages *tensor.Dense, kind shower.Kind) (EvalResult, error) {
	geom, err := kind.Geometry()
	if err != nil {
		return EvalResult{}, fmt.Errorf("eval: %w", err)
	}
	r, err := extract(realImages, geom)
	if err != nil {
		return EvalResult{}, fmt.Errorf("eval real: %w", err)
	}
	f, err := extract(fakeImages, geom)
	if err != nil {
		return EvalResult{}, fmt.Errorf("eval fake: %w", err)
	}

	type check struct {
		name string
		run  func() (divergence.Result, error)
	}
	checks := []check{
		{MetricOccupancy, func() (divergence.Result, error) {
			return divergence.JSD(r.occupancy, f.occupancy, h.config.Occupancy)
		}},
		{MetricTotalEnergy, func() (divergence.Result, error) {
			if h.config.PlotDir != "" {
				return divergence.JSDPlot(r.totalEnergy, f.totalEnergy, h.config.TotalEnergy, h.config.Epoch, h.config.PlotDir)
			}
			return divergence.JSD(r.totalEnergy, f.totalEnergy, h.config.TotalEnergy)
		}},
		{MetricHitEnergy, func() (divergence.Result, error) {
			return divergence.JSD(r.hitEnergies, f.hitEnergies, h.config.HitEnergy)
		}},
		{MetricSpinalProfile, func() (divergence.Result, error) {
			return divergence.JSDSpinal(r.spinal, f.spinal, h.config.SpinalBins)
		}},
		{MetricCenterOfGravity, func() (divergence.Result, error) {
			return divergence.JSD(r.cog, f.cog, h.config.CenterOfGravity)
		}},
		{MetricRadialEnergy, func() (divergence.Result, error) {
			return divergence.JSDRadial(r.radial.R, f.radial.R, r.radial.E, f.radial.E, h.config.RadialEnergy)
		}},
	}

	var metrics []EvalMetric
	passed := true
	var failReasons []string
	for _, c := range checks {
		res, err := c.run()
		if err != nil {
			return EvalResult{}, fmt.Errorf("eval %s: %w", c.name, err)
		}
		pass := res.Divergence <= h.config.MaxDivergence
		metrics = append(metrics, EvalMetric{
			Name:    c.name,
			Value:   res.Divergence,
			Pass:    pass,
			Warning: res.Warning,
		})
		if !pass {
			passed = false
			failReasons = append(failReasons, fmt.Sprintf("%s divergence %.4f exceeds %.4f", c.name, res.Divergence, h.config.MaxDivergence))
		}
	}

	reason := "all checks passed"
	if !passed {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
		if len(failReasons) > 1 {
			reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
		}
	}

	return EvalResult{
		Passed:  passed,
		Metrics: metrics,
		Reason:  reason,
	}, nil
}

// #endregion eval-harness

// #region helpers
type features struct {
	occupancy   []float64
	totalEnergy []float64
	hitEnergies []float64
	spinal      *tensor.Dense
	cog         []float64
	radial      observables.Radial
}

func extract(images *tensor.Dense, g shower.Geometry) (features, error) {
	var f features
	var err error
	if f.occupancy, err = observables.Occupancy(images, g.X, g.Y, g.Layers); err != nil {
		return features{}, err
	}
	if f.totalEnergy, err = observables.TotalEnergy(images, g.X, g.Y, g.Layers); err != nil {
		return features{}, err
	}
	if f.hitEnergies, err = observables.HitEnergies(images, g.X, g.Y, g.Layers); err != nil {
		return features{}, err
	}
	if f.spinal, err = observables.SpinalProfile(images, g.X, g.Y, g.Layers); err != nil {
		return features{}, err
	}
	if f.cog, err = observables.CenterOfGravity(f.spinal); err != nil {
		return features{}, err
	}
	if f.radial, err = observables.RadialDistribution(images, g.X, g.Y, g.Layers); err != nil {
		return features{}, err
	}
	return f, nil
}

// #endregion helpers
