package sampler

import (
	"context"
	"math/rand/v2"

	"github.com/FLC-QU-hep/synthetic-data-generator/internal/latent"
	"github.com/FLC-QU-hep/synthetic-data-generator/internal/shower"
	"gorgonia.org/tensor"
)

// #region contracts
// Generator maps latent vectors and energy conditions to shower images.
type Generator interface {
	Generate(ctx context.Context, z, energy *tensor.Dense) (*tensor.Dense, error)
}

// RefinablePair is a generator whose critic can backpropagate to the latent.
type RefinablePair interface {
	Generator
	latent.Differentiable
}

// Progress receives the cumulative number of generated samples.
type Progress interface {
	Update(done int)
}

// ProgressFunc adapts a function to Progress.
type ProgressFunc func(done int)

func (f ProgressFunc) Update(done int) { f(done) }
// #endregion contracts

// #region configs
// PlainConfig parameterizes Generate.
type PlainConfig struct {
	Count     int
	BatchSize int
	MinE      float64
	MaxE      float64

	NoiseShape  []int // per-sample latent shape
	EnergyShape []int // per-sample conditioning shape

	Src rand.Source // nil uses the global source
}

// DefaultPlainConfig returns a pion sampling setup with a 100-dim latent.
func DefaultPlainConfig() PlainConfig {
	return PlainConfig{
		Count:       1000,
		BatchSize:   100,
		MinE:        10,
		MaxE:        100,
		NoiseShape:  []int{100, 1, 1, 1},
		EnergyShape: []int{1, 1, 1, 1},
	}
}

// RefinedConfig parameterizes GenerateRefined.
type RefinedConfig struct {
	Count     int
	BatchSize int
	LatentDim int
	MinE      float64
	MaxE      float64
	MIPCut    float64 // cells below this are zeroed
	Kind      shower.Kind

	Refine latent.Options
	Src    rand.Source
}

// DefaultRefinedConfig returns refined sampling defaults for kind.
func DefaultRefinedConfig(kind shower.Kind) RefinedConfig {
	return RefinedConfig{
		Count:     1000,
		BatchSize: 100,
		LatentDim: 100,
		MinE:      10,
		MaxE:      100,
		MIPCut:    0.25,
		Kind:      kind,
		Refine:    latent.DefaultOptions(),
	}
}
// #endregion configs

// #region output
// Output is a generated dataset: images (n, layers, X, Y) and their energies
// stacked along the first axis.
type Output struct {
	Images   *tensor.Dense
	Energies *tensor.Dense
}

// Len returns the number of generated samples.
func (o Output) Len() int {
	if o.Images == nil {
		return 0
	}
	return o.Images.Shape()[0]
}
// #endregion output
