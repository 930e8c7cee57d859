package latent

import (
	"context"

	"gorgonia.org/tensor"
)

// #region contract
// GradientRequest describes one backward pass through critic(generator(z, e), e).
type GradientRequest struct {
	Latent *tensor.Dense // (batch, latentDim, 1, 1, 1)
	Energy *tensor.Dense // generator conditioning

	// ImageShape is the generator output with a channel axis inserted after
	// the batch axis, as the critic consumes it.
	ImageShape tensor.Shape
	// CriticEnergyShape is the conditioning shape the critic expects.
	CriticEnergyShape tensor.Shape
}

// Differentiable is a generator/critic pair that can backpropagate the summed
// critic score to the latent input.
type Differentiable interface {
	ScoreGradient(ctx context.Context, req GradientRequest) (*tensor.Dense, error)
}
// #endregion contract

// #region options
// Options holds the step parameters of the latent refinement.
type Options struct {
	Alpha float64 // step scale
	Beta  float64 // denominator offset
	Norm  float64 // divisor of the ones-tensor norm
}

// DefaultOptions returns the standard refinement step parameters.
func DefaultOptions() Options {
	return Options{
		Alpha: 500,
		Beta:  0.1,
		Norm:  1000,
	}
}
// #endregion options
