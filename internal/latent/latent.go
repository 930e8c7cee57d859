// Package latent refines generator noise along the critic's gradient.
package latent

import (
	"context"
	"fmt"

	"github.com/FLC-QU-hep/synthetic-data-generator/internal/shower"
	"gonum.org/v1/gonum/floats"
	"gorgonia.org/tensor"
)

// #region refine
// Refine performs one natural-gradient-like step on the latent batch z:
//
//	delta = alpha*grad / (beta + ||ones_like(grad)||_2(axis 0) / norm)
//	z'    = clamp(z + delta, -1, 1)
//
// The denominator uses the norm of a ones tensor shaped like the gradient,
// not the gradient itself. z is left untouched.
func Refine(ctx context.Context, pair Differentiable, z, energy *tensor.Dense, batch int, kind shower.Kind, opts Options) (*tensor.Dense, error) {
	geom, err := kind.Geometry()
	if err != nil {
		return nil, fmt.Errorf("refine: %w", err)
	}
	criticEnergy, err := kind.CriticEnergyShape(batch, energy.Shape())
	if err != nil {
		return nil, fmt.Errorf("refine: %w", err)
	}

	grad, err := pair.ScoreGradient(ctx, GradientRequest{
		Latent:            z,
		Energy:            energy,
		ImageShape:        tensor.Shape{batch, 1, geom.Layers, geom.X, geom.Y},
		CriticEnergyShape: criticEnergy,
	})
	if err != nil {
		return nil, fmt.Errorf("refine: score gradient: %w", err)
	}

	zVals, err := shower.Values(z)
	if err != nil {
		return nil, fmt.Errorf("refine: latent: %w", err)
	}
	gVals, err := shower.Values(grad)
	if err != nil {
		return nil, fmt.Errorf("refine: gradient: %w", err)
	}
	if len(gVals) != len(zVals) {
		return nil, &shower.ShapeError{Op: "refine gradient", Size: len(gVals), Want: z.Shape().Clone()}
	}

	denom := onesNormDenominator(z.Shape(), opts)
	out := make([]float64, len(zVals))
	for i := range zVals {
		delta := opts.Alpha * gVals[i] / denom[i%len(denom)]
		out[i] = clamp(zVals[i]+delta, -1, 1)
	}
	return shower.New(out, z.Shape().Clone()...)
}
// #endregion refine

// #region helpers
// onesNormDenominator returns beta + ||ones||_2/norm for every position of
// the trailing axes, the L2 norm taken along the first axis.
func onesNormDenominator(shape tensor.Shape, opts Options) []float64 {
	rows, positions := 1, 1
	for i, d := range shape {
		if i == 0 {
			rows = d
			continue
		}
		positions *= d
	}

	column := make([]float64, rows)
	for i := range column {
		column[i] = 1
	}
	denom := make([]float64, positions)
	for j := range denom {
		denom[j] = opts.Beta + floats.Norm(column, 2)/opts.Norm
	}
	return denom
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
// #endregion helpers
