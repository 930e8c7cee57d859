// Package sampler produces synthetic shower datasets from a conditional
// generator in fixed-size batches.
package sampler

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/FLC-QU-hep/synthetic-data-generator/internal/latent"
	"github.com/FLC-QU-hep/synthetic-data-generator/internal/shower"
	"gonum.org/v1/gonum/stat/distuv"
	"gorgonia.org/tensor"
)

// #region generate
// Generate draws fresh noise in [-1, 1] and energies in [MinE, MaxE] for every
// full batch up to Count and runs the generator on them. A trailing partial
// batch is not generated. Images are returned in the pion geometry.
func Generate(ctx context.Context, gen Generator, cfg PlainConfig, progress Progress) (Output, error) {
	if err := checkChunking(cfg.Count, cfg.BatchSize, cfg.MinE, cfg.MaxE); err != nil {
		return Output{}, fmt.Errorf("generate: %w", err)
	}
	geom, _ := shower.Pion.Geometry()

	var images, energies []*tensor.Dense
	for done := cfg.BatchSize; done <= cfg.Count; done += cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return Output{}, fmt.Errorf("generate: %w", err)
		}
		noise, err := uniformBatch(cfg.BatchSize, cfg.NoiseShape, -1, 1, cfg.Src)
		if err != nil {
			return Output{}, fmt.Errorf("generate noise: %w", err)
		}
		energy, err := uniformBatch(cfg.BatchSize, cfg.EnergyShape, cfg.MinE, cfg.MaxE, cfg.Src)
		if err != nil {
			return Output{}, fmt.Errorf("generate energy: %w", err)
		}

		fake, err := gen.Generate(ctx, noise, energy)
		if err != nil {
			return Output{}, fmt.Errorf("generate batch ending at %d: %w", done, err)
		}
		images = append(images, fake)
		energies = append(energies, energy)
		report(progress, done)
	}

	return assemble(images, energies, geom)
}
// #endregion generate

// #region generate-refined
// GenerateRefined is Generate with one latent refinement step per batch
// before generation. Cells below MIPCut are zeroed and images are returned in
// the geometry of cfg.Kind.
func GenerateRefined(ctx context.Context, pair RefinablePair, cfg RefinedConfig, progress Progress) (Output, error) {
	geom, err := cfg.Kind.Geometry()
	if err != nil {
		return Output{}, fmt.Errorf("generate refined: %w", err)
	}
	if err := checkChunking(cfg.Count, cfg.BatchSize, cfg.MinE, cfg.MaxE); err != nil {
		return Output{}, fmt.Errorf("generate refined: %w", err)
	}
	if cfg.LatentDim <= 0 {
		return Output{}, fmt.Errorf("generate refined: latent dim %d", cfg.LatentDim)
	}

	var images, energies []*tensor.Dense
	for done := cfg.BatchSize; done <= cfg.Count; done += cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return Output{}, fmt.Errorf("generate refined: %w", err)
		}
		z, err := uniformBatch(cfg.BatchSize, []int{cfg.LatentDim, 1, 1, 1}, -1, 1, cfg.Src)
		if err != nil {
			return Output{}, fmt.Errorf("generate refined latent: %w", err)
		}
		energy, err := uniformBatch(cfg.BatchSize, []int{1, 1, 1, 1}, cfg.MinE, cfg.MaxE, cfg.Src)
		if err != nil {
			return Output{}, fmt.Errorf("generate refined energy: %w", err)
		}

		zPrime, err := latent.Refine(ctx, pair, z, energy, cfg.BatchSize, cfg.Kind, cfg.Refine)
		if err != nil {
			return Output{}, fmt.Errorf("generate refined batch ending at %d: %w", done, err)
		}
		fake, err := pair.Generate(ctx, zPrime, energy)
		if err != nil {
			return Output{}, fmt.Errorf("generate refined batch ending at %d: %w", done, err)
		}
		fake, err = mipCut(fake, cfg.MIPCut)
		if err != nil {
			return Output{}, fmt.Errorf("generate refined: %w", err)
		}

		images = append(images, fake)
		energies = append(energies, energy)
		report(progress, done)
	}

	return assemble(images, energies, geom)
}
// #endregion generate-refined

// #region helpers
func checkChunking(count, batch int, minE, maxE float64) error {
	if batch <= 0 {
		return fmt.Errorf("batch size %d", batch)
	}
	if count < batch {
		return fmt.Errorf("count %d is smaller than one batch of %d", count, batch)
	}
	if minE > maxE {
		return fmt.Errorf("energy range [%g, %g]", minE, maxE)
	}
	return nil
}

// uniformBatch allocates a (batch, shape...) tensor of uniform draws.
func uniformBatch(batch int, shape []int, lo, hi float64, src rand.Source) (*tensor.Dense, error) {
	dims := append([]int{batch}, shape...)
	n := tensor.Shape(dims).TotalSize()
	u := distuv.Uniform{Min: lo, Max: hi, Src: src}
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = u.Rand()
	}
	return shower.New(vals, dims...)
}

func mipCut(fake *tensor.Dense, cut float64) (*tensor.Dense, error) {
	vals, err := shower.Values(fake)
	if err != nil {
		return nil, fmt.Errorf("mip cut: %w", err)
	}
	out := make([]float64, len(vals))
	for i, v := range vals {
		if !(v < cut) {
			out[i] = v
		}
	}
	return shower.New(out, fake.Shape().Clone()...)
}

func assemble(images, energies []*tensor.Dense, geom shower.Geometry) (Output, error) {
	all, err := shower.Concat(images)
	if err != nil {
		return Output{}, fmt.Errorf("assemble images: %w", err)
	}
	n := all.Shape()[0]
	reshaped, err := shower.Reshape(all, n, geom.Layers, geom.X, geom.Y)
	if err != nil {
		return Output{}, fmt.Errorf("assemble images: %w", err)
	}
	e, err := shower.Concat(energies)
	if err != nil {
		return Output{}, fmt.Errorf("assemble energies: %w", err)
	}
	return Output{Images: reshaped, Energies: e}, nil
}

func report(p Progress, done int) {
	if p != nil {
		p.Update(done)
	}
}
// #endregion helpers
