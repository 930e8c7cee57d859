// Package observables computes physical summaries of calorimeter shower images.
package observables

import (
	"fmt"
	"math"

	"github.com/FLC-QU-hep/synthetic-data-generator/internal/shower"
	"gonum.org/v1/gonum/floats"
	"gorgonia.org/tensor"
)

// #region per-sample
// Occupancy returns, per sample, the number of cells with a positive deposit.
func Occupancy(data tensor.Tensor, xbins, ybins, layers int) ([]float64, error) {
	cells := layers * xbins * ybins
	n, vals, err := shower.Rows(data, cells)
	if err != nil {
		return nil, fmt.Errorf("occupancy: %w", err)
	}
	occ := make([]float64, n)
	for i := 0; i < n; i++ {
		for _, v := range vals[i*cells : (i+1)*cells] {
			if v > 0 {
				occ[i]++
			}
		}
	}
	return occ, nil
}

// TotalEnergy returns the summed deposit of every sample.
func TotalEnergy(data tensor.Tensor, xbins, ybins, layers int) ([]float64, error) {
	cells := layers * xbins * ybins
	n, vals, err := shower.Rows(data, cells)
	if err != nil {
		return nil, fmt.Errorf("total energy: %w", err)
	}
	etot := make([]float64, n)
	for i := range etot {
		etot[i] = floats.Sum(vals[i*cells : (i+1)*cells])
	}
	return etot, nil
}

// HitEnergies flattens the batch and drops empty cells.
func HitEnergies(data tensor.Tensor, xbins, ybins, layers int) ([]float64, error) {
	_, vals, err := shower.Rows(data, layers*xbins*ybins)
	if err != nil {
		return nil, fmt.Errorf("hit energies: %w", err)
	}
	hits := make([]float64, 0, len(vals))
	for _, v := range vals {
		if v != 0 {
			hits = append(hits, v)
		}
	}
	return hits, nil
}
// #endregion per-sample

// #region profiles
// CenterOfGravity returns the energy-weighted mean position of every row of
// a 2D (n, l) input. All-zero rows produce NaN.
func CenterOfGravity(x tensor.Tensor) ([]float64, error) {
	s := x.Shape()
	if len(s) != 2 {
		return nil, fmt.Errorf("center of gravity: expected 2D input, got shape %v", s)
	}
	n, l := s[0], s[1]
	vals, err := shower.Values(x)
	if err != nil {
		return nil, fmt.Errorf("center of gravity: %w", err)
	}
	cog := make([]float64, n)
	for i := range cog {
		row := vals[i*l : (i+1)*l]
		var moment float64
		for j, v := range row {
			moment += float64(j) * v
		}
		cog[i] = moment / floats.Sum(row)
	}
	return cog, nil
}

// SpinalProfile returns the (n, layers) per-layer energy sums.
func SpinalProfile(data tensor.Tensor, xbins, ybins, layers int) (*tensor.Dense, error) {
	plane := xbins * ybins
	n, vals, err := shower.Rows(data, layers*plane)
	if err != nil {
		return nil, fmt.Errorf("spinal profile: %w", err)
	}
	profile := make([]float64, n*layers)
	for i := range profile {
		profile[i] = floats.Sum(vals[i*plane : (i+1)*plane])
	}
	return shower.New(profile, n, layers)
}

// Radial holds one entry per non-empty cell of the aggregated image.
type Radial struct {
	R   []float64
	Phi []float64
	E   []float64
}

// RadialDistribution sums the batch over samples and layers and returns the
// radius, azimuth and energy of every non-empty cell, measured from the grid
// center. The azimuth is atan(dx/dy); cells on the center row give ±π/2 or NaN.
func RadialDistribution(data tensor.Tensor, xbins, ybins, layers int) (Radial, error) {
	plane := xbins * ybins
	_, vals, err := shower.Rows(data, layers*plane)
	if err != nil {
		return Radial{}, fmt.Errorf("radial distribution: %w", err)
	}

	agg := make([]float64, plane)
	for off := 0; off < len(vals); off += plane {
		floats.Add(agg, vals[off:off+plane])
	}

	centX := float64(xbins-1) / 2.0
	centY := float64(ybins-1) / 2.0

	var out Radial
	for nx := 0; nx < xbins; nx++ {
		for ny := 0; ny < ybins; ny++ {
			e := agg[nx*ybins+ny]
			if e == 0 {
				continue
			}
			dx := float64(nx) - centX
			dy := float64(ny) - centY
			out.R = append(out.R, math.Sqrt(dx*dx+dy*dy))
			out.Phi = append(out.Phi, math.Atan(dx/dy))
			out.E = append(out.E, e)
		}
	}
	return out, nil
}
// #endregion profiles
