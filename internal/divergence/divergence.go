// Package divergence compares real and generated observable distributions
// with the Jensen-Shannon distance between fixed-binning histograms.
package divergence

import (
	"fmt"
	"log"
	"math"

	"github.com/FLC-QU-hep/synthetic-data-generator/internal/shower"
	"go-hep.org/x/hep/hbook"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gorgonia.org/tensor"
)

// spinalRange is the position range of the longitudinal profile histogram.
const spinalRange = 48.0

// #region variants
// JSD histograms both samples with weight 1/N each and returns their
// Jensen-Shannon distance.
func JSD(realVals, fakeVals []float64, b Binning) (Result, error) {
	if err := b.Validate(); err != nil {
		return Result{}, fmt.Errorf("jsd: %w", err)
	}
	frqReal := frequencies(realVals, uniformWeights(len(realVals)), b)
	frqFake := frequencies(fakeVals, uniformWeights(len(fakeVals)), b)
	return Compare(frqReal, frqFake), nil
}

// JSDRadial histograms radii weighted by their cell energy, each normalized
// by the number of entries.
func JSDRadial(realR, fakeR, realE, fakeE []float64, b Binning) (Result, error) {
	if err := b.Validate(); err != nil {
		return Result{}, fmt.Errorf("jsd radial: %w", err)
	}
	if len(realR) != len(realE) || len(fakeR) != len(fakeE) {
		return Result{}, fmt.Errorf("jsd radial: radius/energy length mismatch (%d/%d, %d/%d)",
			len(realR), len(realE), len(fakeR), len(fakeE))
	}
	frqReal := frequencies(realR, scaled(realE, len(realR)), b)
	frqFake := frequencies(fakeR, scaled(fakeE, len(fakeE)), b)
	return Compare(frqReal, frqFake), nil
}

// JSDSpinal compares mean longitudinal profiles. Inputs are (n, layers)
// matrices with the same layer count; layer i is histogrammed at position
// i+0.5 over [0, 48] with the column mean as weight.
func JSDSpinal(realProfile, fakeProfile tensor.Tensor, bins int) (Result, error) {
	b := Binning{Bins: bins, Min: 0, Max: spinalRange}
	if err := b.Validate(); err != nil {
		return Result{}, fmt.Errorf("jsd spinal: %w", err)
	}
	hitsReal, wReal, err := profileWeights(realProfile)
	if err != nil {
		return Result{}, fmt.Errorf("jsd spinal real: %w", err)
	}
	hitsFake, wFake, err := profileWeights(fakeProfile)
	if err != nil {
		return Result{}, fmt.Errorf("jsd spinal fake: %w", err)
	}
	if len(hitsFake) != len(hitsReal) {
		return Result{}, &shower.ShapeError{
			Op:   "jsd spinal",
			Size: fakeProfile.Shape().TotalSize(),
			Want: tensor.Shape{fakeProfile.Shape()[0], len(hitsReal)},
		}
	}
	return Compare(frequencies(hitsReal, wReal, b), frequencies(hitsFake, wFake, b)), nil
}
// #endregion variants

// #region compare
// Compare returns the Jensen-Shannon distance between two frequency vectors.
// A length mismatch is reported as a warning with a NaN divergence.
func Compare(frqReal, frqFake []float64) Result {
	res := Result{Real: frqReal, Fake: frqFake}
	if len(frqReal) != len(frqFake) {
		log.Printf("jsd: %v (%d vs %d)", ErrBinMismatch, len(frqReal), len(frqFake))
		res.Warning = ErrBinMismatch
		res.Divergence = math.NaN()
		return res
	}
	p := normalized(frqReal)
	q := normalized(frqFake)
	res.Divergence = math.Sqrt(math.Max(stat.JensenShannon(p, q), 0))
	return res
}

func normalized(frq []float64) []float64 {
	out := make([]float64, len(frq))
	copy(out, frq)
	floats.Scale(1/floats.Sum(out), out)
	return out
}
// #endregion compare

// #region histogram
// frequencies fills a histogram with numpy range semantics: the last bin is
// closed, values outside [Min, Max] are dropped. hbook computes the last
// edge as Min+Bins*width, which can fall a rounding step short of Max, so
// everything from the last bin's lower edge up to Max is filled at its center.
func frequencies(xs, weights []float64, b Binning) []float64 {
	h := hbook.NewH1D(b.Bins, b.Min, b.Max)
	last := &h.Binning.Bins[len(h.Binning.Bins)-1]
	for i, x := range xs {
		if math.IsNaN(x) || x < b.Min || x > b.Max {
			continue
		}
		if x >= last.XMin() {
			x = last.XMid()
		}
		h.Fill(x, weights[i])
	}
	frq := make([]float64, h.Len())
	for i := range frq {
		_, frq[i] = h.XY(i)
	}
	return frq
}

func uniformWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	return w
}

func scaled(w []float64, n int) []float64 {
	out := make([]float64, len(w))
	copy(out, w)
	floats.Scale(1/float64(n), out)
	return out
}

func profileWeights(x tensor.Tensor) ([]float64, []float64, error) {
	s := x.Shape()
	if len(s) != 2 {
		return nil, nil, fmt.Errorf("expected 2D (n, layers) profile, got shape %v", s)
	}
	n, layers := s[0], s[1]
	vals, err := shower.Values(x)
	if err != nil {
		return nil, nil, err
	}
	hits := make([]float64, layers)
	means := make([]float64, layers)
	col := make([]float64, n)
	for j := 0; j < layers; j++ {
		hits[j] = float64(j) + 0.5
		for i := 0; i < n; i++ {
			col[i] = vals[i*layers+j]
		}
		means[j] = stat.Mean(col, nil)
	}
	return hits, means, nil
}
// #endregion histogram
