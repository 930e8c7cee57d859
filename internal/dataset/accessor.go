package dataset

import (
	"fmt"

	"github.com/FLC-QU-hep/synthetic-data-generator/internal/shower"
	"gorgonia.org/tensor"
)

// #region accessor
// Accessor applies a load-time transform to the images served by a Source.
type Accessor struct {
	Source    Source
	Transform Transform
}

// DataRange returns transformed images [start, start+count).
func (a Accessor) DataRange(start, count int) (*tensor.Dense, error) {
	images, err := a.Source.DataRange(start, count)
	if err != nil {
		return nil, err
	}
	if a.Transform == nil {
		return images, nil
	}
	out, err := a.Transform(images)
	if err != nil {
		return nil, fmt.Errorf("transform: %w", err)
	}
	return out, nil
}

// EnergyRange passes through to the Source.
func (a Accessor) EnergyRange(start, count int) (*tensor.Dense, error) {
	return a.Source.EnergyRange(start, count)
}
// #endregion accessor

// #region transforms
// ThresholdCut zeroes every cell below thr.
func ThresholdCut(thr float64) Transform {
	return func(images *tensor.Dense) (*tensor.Dense, error) {
		vals, err := shower.Values(images)
		if err != nil {
			return nil, err
		}
		out := make([]float64, len(vals))
		for i, v := range vals {
			if !(v < thr) {
				out[i] = v
			}
		}
		return shower.New(out, images.Shape().Clone()...)
	}
}

// Crop keeps X in [x0, x1) and Y in [y0, y1) of (n, layers, X, Y) images.
func Crop(x0, x1, y0, y1 int) Transform {
	return func(images *tensor.Dense) (*tensor.Dense, error) {
		s := images.Shape()
		if len(s) != 4 || x0 < 0 || y0 < 0 || x1 > s[2] || y1 > s[3] || x0 >= x1 || y0 >= y1 {
			return nil, &shower.ShapeError{Op: "crop", Size: s.TotalSize(), Want: tensor.Shape{-1, -1, x1 - x0, y1 - y0}}
		}
		vals, err := shower.Values(images)
		if err != nil {
			return nil, err
		}
		n, layers, xs, ys := s[0], s[1], s[2], s[3]
		cx, cy := x1-x0, y1-y0
		out := make([]float64, 0, n*layers*cx*cy)
		for i := 0; i < n*layers; i++ {
			plane := vals[i*xs*ys : (i+1)*xs*ys]
			for x := x0; x < x1; x++ {
				out = append(out, plane[x*ys+y0:x*ys+y1]...)
			}
		}
		return shower.New(out, n, layers, cx, cy)
	}
}

// CoreCut crops pion showers to their 13×13 core and applies CoreThreshold.
func CoreCut() Transform {
	crop := Crop(19, 32, 17, 30)
	cut := ThresholdCut(CoreThreshold)
	return func(images *tensor.Dense) (*tensor.Dense, error) {
		core, err := crop(images)
		if err != nil {
			return nil, err
		}
		return cut(core)
	}
}
// #endregion transforms

// #region real-images
// RealImagesCore loads the first n pion showers cropped to their core.
func RealImagesCore(src Source, n int) (*tensor.Dense, *tensor.Dense, error) {
	acc := Accessor{Source: src, Transform: CoreCut()}
	images, err := acc.DataRange(0, n)
	if err != nil {
		return nil, nil, fmt.Errorf("real images core: %w", err)
	}
	energies, err := acc.EnergyRange(0, n)
	if err != nil {
		return nil, nil, fmt.Errorf("real images core: %w", err)
	}
	return images, energies, nil
}

// RealImagesPhotons loads the first n photon showers and keeps those whose
// energy equals energy exactly.
func RealImagesPhotons(src Source, n int, energy float64) (*tensor.Dense, *tensor.Dense, error) {
	acc := Accessor{Source: src, Transform: ThresholdCut(PhotonThreshold)}
	images, err := acc.DataRange(0, n)
	if err != nil {
		return nil, nil, fmt.Errorf("real images photons: %w", err)
	}
	energies, err := acc.EnergyRange(0, n)
	if err != nil {
		return nil, nil, fmt.Errorf("real images photons: %w", err)
	}

	rows := images.Shape()[0]
	rowLen := images.Shape().TotalSize() / rows
	imgVals, err := shower.Values(images)
	if err != nil {
		return nil, nil, fmt.Errorf("real images photons: %w", err)
	}
	eVals, err := shower.Values(energies)
	if err != nil {
		return nil, nil, fmt.Errorf("real images photons: %w", err)
	}

	var keptImages, keptEnergies []float64
	for i, e := range eVals {
		if e == energy {
			keptImages = append(keptImages, imgVals[i*rowLen:(i+1)*rowLen]...)
			keptEnergies = append(keptEnergies, e)
		}
	}
	if len(keptEnergies) == 0 {
		return nil, nil, fmt.Errorf("real images photons at %g GeV: %w", energy, ErrNoShowers)
	}

	shape := images.Shape().Clone()
	shape[0] = len(keptEnergies)
	selected, err := shower.New(keptImages, shape...)
	if err != nil {
		return nil, nil, fmt.Errorf("real images photons: %w", err)
	}
	selectedE, err := shower.New(keptEnergies, len(keptEnergies), 1)
	if err != nil {
		return nil, nil, fmt.Errorf("real images photons: %w", err)
	}
	return selected, selectedE, nil
}
// #endregion real-images
