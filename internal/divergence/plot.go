package divergence

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"go-hep.org/x/hep/hbook"
	"go-hep.org/x/hep/hplot"
	"gonum.org/v1/plot/vg"
)

// #region plot
// JSDPlot computes the same divergence as JSD and also writes both
// histograms to dir/debug_<epoch>.png.
func JSDPlot(realVals, fakeVals []float64, b Binning, epoch int, dir string) (Result, error) {
	res, err := JSD(realVals, fakeVals, b)
	if err != nil {
		return Result{}, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return res, fmt.Errorf("jsd plot: mkdir %s: %w", dir, err)
	}

	p := hplot.New()
	p.Title.Text = fmt.Sprintf("JSD = %.4f", res.Divergence)
	p.Y.Label.Text = "frequency"

	for _, s := range []struct {
		frq   []float64
		color color.Color
		label string
	}{
		{res.Real, color.Black, "real"},
		{res.Fake, color.RGBA{R: 255, A: 255}, "fake"},
	} {
		h := histogramOf(s.frq, b)
		hh := hplot.NewH1D(h)
		hh.LineStyle.Color = s.color
		hh.FillColor = nil
		p.Add(hh)
		p.Legend.Add(s.label, hh)
	}

	path := filepath.Join(dir, "debug_"+strconv.Itoa(epoch)+".png")
	if err := p.Save(6*vg.Inch, 6*0.77/0.67*vg.Inch, path); err != nil {
		return res, fmt.Errorf("jsd plot: save %s: %w", path, err)
	}
	return res, nil
}

// histogramOf rebuilds a histogram from bin frequencies by filling each bin
// center once with its frequency as weight.
func histogramOf(frq []float64, b Binning) *hbook.H1D {
	h := hbook.NewH1D(len(frq), b.Min, b.Max)
	width := (b.Max - b.Min) / float64(len(frq))
	for i, w := range frq {
		if w == 0 || math.IsNaN(w) {
			continue
		}
		h.Fill(b.Min+(float64(i)+0.5)*width, w)
	}
	return h
}
// #endregion plot
