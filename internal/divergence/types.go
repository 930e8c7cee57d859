package divergence

import (
	"errors"
	"fmt"
)

// #region errors
// ErrBinMismatch flags real and fake histograms with different bin counts.
var ErrBinMismatch = errors.New("histogram bins are not matching")
// #endregion errors

// #region binning
// Binning is a fixed-range, fixed-count histogram layout.
type Binning struct {
	Bins int     `json:"bins"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Validate checks that the binning describes a non-empty range.
func (b Binning) Validate() error {
	if b.Bins <= 0 {
		return fmt.Errorf("binning: %d bins", b.Bins)
	}
	if !(b.Max > b.Min) {
		return fmt.Errorf("binning: empty range [%g, %g]", b.Min, b.Max)
	}
	return nil
}
// #endregion binning

// #region result
// Result is the divergence between two normalized histograms.
type Result struct {
	Divergence float64
	Real       []float64 // bin frequencies of the real sample
	Fake       []float64 // bin frequencies of the fake sample
	Warning    error     // ErrBinMismatch when the histograms disagree
}

// Strict returns the warning as an error, for callers that treat a bin
// mismatch as fatal.
func (r Result) Strict() (float64, error) {
	if r.Warning != nil {
		return r.Divergence, r.Warning
	}
	return r.Divergence, nil
}
// #endregion result
