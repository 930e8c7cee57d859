package dataset

import (
	"errors"

	"gorgonia.org/tensor"
)

// ErrNoShowers is returned when a requested range or energy selection holds
// no showers.
var ErrNoShowers = errors.New("no showers")

const (
	// PhotonThreshold zeroes photon cells below this energy.
	PhotonThreshold = 0.1
	// CoreThreshold zeroes cropped pion core cells below this energy.
	CoreThreshold = 0.25
)

// #region contracts
// Source serves contiguous ranges of stored showers.
type Source interface {
	// DataRange returns images (count, layers, X, Y) starting at start.
	DataRange(start, count int) (*tensor.Dense, error)
	// EnergyRange returns the matching incident energies (count, 1).
	EnergyRange(start, count int) (*tensor.Dense, error)
}

// Transform rewrites a batch of images at load time.
type Transform func(images *tensor.Dense) (*tensor.Dense, error)
// #endregion contracts
