package shower

import (
	"errors"
	"fmt"

	"gorgonia.org/tensor"
)

// #region errors
// ErrUnknownKind is returned for a particle kind outside the supported geometries.
var ErrUnknownKind = errors.New("unknown particle kind")

// ShapeError reports an element count that cannot be laid out in the requested shape.
type ShapeError struct {
	Op   string
	Size int
	Want tensor.Shape
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: cannot reshape %d elements into %v", e.Op, e.Size, e.Want)
}
// #endregion errors

// #region geometry
// Geometry is the layers × X × Y cell grid of one detector image.
type Geometry struct {
	Layers int `json:"layers"`
	X      int `json:"x"`
	Y      int `json:"y"`
}

// Cells returns the number of cells in one image.
func (g Geometry) Cells() int {
	return g.Layers * g.X * g.Y
}

// Shape returns the batch shape (n, layers, X, Y).
func (g Geometry) Shape(n int) tensor.Shape {
	return tensor.Shape{n, g.Layers, g.X, g.Y}
}
// #endregion geometry

// #region kind
// Kind names a supported particle class. Each kind carries its detector
// geometry and the conditioning shape its critic expects.
type Kind int

const (
	Unknown Kind = iota
	Pion
	Photon
)

type kindSpec struct {
	name     string
	geometry Geometry
	// flatCriticEnergy: critic takes energy as (batch, 1) instead of the
	// generator's conditioning shape.
	flatCriticEnergy bool
}

var kindSpecs = map[Kind]kindSpec{
	Pion:   {name: "pion", geometry: Geometry{Layers: 48, X: 13, Y: 13}},
	Photon: {name: "photon", geometry: Geometry{Layers: 30, X: 30, Y: 30}, flatCriticEnergy: true},
}
// #endregion kind
