// Package model provides an in-process differentiable generator/critic pair
// built on gorgonia expression graphs.
package model

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/FLC-QU-hep/synthetic-data-generator/internal/latent"
	"github.com/FLC-QU-hep/synthetic-data-generator/internal/shower"
	"gonum.org/v1/gonum/stat/distuv"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// #region linear
// Linear is a single-layer conditional generator and critic:
//
//	G(z, e) = z·Wg + e·Ge          (batch, cells)
//	D(x, e) = x·Wd + e·C           (batch, 1)
type Linear struct {
	LatentDim int
	Geometry  shower.Geometry

	Wg []float64 // (latentDim, cells)
	Ge []float64 // (1, cells)
	Wd []float64 // (cells, 1)
	C  float64
}

// NewLinear draws all weights uniformly from [-scale, scale].
func NewLinear(latentDim int, geom shower.Geometry, scale float64, src rand.Source) *Linear {
	u := distuv.Uniform{Min: -scale, Max: scale, Src: src}
	draw := func(n int) []float64 {
		w := make([]float64, n)
		for i := range w {
			w[i] = u.Rand()
		}
		return w
	}
	cells := geom.Cells()
	return &Linear{
		LatentDim: latentDim,
		Geometry:  geom,
		Wg:        draw(latentDim * cells),
		Ge:        draw(cells),
		Wd:        draw(cells),
		C:         u.Rand(),
	}
}
// #endregion linear

// #region generate
// Generate runs the generator forward; images are (batch, layers, X, Y).
func (m *Linear) Generate(ctx context.Context, z, energy *tensor.Dense) (*tensor.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g := gorgonia.NewGraph()
	batch, zN, eN, err := m.inputs(g, z, energy)
	if err != nil {
		return nil, fmt.Errorf("linear generate: %w", err)
	}
	x, err := m.generator(g, zN, eN)
	if err != nil {
		return nil, fmt.Errorf("linear generate: %w", err)
	}

	vm := gorgonia.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return nil, fmt.Errorf("linear generate: run: %w", err)
	}

	vals, err := nodeValues(x)
	if err != nil {
		return nil, fmt.Errorf("linear generate: %w", err)
	}
	return shower.New(vals, m.Geometry.Shape(batch)...)
}
// #endregion generate

// #region score-gradient
// ScoreGradient returns d(sum D(G(z), e))/dz in the shape of req.Latent.
func (m *Linear) ScoreGradient(ctx context.Context, req latent.GradientRequest) (*tensor.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g := gorgonia.NewGraph()
	batch, zN, eN, err := m.inputs(g, req.Latent, req.Energy)
	if err != nil {
		return nil, fmt.Errorf("linear score gradient: %w", err)
	}
	if got := req.ImageShape.TotalSize(); got != batch*m.Geometry.Cells() {
		return nil, &shower.ShapeError{Op: "linear critic image", Size: batch * m.Geometry.Cells(), Want: req.ImageShape}
	}
	if got := req.CriticEnergyShape.TotalSize(); got != batch {
		return nil, &shower.ShapeError{Op: "linear critic energy", Size: batch, Want: req.CriticEnergyShape}
	}

	x, err := m.generator(g, zN, eN)
	if err != nil {
		return nil, fmt.Errorf("linear score gradient: %w", err)
	}
	score, err := m.critic(g, x, eN)
	if err != nil {
		return nil, fmt.Errorf("linear score gradient: %w", err)
	}
	cost, err := gorgonia.Sum(score)
	if err != nil {
		return nil, fmt.Errorf("linear score gradient: sum: %w", err)
	}
	grads, err := gorgonia.Grad(cost, zN)
	if err != nil {
		return nil, fmt.Errorf("linear score gradient: grad: %w", err)
	}

	vm := gorgonia.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return nil, fmt.Errorf("linear score gradient: run: %w", err)
	}

	vals, err := nodeValues(grads[0])
	if err != nil {
		return nil, fmt.Errorf("linear score gradient: %w", err)
	}
	return shower.New(vals, req.Latent.Shape().Clone()...)
}
// #endregion score-gradient

// #region graph
func (m *Linear) inputs(g *gorgonia.ExprGraph, z, energy *tensor.Dense) (int, *gorgonia.Node, *gorgonia.Node, error) {
	if len(z.Shape()) == 0 {
		return 0, nil, nil, fmt.Errorf("latent has no batch axis")
	}
	batch := z.Shape()[0]
	zVals, err := shower.Values(z)
	if err != nil {
		return 0, nil, nil, err
	}
	if len(zVals) != batch*m.LatentDim {
		return 0, nil, nil, &shower.ShapeError{Op: "linear latent", Size: len(zVals), Want: tensor.Shape{batch, m.LatentDim}}
	}
	eVals, err := shower.Values(energy)
	if err != nil {
		return 0, nil, nil, err
	}
	if len(eVals) != batch {
		return 0, nil, nil, &shower.ShapeError{Op: "linear energy", Size: len(eVals), Want: tensor.Shape{batch, 1}}
	}

	zN := matrix(g, "z", batch, m.LatentDim, zVals)
	eN := matrix(g, "e", batch, 1, eVals)
	return batch, zN, eN, nil
}

func (m *Linear) generator(g *gorgonia.ExprGraph, z, e *gorgonia.Node) (*gorgonia.Node, error) {
	cells := m.Geometry.Cells()
	wg := matrix(g, "wg", m.LatentDim, cells, m.Wg)
	ge := matrix(g, "ge", 1, cells, m.Ge)

	zw, err := gorgonia.Mul(z, wg)
	if err != nil {
		return nil, fmt.Errorf("generator z·Wg: %w", err)
	}
	eg, err := gorgonia.Mul(e, ge)
	if err != nil {
		return nil, fmt.Errorf("generator e·Ge: %w", err)
	}
	return gorgonia.Add(zw, eg)
}

func (m *Linear) critic(g *gorgonia.ExprGraph, x, e *gorgonia.Node) (*gorgonia.Node, error) {
	wd := matrix(g, "wd", m.Geometry.Cells(), 1, m.Wd)
	c := matrix(g, "c", 1, 1, []float64{m.C})

	xw, err := gorgonia.Mul(x, wd)
	if err != nil {
		return nil, fmt.Errorf("critic x·Wd: %w", err)
	}
	ec, err := gorgonia.Mul(e, c)
	if err != nil {
		return nil, fmt.Errorf("critic e·C: %w", err)
	}
	return gorgonia.Add(xw, ec)
}

// matrix binds a copy of vals to a new (rows, cols) node.
func matrix(g *gorgonia.ExprGraph, name string, rows, cols int, vals []float64) *gorgonia.Node {
	backing := make([]float64, len(vals))
	copy(backing, vals)
	t := tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(backing))
	return gorgonia.NewMatrix(g, tensor.Float64, gorgonia.WithShape(rows, cols), gorgonia.WithName(name), gorgonia.WithValue(t))
}

func nodeValues(n *gorgonia.Node) ([]float64, error) {
	v := n.Value()
	if v == nil {
		return nil, fmt.Errorf("node %s has no value", n.Name())
	}
	switch d := v.Data().(type) {
	case []float64:
		out := make([]float64, len(d))
		copy(out, d)
		return out, nil
	case float64:
		return []float64{d}, nil
	}
	return nil, fmt.Errorf("node %s: unsupported value %T", n.Name(), v.Data())
}
// #endregion graph
