package shower

import (
	"fmt"
	"strings"

	"gorgonia.org/tensor"
)

// #region kind-methods
// ParseKind maps a particle name to its Kind.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for k, spec := range kindSpecs {
		if spec.name == name {
			return k, nil
		}
	}
	return Unknown, fmt.Errorf("parse kind %q: %w", s, ErrUnknownKind)
}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	_, ok := kindSpecs[k]
	return ok
}

func (k Kind) String() string {
	if spec, ok := kindSpecs[k]; ok {
		return spec.name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Geometry returns the image geometry generated for k.
func (k Kind) Geometry() (Geometry, error) {
	spec, ok := kindSpecs[k]
	if !ok {
		return Geometry{}, fmt.Errorf("geometry for %s: %w", k, ErrUnknownKind)
	}
	return spec.geometry, nil
}

// CriticEnergyShape returns the conditioning shape the critic of k expects,
// given the generator conditioning shape.
func (k Kind) CriticEnergyShape(batch int, native tensor.Shape) (tensor.Shape, error) {
	spec, ok := kindSpecs[k]
	if !ok {
		return nil, fmt.Errorf("critic energy shape for %s: %w", k, ErrUnknownKind)
	}
	if spec.flatCriticEnergy {
		return tensor.Shape{batch, 1}, nil
	}
	return native.Clone(), nil
}
// #endregion kind-methods

// #region tensor-helpers
// Values returns the float64 backing of t.
func Values(t tensor.Tensor) ([]float64, error) {
	if t == nil {
		return nil, fmt.Errorf("values: nil tensor")
	}
	switch d := t.Data().(type) {
	case []float64:
		return d, nil
	case float64:
		return []float64{d}, nil
	}
	return nil, fmt.Errorf("values: unsupported dtype %v", t.Dtype())
}

// New wraps data in a tensor of the given shape.
func New(data []float64, shape ...int) (*tensor.Dense, error) {
	want := tensor.Shape(shape)
	if want.TotalSize() != len(data) {
		return nil, &ShapeError{Op: "new", Size: len(data), Want: want}
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data)), nil
}

// Reshape returns a tensor with t's data laid out in shape. One dimension
// may be -1 and is inferred from the element count.
func Reshape(t tensor.Tensor, shape ...int) (*tensor.Dense, error) {
	vals, err := Values(t)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(shape))
	copy(out, shape)

	infer := -1
	known := 1
	for i, d := range out {
		if d == -1 {
			if infer >= 0 {
				return nil, fmt.Errorf("reshape: more than one inferred dimension in %v", shape)
			}
			infer = i
			continue
		}
		known *= d
	}
	if infer >= 0 {
		if known == 0 || len(vals)%known != 0 {
			return nil, &ShapeError{Op: "reshape", Size: len(vals), Want: tensor.Shape(shape)}
		}
		out[infer] = len(vals) / known
	}
	return New(vals, out...)
}

// Rows views t as a (n, rowLen) matrix and returns n and the flat data.
func Rows(t tensor.Tensor, rowLen int) (int, []float64, error) {
	vals, err := Values(t)
	if err != nil {
		return 0, nil, err
	}
	if rowLen <= 0 || len(vals)%rowLen != 0 {
		return 0, nil, &ShapeError{Op: "rows", Size: len(vals), Want: tensor.Shape{-1, rowLen}}
	}
	return len(vals) / rowLen, vals, nil
}

// Concat stacks tensors along the first axis. All parts must share their
// trailing dimensions.
func Concat(parts []*tensor.Dense) (*tensor.Dense, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("concat: no parts")
	}
	trailing := parts[0].Shape().Clone()[1:]
	rows := 0
	var data []float64
	for i, p := range parts {
		s := p.Shape()
		if len(s) != len(trailing)+1 || !sameDims(s[1:], trailing) {
			return nil, fmt.Errorf("concat part %d: shape %v does not match trailing %v", i, s, trailing)
		}
		vals, err := Values(p)
		if err != nil {
			return nil, fmt.Errorf("concat part %d: %w", i, err)
		}
		rows += s[0]
		data = append(data, vals...)
	}
	return New(data, append([]int{rows}, trailing...)...)
}

func sameDims(a, b tensor.Shape) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
// #endregion tensor-helpers
