package codec

import (
	"errors"
	"fmt"

	"github.com/FLC-QU-hep/synthetic-data-generator/internal/shower"
	"google.golang.org/protobuf/types/known/structpb"
	"gorgonia.org/tensor"
)

// ErrMalformedTensor is returned when a response field is not a
// {shape, data} tensor struct.
var ErrMalformedTensor = errors.New("malformed tensor")

// #region encode
// encodeTensor lays t out as {shape: [...], data: [...]} in row-major order.
func encodeTensor(t *tensor.Dense) (*structpb.Value, error) {
	if t == nil {
		return nil, fmt.Errorf("encode: nil tensor")
	}
	vals, err := shower.Values(t)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	data := make([]*structpb.Value, len(vals))
	for i, v := range vals {
		data[i] = structpb.NewNumberValue(v)
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"shape": shapeValue(t.Shape()),
		"data":  structpb.NewListValue(&structpb.ListValue{Values: data}),
	}}), nil
}

func shapeValue(s tensor.Shape) *structpb.Value {
	dims := make([]*structpb.Value, len(s))
	for i, d := range s {
		dims[i] = structpb.NewNumberValue(float64(d))
	}
	return structpb.NewListValue(&structpb.ListValue{Values: dims})
}
// #endregion encode

// #region decode
func decodeTensor(v *structpb.Value) (*tensor.Dense, error) {
	sv := v.GetStructValue()
	if sv == nil {
		return nil, ErrMalformedTensor
	}
	shapeList := sv.GetFields()["shape"].GetListValue()
	dataList := sv.GetFields()["data"].GetListValue()
	if shapeList == nil || dataList == nil {
		return nil, fmt.Errorf("%w: missing shape or data", ErrMalformedTensor)
	}

	shape := make([]int, len(shapeList.GetValues()))
	for i, d := range shapeList.GetValues() {
		n := d.GetNumberValue()
		if n < 0 || n != float64(int(n)) {
			return nil, fmt.Errorf("%w: dimension %v", ErrMalformedTensor, n)
		}
		shape[i] = int(n)
	}
	data := make([]float64, len(dataList.GetValues()))
	for i, x := range dataList.GetValues() {
		data[i] = x.GetNumberValue()
	}
	return shower.New(data, shape...)
}
// #endregion decode
