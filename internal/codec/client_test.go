package codec

import (
	"context"
	"errors"
	"testing"

	"github.com/FLC-QU-hep/synthetic-data-generator/internal/latent"
	"github.com/FLC-QU-hep/synthetic-data-generator/internal/shower"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"gorgonia.org/tensor"
)

// #region mock
type mockModelService struct {
	ModelServiceClient

	lastReq *structpb.Struct

	generateResp *structpb.Struct
	generateErr  error

	gradResp *structpb.Struct
	gradErr  error
}

func (m *mockModelService) Generate(_ context.Context, in *structpb.Struct, _ ...grpc.CallOption) (*structpb.Struct, error) {
	m.lastReq = in
	return m.generateResp, m.generateErr
}

func (m *mockModelService) ScoreGradient(_ context.Context, in *structpb.Struct, _ ...grpc.CallOption) (*structpb.Struct, error) {
	m.lastReq = in
	return m.gradResp, m.gradErr
}

// recordingConn captures the method passed to Invoke and fills the reply.
type recordingConn struct {
	grpc.ClientConnInterface

	method string
	reply  *structpb.Struct
}

func (r *recordingConn) Invoke(_ context.Context, method string, _, reply any, _ ...grpc.CallOption) error {
	r.method = method
	proto.Merge(reply.(*structpb.Struct), r.reply)
	return nil
}

func dense(t *testing.T, vals []float64, shape ...int) *tensor.Dense {
	t.Helper()
	d, err := shower.New(vals, shape...)
	if err != nil {
		t.Fatalf("dense: %v", err)
	}
	return d
}

func responseWith(t *testing.T, field string, d *tensor.Dense) *structpb.Struct {
	t.Helper()
	v, err := encodeTensor(d)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{field: v}}
}

// #endregion mock

// #region constructor-tests
func TestNewModelClientInvalidAddr(t *testing.T) {
	client, err := NewModelClient("localhost:0")
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}
	defer client.Close()
}

func TestNewModelClientWithService(t *testing.T) {
	c := NewModelClientWithService(&mockModelService{})
	if c == nil {
		t.Fatal("expected non-nil client")
	}
	if c.client == nil {
		t.Fatal("expected non-nil internal client")
	}
	if err := c.Close(); err != nil {
		t.Errorf("close without connection: %v", err)
	}
}

func TestModelServiceClientMethods(t *testing.T) {
	conn := &recordingConn{reply: responseWith(t, "images", dense(t, []float64{1}, 1))}
	svc := NewModelServiceClient(conn)

	if _, err := svc.Generate(context.Background(), &structpb.Struct{}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if conn.method != "/fidelity.ModelService/Generate" {
		t.Errorf("unexpected method %q", conn.method)
	}
	if _, err := svc.ScoreGradient(context.Background(), &structpb.Struct{}); err != nil {
		t.Fatalf("ScoreGradient: %v", err)
	}
	if conn.method != "/fidelity.ModelService/ScoreGradient" {
		t.Errorf("unexpected method %q", conn.method)
	}
}

// #endregion constructor-tests

// #region generate-tests
func TestGenerate_Success(t *testing.T) {
	images := dense(t, []float64{0, 1, 2, 3, 4, 5, 6, 7}, 2, 1, 2, 2)
	mock := &mockModelService{generateResp: responseWith(t, "images", images)}
	c := &ModelClient{client: mock}

	z := dense(t, []float64{0.1, -0.2}, 2, 1, 1, 1, 1)
	e := dense(t, []float64{10, 20}, 2, 1, 1, 1, 1)
	out, err := c.Generate(context.Background(), z, e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s := out.Shape(); len(s) != 4 || s[0] != 2 || s[3] != 2 {
		t.Errorf("expected (2, 1, 2, 2), got %v", s)
	}
	vals, _ := shower.Values(out)
	if vals[7] != 7 {
		t.Errorf("expected last cell 7, got %f", vals[7])
	}

	sent, err := decodeTensor(mock.lastReq.GetFields()["energy"])
	if err != nil {
		t.Fatalf("decode sent energy: %v", err)
	}
	if ev, _ := shower.Values(sent); ev[1] != 20 {
		t.Errorf("expected energy 20 in request, got %v", ev)
	}
}

func TestGenerate_Error(t *testing.T) {
	mock := &mockModelService{generateErr: errors.New("rpc failed")}
	c := &ModelClient{client: mock}

	z := dense(t, []float64{0}, 1, 1)
	_, err := c.Generate(context.Background(), z, z)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, mock.generateErr) {
		t.Errorf("expected wrapped rpc error, got: %v", err)
	}
}

func TestGenerate_MalformedResponse(t *testing.T) {
	mock := &mockModelService{generateResp: &structpb.Struct{}}
	c := &ModelClient{client: mock}

	z := dense(t, []float64{0}, 1, 1)
	_, err := c.Generate(context.Background(), z, z)
	if !errors.Is(err, ErrMalformedTensor) {
		t.Fatalf("expected ErrMalformedTensor, got %v", err)
	}
}

// #endregion generate-tests

// #region score-gradient-tests
func TestScoreGradient_Success(t *testing.T) {
	grad := dense(t, []float64{0.5, 0.5, 0.5, 0.5}, 2, 2, 1, 1, 1)
	mock := &mockModelService{gradResp: responseWith(t, "grad", grad)}
	c := &ModelClient{client: mock}

	out, err := c.ScoreGradient(context.Background(), latent.GradientRequest{
		Latent:            dense(t, make([]float64, 4), 2, 2, 1, 1, 1),
		Energy:            dense(t, []float64{1, 2}, 2, 1, 1, 1, 1),
		ImageShape:        tensor.Shape{2, 1, 30, 30, 30},
		CriticEnergyShape: tensor.Shape{2, 1},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Shape().TotalSize() != 4 {
		t.Errorf("expected 4 gradient values, got %v", out.Shape())
	}

	dims := mock.lastReq.GetFields()["critic_energy_shape"].GetListValue().GetValues()
	if len(dims) != 2 || dims[0].GetNumberValue() != 2 || dims[1].GetNumberValue() != 1 {
		t.Errorf("expected critic energy shape [2 1], got %v", dims)
	}
	img := mock.lastReq.GetFields()["image_shape"].GetListValue().GetValues()
	if len(img) != 5 || img[2].GetNumberValue() != 30 {
		t.Errorf("expected image shape (2, 1, 30, 30, 30), got %v", img)
	}
}

func TestScoreGradient_Error(t *testing.T) {
	mock := &mockModelService{gradErr: errors.New("backward failed")}
	c := &ModelClient{client: mock}

	_, err := c.ScoreGradient(context.Background(), latent.GradientRequest{
		Latent: dense(t, []float64{0}, 1, 1),
		Energy: dense(t, []float64{1}, 1, 1),
	})
	if !errors.Is(err, mock.gradErr) {
		t.Errorf("expected wrapped rpc error, got: %v", err)
	}
}

// #endregion score-gradient-tests

// #region tensor-tests
func TestEncodeDecodeTensor(t *testing.T) {
	in := dense(t, []float64{1, 2, 3, 4, 5, 6}, 2, 3)
	v, err := encodeTensor(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := decodeTensor(v)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s := out.Shape(); len(s) != 2 || s[0] != 2 || s[1] != 3 {
		t.Errorf("expected (2, 3), got %v", s)
	}
}

func TestDecodeTensorRejectsBadShape(t *testing.T) {
	v := structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"shape": structpb.NewListValue(&structpb.ListValue{Values: []*structpb.Value{structpb.NewNumberValue(1.5)}}),
		"data":  structpb.NewListValue(&structpb.ListValue{}),
	}})
	if _, err := decodeTensor(v); !errors.Is(err, ErrMalformedTensor) {
		t.Errorf("expected ErrMalformedTensor for fractional dim, got %v", err)
	}

	v = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"shape": shapeValue(tensor.Shape{2, 2}),
		"data":  structpb.NewListValue(&structpb.ListValue{Values: []*structpb.Value{structpb.NewNumberValue(1)}}),
	}})
	var se *shower.ShapeError
	if _, err := decodeTensor(v); !errors.As(err, &se) {
		t.Errorf("expected ShapeError for short data, got %v", err)
	}
}

func TestEncodeNilTensor(t *testing.T) {
	if _, err := encodeTensor(nil); err == nil {
		t.Error("expected error for nil tensor")
	}
}

// #endregion tensor-tests
