package codec

import (
	"context"
	"fmt"

	"github.com/FLC-QU-hep/synthetic-data-generator/internal/latent"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
	"gorgonia.org/tensor"
)

// #region service
const (
	generateMethod      = "/fidelity.ModelService/Generate"
	scoreGradientMethod = "/fidelity.ModelService/ScoreGradient"
)

// ModelServiceClient is the client API for fidelity.ModelService. Requests
// and responses are generic protobuf structs.
type ModelServiceClient interface {
	Generate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ScoreGradient(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type modelServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewModelServiceClient binds the ModelService methods to cc.
func NewModelServiceClient(cc grpc.ClientConnInterface) ModelServiceClient {
	return &modelServiceClient{cc: cc}
}

func (c *modelServiceClient) Generate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, generateMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *modelServiceClient) ScoreGradient(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, scoreGradientMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
// #endregion service

// #region client-struct
// ModelClient wraps the gRPC connection to the Python model service. It
// satisfies both the sampler's generator and the latent optimizer's
// differentiable pair.
type ModelClient struct {
	conn   *grpc.ClientConn
	client ModelServiceClient
}
// #endregion client-struct

// #region constructor
// NewModelClient connects to the model service gRPC server.
func NewModelClient(addr string) (*ModelClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &ModelClient{
		conn:   conn,
		client: NewModelServiceClient(conn),
	}, nil
}

// NewModelClientWithService creates a ModelClient with an injected service implementation.
// Used for testing without a real gRPC connection.
func NewModelClientWithService(svc ModelServiceClient) *ModelClient {
	return &ModelClient{client: svc}
}
// #endregion constructor

// #region close
// Close shuts down the gRPC connection.
func (c *ModelClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
// #endregion close

// #region generate
// Generate runs the remote generator on a latent batch and its energies.
// Transient service errors are retried.
func (c *ModelClient) Generate(ctx context.Context, z, energy *tensor.Dense) (*tensor.Dense, error) {
	zv, err := encodeTensor(z)
	if err != nil {
		return nil, fmt.Errorf("generate request: %w", err)
	}
	ev, err := encodeTensor(energy)
	if err != nil {
		return nil, fmt.Errorf("generate request: %w", err)
	}

	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"z":      zv,
		"energy": ev,
	}}
	resp, err := withRetry(ctx, func() (*structpb.Struct, error) {
		return c.client.Generate(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("generate rpc: %w", err)
	}

	images, err := decodeTensor(resp.GetFields()["images"])
	if err != nil {
		return nil, fmt.Errorf("generate response images: %w", err)
	}
	return images, nil
}
// #endregion generate

// #region score-gradient
// ScoreGradient asks the service for d(sum critic(G(z)))/dz with the
// critic inputs laid out as req describes.
func (c *ModelClient) ScoreGradient(ctx context.Context, req latent.GradientRequest) (*tensor.Dense, error) {
	zv, err := encodeTensor(req.Latent)
	if err != nil {
		return nil, fmt.Errorf("score gradient request: %w", err)
	}
	ev, err := encodeTensor(req.Energy)
	if err != nil {
		return nil, fmt.Errorf("score gradient request: %w", err)
	}

	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		"z":                   zv,
		"energy":              ev,
		"image_shape":         shapeValue(req.ImageShape),
		"critic_energy_shape": shapeValue(req.CriticEnergyShape),
	}}
	resp, err := withRetry(ctx, func() (*structpb.Struct, error) {
		return c.client.ScoreGradient(ctx, in)
	})
	if err != nil {
		return nil, fmt.Errorf("score gradient rpc: %w", err)
	}

	grad, err := decodeTensor(resp.GetFields()["grad"])
	if err != nil {
		return nil, fmt.Errorf("score gradient response: %w", err)
	}
	return grad, nil
}
// #endregion score-gradient
