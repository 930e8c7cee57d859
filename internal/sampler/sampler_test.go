package sampler

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/FLC-QU-hep/synthetic-data-generator/internal/latent"
	"github.com/FLC-QU-hep/synthetic-data-generator/internal/shower"
	"gorgonia.org/tensor"
)

// #region mock
// mockGenerator emits images of a fixed per-sample size whose cells all
// carry the value fill.
type mockGenerator struct {
	cells    int
	fill     func(i int) float64
	err      error
	calls    int
	gradient float64
	latents  []*tensor.Dense
}

func (m *mockGenerator) Generate(_ context.Context, z, energy *tensor.Dense) (*tensor.Dense, error) {
	m.calls++
	m.latents = append(m.latents, z)
	if m.err != nil {
		return nil, m.err
	}
	batch := z.Shape()[0]
	out := make([]float64, batch*m.cells)
	for i := range out {
		out[i] = 1
		if m.fill != nil {
			out[i] = m.fill(i)
		}
	}
	return shower.New(out, batch, 1, m.cells)
}

func (m *mockGenerator) ScoreGradient(_ context.Context, req latent.GradientRequest) (*tensor.Dense, error) {
	n := req.Latent.Shape().TotalSize()
	g := make([]float64, n)
	for i := range g {
		g[i] = m.gradient
	}
	return shower.New(g, req.Latent.Shape().Clone()...)
}

func pionCells() int {
	g, _ := shower.Pion.Geometry()
	return g.Cells()
}

func plainConfig(count, batch int) PlainConfig {
	cfg := DefaultPlainConfig()
	cfg.Count = count
	cfg.BatchSize = batch
	cfg.NoiseShape = []int{4, 1, 1, 1}
	cfg.Src = rand.NewPCG(1, 2)
	return cfg
}

// #endregion mock

// #region generate-tests
func TestGenerateFullChunks(t *testing.T) {
	gen := &mockGenerator{cells: pionCells()}
	var updates []int

	out, err := Generate(context.Background(), gen, plainConfig(10, 5), ProgressFunc(func(done int) {
		updates = append(updates, done)
	}))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out.Len() != 10 {
		t.Fatalf("expected 10 samples, got %d", out.Len())
	}
	s := out.Images.Shape()
	if s[1] != 48 || s[2] != 13 || s[3] != 13 {
		t.Errorf("expected (10, 48, 13, 13), got %v", s)
	}
	if out.Energies.Shape()[0] != 10 {
		t.Errorf("expected 10 energies, got %v", out.Energies.Shape())
	}
	if len(updates) != 2 || updates[0] != 5 || updates[1] != 10 {
		t.Errorf("expected progress [5 10], got %v", updates)
	}
}

func TestGenerateDropsPartialChunk(t *testing.T) {
	gen := &mockGenerator{cells: pionCells()}
	out, err := Generate(context.Background(), gen, plainConfig(12, 5), nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out.Len() != 10 {
		t.Errorf("expected 10 samples for count=12 batch=5, got %d", out.Len())
	}
	if gen.calls != 2 {
		t.Errorf("expected 2 generator calls, got %d", gen.calls)
	}
}

func TestGenerateSamplesInRange(t *testing.T) {
	gen := &mockGenerator{cells: pionCells()}
	cfg := plainConfig(20, 10)
	cfg.MinE, cfg.MaxE = 20, 30

	out, err := Generate(context.Background(), gen, cfg, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	energies, _ := shower.Values(out.Energies)
	for i, e := range energies {
		if e < 20 || e > 30 {
			t.Errorf("energy %d out of range: %f", i, e)
		}
	}
	for _, z := range gen.latents {
		vals, _ := shower.Values(z)
		for _, v := range vals {
			if v < -1 || v > 1 {
				t.Fatalf("noise out of [-1, 1]: %f", v)
			}
		}
	}
}

func TestGenerateFreshNoisePerChunk(t *testing.T) {
	gen := &mockGenerator{cells: pionCells()}
	if _, err := Generate(context.Background(), gen, plainConfig(10, 5), nil); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	a, _ := shower.Values(gen.latents[0])
	b, _ := shower.Values(gen.latents[1])
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
		}
	}
	if same {
		t.Error("expected fresh noise per chunk")
	}
}

func TestGenerateWrongGeometry(t *testing.T) {
	gen := &mockGenerator{cells: 10}
	_, err := Generate(context.Background(), gen, plainConfig(10, 5), nil)
	var se *shower.ShapeError
	if !errors.As(err, &se) {
		t.Fatalf("expected ShapeError, got %v", err)
	}
}

func TestGenerateGeneratorError(t *testing.T) {
	gen := &mockGenerator{cells: pionCells(), err: errors.New("device lost")}
	_, err := Generate(context.Background(), gen, plainConfig(10, 5), nil)
	if !errors.Is(err, gen.err) {
		t.Fatalf("expected wrapped generator error, got %v", err)
	}
}

func TestGenerateInvalidConfig(t *testing.T) {
	gen := &mockGenerator{cells: pionCells()}
	if _, err := Generate(context.Background(), gen, plainConfig(10, 0), nil); err == nil {
		t.Error("expected error for zero batch size")
	}
	if _, err := Generate(context.Background(), gen, plainConfig(3, 5), nil); err == nil {
		t.Error("expected error when count is below one batch")
	}
	cfg := plainConfig(10, 5)
	cfg.MinE, cfg.MaxE = 50, 10
	if _, err := Generate(context.Background(), gen, cfg, nil); err == nil {
		t.Error("expected error for inverted energy range")
	}
}

func TestGenerateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := &mockGenerator{cells: pionCells()}
	_, err := Generate(ctx, gen, plainConfig(10, 5), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if gen.calls != 0 {
		t.Errorf("expected no generator calls, got %d", gen.calls)
	}
}

// #endregion generate-tests

// #region generate-refined-tests
func refinedConfig(kind shower.Kind, count, batch int) RefinedConfig {
	cfg := DefaultRefinedConfig(kind)
	cfg.Count = count
	cfg.BatchSize = batch
	cfg.LatentDim = 3
	cfg.Src = rand.NewPCG(3, 4)
	return cfg
}

func TestGenerateRefinedPhotonGeometry(t *testing.T) {
	g, _ := shower.Photon.Geometry()
	gen := &mockGenerator{cells: g.Cells()}

	out, err := GenerateRefined(context.Background(), gen, refinedConfig(shower.Photon, 4, 2), nil)
	if err != nil {
		t.Fatalf("GenerateRefined: %v", err)
	}
	s := out.Images.Shape()
	if s[0] != 4 || s[1] != 30 || s[2] != 30 || s[3] != 30 {
		t.Errorf("expected (4, 30, 30, 30), got %v", s)
	}
	if es := out.Energies.Shape(); len(es) != 5 || es[0] != 4 {
		t.Errorf("expected energies (4, 1, 1, 1, 1), got %v", es)
	}
}

func TestGenerateRefinedTruncates(t *testing.T) {
	gen := &mockGenerator{cells: pionCells()}
	out, err := GenerateRefined(context.Background(), gen, refinedConfig(shower.Pion, 12, 5), nil)
	if err != nil {
		t.Fatalf("GenerateRefined: %v", err)
	}
	if out.Len() != 10 {
		t.Errorf("expected 10 samples, got %d", out.Len())
	}
}

func TestGenerateRefinedMIPCut(t *testing.T) {
	gen := &mockGenerator{cells: pionCells(), fill: func(i int) float64 {
		if i%2 == 0 {
			return 0.1
		}
		return 0.5
	}}
	cfg := refinedConfig(shower.Pion, 2, 2)
	cfg.MIPCut = 0.25

	out, err := GenerateRefined(context.Background(), gen, cfg, nil)
	if err != nil {
		t.Fatalf("GenerateRefined: %v", err)
	}
	vals, _ := shower.Values(out.Images)
	for i, v := range vals {
		if v != 0 && v < 0.25 {
			t.Fatalf("cell %d below cut survived: %f", i, v)
		}
		if i%2 == 1 && v != 0.5 {
			t.Fatalf("cell %d above cut changed: %f", i, v)
		}
	}
}

func TestGenerateRefinedUsesRefinedLatent(t *testing.T) {
	gen := &mockGenerator{cells: pionCells(), gradient: 1}
	if _, err := GenerateRefined(context.Background(), gen, refinedConfig(shower.Pion, 2, 2), nil); err != nil {
		t.Fatalf("GenerateRefined: %v", err)
	}
	z, _ := shower.Values(gen.latents[0])
	for i, v := range z {
		if v != 1 {
			t.Fatalf("latent %d: expected refined value clamped to 1, got %f", i, v)
		}
	}
}

func TestGenerateRefinedUnknownKind(t *testing.T) {
	gen := &mockGenerator{cells: pionCells()}
	_, err := GenerateRefined(context.Background(), gen, refinedConfig(shower.Unknown, 10, 5), nil)
	if !errors.Is(err, shower.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	if gen.calls != 0 {
		t.Errorf("expected no generator calls, got %d", gen.calls)
	}
}

// #endregion generate-refined-tests
