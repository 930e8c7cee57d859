package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"time"

	"github.com/FLC-QU-hep/synthetic-data-generator/internal/codec"
	"github.com/FLC-QU-hep/synthetic-data-generator/internal/dataset"
	"github.com/FLC-QU-hep/synthetic-data-generator/internal/eval"
	"github.com/FLC-QU-hep/synthetic-data-generator/internal/latent"
	"github.com/FLC-QU-hep/synthetic-data-generator/internal/logging"
	"github.com/FLC-QU-hep/synthetic-data-generator/internal/model"
	"github.com/FLC-QU-hep/synthetic-data-generator/internal/runs"
	"github.com/FLC-QU-hep/synthetic-data-generator/internal/sampler"
	"github.com/FLC-QU-hep/synthetic-data-generator/internal/shower"
	"gorgonia.org/tensor"
)

// #region options
type options struct {
	runsDB     string
	showerDB   string
	codecAddr  string
	kind       shower.Kind
	mode       string
	count      int
	batch      int
	latentDim  int
	minE       float64
	maxE       float64
	mipCut     float64
	realCount  int
	photonE    float64
	evalConfig string
	plotDir    string
	local      bool
	seed       uint64
	timeout    time.Duration
}

// runParams is stored with each run for reproduction.
type runParams struct {
	LatentDim    int             `json:"latent_dim"`
	RealShowers  int             `json:"real_showers"`
	PhotonEnergy float64         `json:"photon_energy,omitempty"`
	Local        bool            `json:"local"`
	Seed         uint64          `json:"seed"`
	Refine       *latent.Options `json:"refine,omitempty"`
	Eval         eval.EvalConfig `json:"eval"`
}
// #endregion options

// #region main
func main() {
	kind := flag.String("kind", "pion", "particle kind: pion | photon")
	mode := flag.String("mode", runs.ModeRefined, "sampling mode: plain | refined")
	count := flag.Int("count", 1000, "number of showers to generate")
	batch := flag.Int("batch", 100, "generator batch size")
	latentDim := flag.Int("latent-dim", 100, "latent vector length")
	minE := flag.Float64("min-e", 10, "minimum incident energy")
	maxE := flag.Float64("max-e", 100, "maximum incident energy")
	mipCut := flag.Float64("mip-cut", 0.25, "zero generated cells below this energy (refined mode)")
	realN := flag.Int("real", 1000, "number of real showers to compare against")
	photonE := flag.Float64("photon-energy", 50, "incident energy selecting real photon showers")
	evalCfg := flag.String("eval-config", "", "JSON file overriding evaluation binnings")
	plotDir := flag.String("plot-dir", "", "write a total energy comparison plot here")
	local := flag.Bool("local", false, "use the in-process linear model instead of the model service")
	seed := flag.Uint64("seed", 42, "random seed")
	timeout := flag.Duration("timeout", 30*time.Second, "per-call model timeout")
	flag.Parse()

	k, err := shower.ParseKind(*kind)
	if err != nil {
		log.Fatalf("invalid --kind: %v", err)
	}

	opts := options{
		runsDB:     envOr("FIDELITY_DB", "fidelity.db"),
		showerDB:   envOr("SHOWER_DB", "showers.db"),
		codecAddr:  envOr("CODEC_ADDR", "localhost:50051"),
		kind:       k,
		mode:       *mode,
		count:      *count,
		batch:      *batch,
		latentDim:  *latentDim,
		minE:       *minE,
		maxE:       *maxE,
		mipCut:     *mipCut,
		realCount:  *realN,
		photonE:    *photonE,
		evalConfig: *evalCfg,
		plotDir:    *plotDir,
		local:      *local,
		seed:       *seed,
		timeout:    *timeout,
	}

	if err := run(context.Background(), opts); err != nil {
		log.Fatalf("fidelity: %v", err)
	}
}
// #endregion main

// #region run
func run(ctx context.Context, opts options) error {
	cfg := eval.DefaultEvalConfig(opts.kind)
	if opts.evalConfig != "" {
		loaded, err := eval.LoadEvalConfig(opts.evalConfig, opts.kind)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if opts.plotDir != "" {
		cfg.PlotDir = opts.plotDir
	}

	store, err := runs.NewStore(opts.runsDB)
	if err != nil {
		return fmt.Errorf("failed to open run store: %w", err)
	}
	defer store.Close()

	showers, err := dataset.NewStore(opts.showerDB)
	if err != nil {
		return fmt.Errorf("failed to open shower store: %w", err)
	}
	defer showers.Close()

	pair, closePair, err := openPair(opts)
	if err != nil {
		return err
	}
	defer closePair()

	progress := sampler.ProgressFunc(func(done int) {
		log.Printf("generated %d/%d", done, opts.count)
	})

	params := runParams{
		LatentDim:   opts.latentDim,
		RealShowers: opts.realCount,
		Local:       opts.local,
		Seed:        opts.seed,
		Eval:        cfg,
	}
	src := rand.NewPCG(opts.seed, opts.seed^0x9e3779b97f4a7c15)

	var out sampler.Output
	switch opts.mode {
	case runs.ModePlain:
		if opts.kind != shower.Pion {
			return fmt.Errorf("plain sampling produces pion showers only, got %s", opts.kind)
		}
		pc := sampler.DefaultPlainConfig()
		pc.Count, pc.BatchSize = opts.count, opts.batch
		pc.MinE, pc.MaxE = opts.minE, opts.maxE
		pc.NoiseShape = []int{opts.latentDim, 1, 1, 1}
		pc.Src = src
		out, err = sampler.Generate(ctx, pair, pc, progress)
	case runs.ModeRefined:
		rc := sampler.DefaultRefinedConfig(opts.kind)
		rc.Count, rc.BatchSize, rc.LatentDim = opts.count, opts.batch, opts.latentDim
		rc.MinE, rc.MaxE, rc.MIPCut = opts.minE, opts.maxE, opts.mipCut
		rc.Src = src
		params.Refine = &rc.Refine
		out, err = sampler.GenerateRefined(ctx, pair, rc, progress)
	default:
		return fmt.Errorf("unknown mode %q", opts.mode)
	}
	if err != nil {
		return fmt.Errorf("sampling: %w", err)
	}
	log.Printf("generated %d %s showers (%s)", out.Len(), opts.kind, opts.mode)

	realImages, err := loadReal(showers, opts)
	if err != nil {
		return err
	}

	result, err := eval.NewEvalHarness(cfg).Run(realImages, out.Images, opts.kind)
	if err != nil {
		return err
	}

	if opts.kind == shower.Photon {
		params.PhotonEnergy = opts.photonE
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	rec, err := store.CreateRun(runs.Run{
		Kind:       opts.kind,
		Mode:       opts.mode,
		Count:      out.Len(),
		BatchSize:  opts.batch,
		MinE:       opts.minE,
		MaxE:       opts.maxE,
		MIPCut:     opts.mipCut,
		ParamsJSON: string(paramsJSON),
		Passed:     result.Passed,
		Reason:     result.Reason,
	})
	if err != nil {
		return err
	}
	if err := logging.LogEvalResult(store.DB(), rec.RunID, result); err != nil {
		log.Printf("logging error: %v", err)
	}

	fmt.Printf("run %s: %s\n", rec.RunID, result.Reason)
	for _, m := range result.Metrics {
		status := "pass"
		if !m.Pass {
			status = "FAIL"
		}
		fmt.Printf("  %-18s %8.4f  %s\n", m.Name, m.Value, status)
		if m.Warning != nil {
			log.Printf("%s: %v", m.Name, m.Warning)
		}
	}
	return nil
}
// #endregion run

// #region model
// timedPair bounds every model call by a per-call timeout.
type timedPair struct {
	sampler.RefinablePair
	timeout time.Duration
}

func (p timedPair) Generate(ctx context.Context, z, energy *tensor.Dense) (*tensor.Dense, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.RefinablePair.Generate(ctx, z, energy)
}

func (p timedPair) ScoreGradient(ctx context.Context, req latent.GradientRequest) (*tensor.Dense, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.RefinablePair.ScoreGradient(ctx, req)
}

func openPair(opts options) (sampler.RefinablePair, func(), error) {
	if opts.local {
		geom, err := opts.kind.Geometry()
		if err != nil {
			return nil, nil, err
		}
		src := rand.NewPCG(opts.seed+1, opts.seed+2)
		return model.NewLinear(opts.latentDim, geom, 0.01, src), func() {}, nil
	}

	client, err := codec.NewModelClient(opts.codecAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to model service at %s: %w", opts.codecAddr, err)
	}
	return timedPair{RefinablePair: client, timeout: opts.timeout}, func() { client.Close() }, nil
}
// #endregion model

// #region helpers
func loadReal(src dataset.Source, opts options) (*tensor.Dense, error) {
	switch opts.kind {
	case shower.Pion:
		images, _, err := dataset.RealImagesCore(src, opts.realCount)
		return images, err
	case shower.Photon:
		images, _, err := dataset.RealImagesPhotons(src, opts.realCount, opts.photonE)
		return images, err
	}
	return nil, errors.New("no real sample accessor for " + opts.kind.String())
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
// #endregion helpers
