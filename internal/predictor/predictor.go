// Package predictor wires the weight scorer, tail processor and
// integrate-and-fire engine into the two predictor entry points.
package predictor

import (
	"context"
	"math"
	"time"

	"github.com/samcharles93/cif/internal/cif"
	"github.com/samcharles93/cif/internal/logger"
	"github.com/samcharles93/cif/internal/scorer"
	"github.com/samcharles93/cif/internal/tensor"
)

// Config holds the constructor-time constants of a predictor.
type Config struct {
	Threshold      float32 `json:"threshold"`
	SmoothFactor   float32 `json:"smooth_factor"`
	NoiseThreshold float32 `json:"noise_threshold"`
	TailThreshold  float32 `json:"tail_threshold"`
	// Workers bounds how many goroutines scan batch items; <= 1 scans
	// sequentially.
	Workers int `json:"workers"`
}

// DefaultConfig returns the constants of the reference CIF predictor.
func DefaultConfig() Config {
	return Config{
		Threshold:      1.0,
		SmoothFactor:   1.0,
		NoiseThreshold: 0.0,
		TailThreshold:  0.45,
		Workers:        1,
	}
}

func (c Config) validate() error {
	if !(c.Threshold > 0) || isInf(c.Threshold) {
		return cif.InvalidArgument("threshold must be positive and finite, got %v", c.Threshold)
	}
	if !finite(c.SmoothFactor) || !finite(c.NoiseThreshold) {
		return cif.InvalidArgument("smooth_factor and noise_threshold must be finite")
	}
	if !(c.TailThreshold >= 0) || isInf(c.TailThreshold) {
		return cif.InvalidArgument("tail_threshold must be non-negative and finite, got %v", c.TailThreshold)
	}
	if c.Workers < 0 {
		return cif.InvalidArgument("workers must not be negative, got %d", c.Workers)
	}
	return nil
}

// Output is the result of one predictor call.
type Output struct {
	// Embeddings is [B x N x D]; row b holds Lengths[b] units then zeros.
	Embeddings tensor.Batch
	Lengths    []int
	// TokenNum is the per-item sum of alphas.
	TokenNum []float32
	// TokenCount is round(TokenNum) for Predict and floor(TokenNum) for
	// PredictWithTail.
	TokenCount []int
	Alphas     tensor.Mat
	FireCurve  tensor.Mat
	Fired      [][]int
}

// Predictor is safe for concurrent use; it holds no per-call state.
type Predictor struct {
	cfg    Config
	scorer scorer.Scorer
	log    logger.Logger
}

// New builds a predictor around a raw score head. A nil log discards output.
func New(cfg Config, raw scorer.RawScorer, log logger.Logger) (*Predictor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, cif.InvalidArgument("raw score head is required")
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Predictor{
		cfg: cfg,
		scorer: scorer.Scorer{
			Raw:            raw,
			SmoothFactor:   cfg.SmoothFactor,
			NoiseThreshold: cfg.NoiseThreshold,
		},
		log: log.With("component", "predictor"),
	}, nil
}

func (p *Predictor) Config() Config {
	return p.cfg
}

// Predict scores hidden [B x T x D] under mask [B x T] and fires.
func (p *Predictor) Predict(ctx context.Context, hidden tensor.Batch, mask tensor.Mat) (*Output, error) {
	start := time.Now()
	alphas, err := p.score(hidden, mask)
	if err != nil {
		return nil, err
	}
	tokenNum := cif.TokenNum(alphas)

	res, err := cif.FireParallel(ctx, hidden, alphas, p.cfg.Threshold, p.cfg.Workers)
	if err != nil {
		return nil, err
	}
	out := newOutput(res, alphas, tokenNum, cif.RoundCounts(tokenNum))
	p.logCall("predict", hidden, out, start)
	return out, nil
}

// PredictWithTail is Predict with a synthetic trailing step per item so a
// residual partial unit can still fire.
func (p *Predictor) PredictWithTail(ctx context.Context, hidden tensor.Batch, mask tensor.Mat) (*Output, error) {
	start := time.Now()
	alphas, err := p.score(hidden, mask)
	if err != nil {
		return nil, err
	}
	tailHidden, tailAlphas, floorNum, err := cif.TailProcess(hidden, alphas, mask, p.cfg.TailThreshold)
	if err != nil {
		return nil, err
	}

	res, err := cif.FireParallel(ctx, tailHidden, tailAlphas, p.cfg.Threshold, p.cfg.Workers)
	if err != nil {
		return nil, err
	}
	out := newOutput(res, tailAlphas, cif.TokenNum(tailAlphas), floorNum)
	p.logCall("predict_with_tail", hidden, out, start)
	return out, nil
}

func (p *Predictor) score(hidden tensor.Batch, mask tensor.Mat) (tensor.Mat, error) {
	if mask.R != hidden.B || mask.C != hidden.T {
		return tensor.Mat{}, cif.InvalidArgument("mask shape %dx%d does not match hidden %dx%d", mask.R, mask.C, hidden.B, hidden.T)
	}
	return p.scorer.Score(hidden, mask)
}

func newOutput(res *cif.Result, alphas tensor.Mat, tokenNum []float32, tokenCount []int) *Output {
	return &Output{
		Embeddings: res.Embeddings,
		Lengths:    res.Lengths,
		TokenNum:   tokenNum,
		TokenCount: tokenCount,
		Alphas:     alphas,
		FireCurve:  res.FireCurve,
		Fired:      res.Fired,
	}
}

func (p *Predictor) logCall(op string, hidden tensor.Batch, out *Output, start time.Time) {
	units := 0
	for _, n := range out.Lengths {
		units += n
	}
	p.log.Debug("cif pass complete",
		"op", op,
		"batch", hidden.B,
		"frames", hidden.T,
		"dim", hidden.D,
		"units", units,
		"width", out.Embeddings.T,
		"elapsed", time.Since(start),
	)
}

func finite(v float32) bool {
	return !math.IsNaN(float64(v)) && !isInf(v)
}

func isInf(v float32) bool {
	return math.IsInf(float64(v), 0)
}
