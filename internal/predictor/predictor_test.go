package predictor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/samcharles93/cif/internal/cif"
	"github.com/samcharles93/cif/internal/logger"
	"github.com/samcharles93/cif/internal/scorer"
	"github.com/samcharles93/cif/internal/tensor"
)

var approx = cmpopts.EquateApprox(0, 1e-5)

// logitHead inverts the sigmoid so a frame's first value becomes its alpha.
var logitHead = scorer.FrameFunc(func(frame []float32) float32 {
	a := float64(frame[0])
	return float32(math.Log(a / (1 - a)))
})

// framesWithAlphas builds hidden frames [alpha, t+1] so the logit head
// reproduces the given alphas and the second component identifies the frame.
func framesWithAlphas(t *testing.T, rows [][]float32) tensor.Batch {
	t.Helper()
	seqs := make([][][]float32, len(rows))
	for b, row := range rows {
		seq := make([][]float32, len(row))
		for i, a := range row {
			seq[i] = []float32{a, float32(i + 1)}
		}
		seqs[b] = seq
	}
	x, err := tensor.NewBatchFromNested(seqs)
	if err != nil {
		t.Fatalf("NewBatchFromNested: %v", err)
	}
	return x
}

func newPredictor(t *testing.T, cfg Config) *Predictor {
	t.Helper()
	p, err := New(cfg, logitHead, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestPredictSingleFiring(t *testing.T) {
	t.Parallel()
	p := newPredictor(t, DefaultConfig())
	hidden := framesWithAlphas(t, [][]float32{{0.3, 0.3, 0.5, 0.2}})
	mask, _ := cif.SequenceMask([]int{4}, 4)

	out, err := p.Predict(context.Background(), hidden, mask)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if diff := cmp.Diff([]float32{0.3, 0.3, 0.5, 0.2}, out.Alphas.Row(0), approx); diff != "" {
		t.Fatalf("alphas mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float32{1.3}, out.TokenNum, approx); diff != "" {
		t.Fatalf("token num mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1}, out.TokenCount); diff != "" {
		t.Fatalf("token count mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1}, out.Lengths); diff != "" {
		t.Fatalf("lengths mismatch (-want +got):\n%s", diff)
	}
	// Second component: 0.3*1 + 0.3*2 + 0.4*3
	if got := out.Embeddings.Frame(0, 0)[1]; math.Abs(float64(got)-2.1) > 1e-4 {
		t.Fatalf("embedding[1] = %v, want 2.1", got)
	}
	if diff := cmp.Diff([]float32{0.3, 0.6, 1.1, 0.3}, out.FireCurve.Row(0), approx); diff != "" {
		t.Fatalf("fire curve mismatch (-want +got):\n%s", diff)
	}
}

func TestPredictMasksPadding(t *testing.T) {
	t.Parallel()
	p := newPredictor(t, DefaultConfig())
	hidden := framesWithAlphas(t, [][]float32{
		{0.6, 0.6, 0.9, 0.95},
		{0.6, 0.6, 0.9, 0.95},
	})
	mask, _ := cif.SequenceMask([]int{2, 4}, 4)

	out, err := p.Predict(context.Background(), hidden, mask)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if diff := cmp.Diff([]float32{0.6, 0.6, 0, 0}, out.Alphas.Row(0), approx); diff != "" {
		t.Fatalf("masked alphas mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 3}, out.Lengths); diff != "" {
		t.Fatalf("lengths mismatch (-want +got):\n%s", diff)
	}
	if out.Embeddings.T != 3 {
		t.Fatalf("padded width = %d, want 3", out.Embeddings.T)
	}
	for n := 1; n < 3; n++ {
		if diff := cmp.Diff([]float32{0, 0}, out.Embeddings.Frame(0, n)); diff != "" {
			t.Fatalf("padding unit %d not zero (-want +got):\n%s", n, diff)
		}
	}
}

func TestPredictWithTailCapturesTrailingUnit(t *testing.T) {
	t.Parallel()
	p := newPredictor(t, DefaultConfig())
	hidden := framesWithAlphas(t, [][]float32{{0.1, 0.2, 0.1, 0.1, 0.2, 0.5, 0.5, 0.5}})
	mask, _ := cif.SequenceMask([]int{5}, 8)

	plain, err := p.Predict(context.Background(), hidden, mask)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if plain.Lengths[0] != 0 {
		t.Fatalf("expected no natural firing, got %d", plain.Lengths[0])
	}

	out, err := p.PredictWithTail(context.Background(), hidden, mask)
	if err != nil {
		t.Fatalf("PredictWithTail: %v", err)
	}
	if out.Alphas.C != 9 || out.FireCurve.C != 9 {
		t.Fatalf("expected T+1 wide alphas and curve, got %d and %d", out.Alphas.C, out.FireCurve.C)
	}
	if diff := cmp.Diff([][]int{{5}}, out.Fired); diff != "" {
		t.Fatalf("fired mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1}, out.TokenCount); diff != "" {
		t.Fatalf("token count mismatch (-want +got):\n%s", diff)
	}
	want := []float32{
		0.1*0.1 + 0.2*0.2 + 0.1*0.1 + 0.1*0.1 + 0.2*0.2,
		0.1*1 + 0.2*2 + 0.1*3 + 0.1*4 + 0.2*5,
	}
	if diff := cmp.Diff(want, out.Embeddings.Frame(0, 0), approx); diff != "" {
		t.Fatalf("tail unit mismatch (-want +got):\n%s", diff)
	}
}

func TestPredictParallelWorkersAgree(t *testing.T) {
	t.Parallel()
	rows := [][]float32{
		{0.9, 0.9, 0.9, 0.1},
		{0.2, 0.7, 0.4, 0.8},
		{0.5, 0.5, 0.5, 0.5},
	}
	hidden := framesWithAlphas(t, rows)
	mask, _ := cif.SequenceMask([]int{4, 3, 4}, 4)

	seq, err := newPredictor(t, DefaultConfig()).Predict(context.Background(), hidden, mask)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	cfg := DefaultConfig()
	cfg.Workers = 3
	par, err := newPredictor(t, cfg).Predict(context.Background(), hidden, mask)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if diff := cmp.Diff(seq, par); diff != "" {
		t.Fatalf("parallel output differs (-seq +par):\n%s", diff)
	}
}

func TestPredictRejectsMismatchedMask(t *testing.T) {
	t.Parallel()
	p := newPredictor(t, DefaultConfig())
	hidden := framesWithAlphas(t, [][]float32{{0.5, 0.5}})
	mask, _ := cif.SequenceMask([]int{2}, 3)

	if _, err := p.Predict(context.Background(), hidden, mask); !errors.Is(err, cif.ErrInvalidArgument) {
		t.Fatalf("Predict: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := p.PredictWithTail(context.Background(), hidden, mask); !errors.Is(err, cif.ErrInvalidArgument) {
		t.Fatalf("PredictWithTail: expected ErrInvalidArgument, got %v", err)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero threshold", func(c *Config) { c.Threshold = 0 }},
		{"negative threshold", func(c *Config) { c.Threshold = -1 }},
		{"inf smooth", func(c *Config) { c.SmoothFactor = float32(math.Inf(1)) }},
		{"negative tail", func(c *Config) { c.TailThreshold = -0.1 }},
		{"negative workers", func(c *Config) { c.Workers = -2 }},
	}
	for _, tc := range tests {
		cfg := DefaultConfig()
		tc.mutate(&cfg)
		if _, err := New(cfg, logitHead, nil); !errors.Is(err, cif.ErrInvalidArgument) {
			t.Errorf("%s: expected ErrInvalidArgument, got %v", tc.name, err)
		}
	}
	if _, err := New(DefaultConfig(), nil, nil); !errors.Is(err, cif.ErrInvalidArgument) {
		t.Errorf("nil head: expected ErrInvalidArgument, got %v", err)
	}
}

func TestPredictLogsSummary(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	p, err := New(DefaultConfig(), logitHead, logger.JSON(&buf, slog.LevelDebug))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	hidden := framesWithAlphas(t, [][]float32{{0.6, 0.6}})
	mask, _ := cif.SequenceMask([]int{2}, 2)
	if _, err := p.Predict(context.Background(), hidden, mask); err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if !strings.Contains(buf.String(), `"units":1`) || !strings.Contains(buf.String(), `"component":"predictor"`) {
		t.Fatalf("expected summary log, got: %s", buf.String())
	}
}
