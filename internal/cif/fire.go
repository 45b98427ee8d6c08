package cif

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/cif/internal/tensor"
)

// Result holds the output of one integrate-and-fire pass over a batch.
type Result struct {
	// Embeddings is [B x N x D] with N the largest per-item unit count.
	// Rows past Lengths[b] are zero.
	Embeddings tensor.Batch
	// Lengths is the number of firings per item.
	Lengths []int
	// FireCurve is [B x T], the accumulator after adding each frame's alpha
	// and before the threshold wraparound.
	FireCurve tensor.Mat
	// Fired lists, per item, the frame index of every firing in time order.
	Fired [][]int
	// Residual is [B x D], the partial unit still accumulating when the
	// sequence ended. It is never emitted.
	Residual tensor.Mat
}

// fireState is the per-item accumulator carried across time steps.
type fireState struct {
	integrate float32
	frame     []float32
}

// units collects the fired embeddings of one item before compaction.
type units struct {
	frames []float32 // flat [n x D]
	at     []int
}

// Fire runs the integrate-and-fire scan over hidden [B x T x D] with per-frame
// weights alphas [B x T]. A unit fires whenever the accumulated weight reaches
// threshold; the firing frame's weight is split between the completed unit
// and the next one.
func Fire(hidden tensor.Batch, alphas tensor.Mat, threshold float32) (*Result, error) {
	if err := validateFire(hidden, alphas, threshold); err != nil {
		return nil, err
	}
	s := newScan(hidden, alphas, threshold)
	s.run(0, hidden.B)
	return s.compact(), nil
}

// FireParallel is Fire with batch items split across up to workers
// goroutines. Items share no state, so the result is identical to Fire.
func FireParallel(ctx context.Context, hidden tensor.Batch, alphas tensor.Mat, threshold float32, workers int) (*Result, error) {
	if err := validateFire(hidden, alphas, threshold); err != nil {
		return nil, err
	}
	if workers <= 1 || hidden.B <= 1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s := newScan(hidden, alphas, threshold)
		s.run(0, hidden.B)
		return s.compact(), nil
	}

	workers = min(workers, hidden.B)
	chunk := (hidden.B + workers - 1) / workers
	s := newScan(hidden, alphas, threshold)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := 0; lo < hidden.B; lo += chunk {
		hi := min(lo+chunk, hidden.B)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s.run(lo, hi)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return s.compact(), nil
}

func validateFire(hidden tensor.Batch, alphas tensor.Mat, threshold float32) error {
	if !(threshold > 0) || math.IsInf(float64(threshold), 0) {
		return InvalidArgument("threshold must be positive and finite, got %v", threshold)
	}
	if len(hidden.Data) != hidden.B*hidden.T*hidden.D {
		return InvalidArgument("hidden storage does not match shape %dx%dx%d", hidden.B, hidden.T, hidden.D)
	}
	if alphas.R != hidden.B || alphas.C != hidden.T {
		return InvalidArgument("alphas shape %dx%d does not match hidden %dx%d", alphas.R, alphas.C, hidden.B, hidden.T)
	}
	if len(alphas.Data) < alphas.R*alphas.Stride || alphas.Stride < alphas.C {
		return InvalidArgument("alphas storage does not match shape %dx%d", alphas.R, alphas.C)
	}
	for b := 0; b < alphas.R; b++ {
		for t, a := range alphas.Row(b) {
			if math.IsNaN(float64(a)) || math.IsInf(float64(a), 0) {
				return InvalidArgument("alpha at [%d][%d] is not finite", b, t)
			}
		}
	}
	return nil
}

type scan struct {
	hidden    tensor.Batch
	alphas    tensor.Mat
	threshold float32

	curve    tensor.Mat
	residual tensor.Mat
	out      []units
}

func newScan(hidden tensor.Batch, alphas tensor.Mat, threshold float32) *scan {
	return &scan{
		hidden:    hidden,
		alphas:    alphas,
		threshold: threshold,
		curve:     tensor.NewMat(hidden.B, hidden.T),
		residual:  tensor.NewMat(hidden.B, hidden.D),
		out:       make([]units, hidden.B),
	}
}

// run advances items [lo, hi) through every time step together. Each item
// writes only its own rows of curve, residual and out.
func (s *scan) run(lo, hi int) {
	states := make([]fireState, hi-lo)
	for i := range states {
		states[i].frame = s.residual.Row(lo + i)
	}

	for t := 0; t < s.hidden.T; t++ {
		for b := lo; b < hi; b++ {
			st := &states[b-lo]
			alpha := s.alphas.At(b, t)
			h := s.hidden.Frame(b, t)

			completion := 1 - st.integrate
			st.integrate += alpha
			s.curve.Set(b, t, st.integrate)

			fired := st.integrate >= s.threshold
			cur := alpha
			if fired {
				st.integrate -= 1
				cur = completion
			}
			remainder := alpha - cur

			tensor.Axpy(st.frame, cur, h)
			if fired {
				u := &s.out[b]
				u.frames = append(u.frames, st.frame...)
				u.at = append(u.at, t)
				// The firing frame straddles both units.
				tensor.ScaleTo(st.frame, remainder, h)
			}
		}
	}
}

// compact right-pads every item's fired units with zero vectors to the
// batch-wide maximum count.
func (s *scan) compact() *Result {
	n := 0
	for _, u := range s.out {
		n = max(n, len(u.at))
	}
	d := s.hidden.D
	res := &Result{
		Embeddings: tensor.NewBatch(s.hidden.B, n, d),
		Lengths:    make([]int, s.hidden.B),
		FireCurve:  s.curve,
		Fired:      make([][]int, s.hidden.B),
		Residual:   s.residual,
	}
	for b, u := range s.out {
		res.Lengths[b] = len(u.at)
		res.Fired[b] = u.at
		if res.Fired[b] == nil {
			res.Fired[b] = []int{}
		}
		copy(res.Embeddings.Data[b*n*d:], u.frames)
	}
	return res
}

// TokenNum returns the per-item sum of alphas, the expected number of units.
func TokenNum(alphas tensor.Mat) []float32 {
	out := make([]float32, alphas.R)
	for b := range out {
		out[b] = tensor.Sum(alphas.Row(b))
	}
	return out
}

// RoundCounts rounds expected unit counts half-to-even.
func RoundCounts(tokenNum []float32) []int {
	out := make([]int, len(tokenNum))
	for i, v := range tokenNum {
		out[i] = int(math.RoundToEven(float64(v)))
	}
	return out
}

// FloorCounts floors expected unit counts.
func FloorCounts(tokenNum []float32) []int {
	out := make([]int, len(tokenNum))
	for i, v := range tokenNum {
		out[i] = int(math.Floor(float64(v)))
	}
	return out
}
