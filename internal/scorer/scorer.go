// Package scorer turns per-frame hidden vectors into CIF firing weights.
package scorer

import (
	"fmt"

	"github.com/samcharles93/cif/internal/cif"
	"github.com/samcharles93/cif/internal/tensor"
)

// Scorer computes alpha = relu(sigmoid(raw)*SmoothFactor - NoiseThreshold)
// and zeroes it at masked positions.
type Scorer struct {
	Raw            RawScorer
	SmoothFactor   float32
	NoiseThreshold float32
}

// Score returns alphas [B x T] for hidden [B x T x D] under mask [B x T].
func (s *Scorer) Score(hidden tensor.Batch, mask tensor.Mat) (tensor.Mat, error) {
	if s.Raw == nil {
		return tensor.Mat{}, fmt.Errorf("scorer has no raw score head")
	}
	if len(hidden.Data) != hidden.B*hidden.T*hidden.D {
		return tensor.Mat{}, cif.InvalidArgument("hidden storage does not match shape %dx%dx%d", hidden.B, hidden.T, hidden.D)
	}
	if mask.R != hidden.B || mask.C != hidden.T {
		return tensor.Mat{}, cif.InvalidArgument("mask shape %dx%d does not match hidden %dx%d", mask.R, mask.C, hidden.B, hidden.T)
	}
	if _, err := cif.MaskLengths(mask); err != nil {
		return tensor.Mat{}, err
	}

	alphas := tensor.NewMat(hidden.B, hidden.T)
	for b := 0; b < hidden.B; b++ {
		row := alphas.Row(b)
		if err := s.Raw.RawScores(hidden.Seq(b), row); err != nil {
			return tensor.Mat{}, fmt.Errorf("score item %d: %w", b, err)
		}
		m := mask.Row(b)
		for t, raw := range row {
			row[t] = tensor.Relu(tensor.Sigmoid(raw)*s.SmoothFactor-s.NoiseThreshold) * m[t]
		}
	}
	return alphas, nil
}
