package cif

import (
	"math"

	"github.com/samcharles93/cif/internal/tensor"
)

// TailProcess appends one zero frame to every sequence and places
// tailThreshold weight on the first position past each sequence's true
// length. When the residual accumulator plus that weight reaches the firing
// threshold, the trailing partial unit is emitted instead of dropped.
//
// A sequence that fills the padded width (length == T) gets the weight on the
// appended step itself. The frame at the synthetic step (index length) is
// zeroed so it contributes weight but no content; padded frames beyond it are
// copied unchanged, so callers passing unmasked alphas still see their
// contribution. It returns the augmented hidden and alphas, and
// floor(sum(alphas')) per item.
func TailProcess(hidden tensor.Batch, alphas, mask tensor.Mat, tailThreshold float32) (tensor.Batch, tensor.Mat, []int, error) {
	if !(tailThreshold >= 0) || math.IsInf(float64(tailThreshold), 0) {
		return tensor.Batch{}, tensor.Mat{}, nil, InvalidArgument("tail_threshold must be non-negative and finite, got %v", tailThreshold)
	}
	if len(hidden.Data) != hidden.B*hidden.T*hidden.D {
		return tensor.Batch{}, tensor.Mat{}, nil, InvalidArgument("hidden storage does not match shape %dx%dx%d", hidden.B, hidden.T, hidden.D)
	}
	if alphas.R != hidden.B || alphas.C != hidden.T {
		return tensor.Batch{}, tensor.Mat{}, nil, InvalidArgument("alphas shape %dx%d does not match hidden %dx%d", alphas.R, alphas.C, hidden.B, hidden.T)
	}
	if mask.R != hidden.B || mask.C != hidden.T {
		return tensor.Batch{}, tensor.Mat{}, nil, InvalidArgument("mask shape %dx%d does not match hidden %dx%d", mask.R, mask.C, hidden.B, hidden.T)
	}
	lengths, err := MaskLengths(mask)
	if err != nil {
		return tensor.Batch{}, tensor.Mat{}, nil, err
	}

	outHidden := tensor.NewBatch(hidden.B, hidden.T+1, hidden.D)
	outAlphas := tensor.NewMat(alphas.R, alphas.C+1)
	for b := 0; b < alphas.R; b++ {
		src := hidden.Data[b*hidden.T*hidden.D : (b+1)*hidden.T*hidden.D]
		copy(outHidden.Data[b*outHidden.T*outHidden.D:], src)
		if lengths[b] < hidden.T {
			clear(outHidden.Frame(b, lengths[b]))
		}

		row := outAlphas.Row(b)
		copy(row, alphas.Row(b))
		row[lengths[b]] += tailThreshold
	}
	return outHidden, outAlphas, FloorCounts(TokenNum(outAlphas)), nil
}
