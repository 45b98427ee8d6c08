package api

import (
	"github.com/samcharles93/cif/internal/cif"
	"github.com/samcharles93/cif/internal/predictor"
	"github.com/samcharles93/cif/internal/tensor"
)

// batchFromRequest turns the JSON arrays of a predict request into a padded
// batch and its mask. Shape limits are checked before anything is allocated.
func batchFromRequest(req *PredictRequest, limits Limits) (tensor.Batch, tensor.Mat, error) {
	if len(req.Hidden) == 0 {
		return tensor.Batch{}, tensor.Mat{}, newInvalidRequest("hidden is required")
	}
	if req.Lengths != nil && req.Mask != nil {
		return tensor.Batch{}, tensor.Mat{}, newInvalidRequest("lengths and mask are mutually exclusive")
	}

	maxT, dim := 0, -1
	for b, seq := range req.Hidden {
		maxT = max(maxT, len(seq))
		for t, frame := range seq {
			if dim < 0 {
				dim = len(frame)
			}
			if len(frame) != dim {
				return tensor.Batch{}, tensor.Mat{}, newInvalidRequest("hidden[%d][%d] has width %d, want %d", b, t, len(frame), dim)
			}
		}
	}
	dim = max(dim, 0)
	if err := limits.checkBatch(len(req.Hidden), maxT); err != nil {
		return tensor.Batch{}, tensor.Mat{}, err
	}

	ragged := false
	for _, seq := range req.Hidden {
		if len(seq) != maxT {
			ragged = true
			break
		}
	}
	if ragged && (req.Lengths != nil || req.Mask != nil) {
		return tensor.Batch{}, tensor.Mat{}, newInvalidRequest("hidden sequences must share one length when lengths or mask is given")
	}

	hidden := tensor.NewBatch(len(req.Hidden), maxT, dim)
	for b, seq := range req.Hidden {
		for t, frame := range seq {
			copy(hidden.Frame(b, t), frame)
		}
	}

	switch {
	case req.Mask != nil:
		mask, err := tensor.NewMatFromRows(req.Mask)
		if err != nil {
			return tensor.Batch{}, tensor.Mat{}, newInvalidRequest("mask: %v", err)
		}
		if len(req.Mask) != hidden.B || (hidden.B > 0 && mask.C != maxT) {
			return tensor.Batch{}, tensor.Mat{}, newInvalidRequest("mask must be %dx%d", hidden.B, maxT)
		}
		return hidden, mask, nil
	case req.Lengths != nil:
		if len(req.Lengths) != hidden.B {
			return tensor.Batch{}, tensor.Mat{}, newInvalidRequest("lengths has %d entries for %d sequences", len(req.Lengths), hidden.B)
		}
		mask, err := cif.SequenceMask(req.Lengths, maxT)
		return hidden, mask, err
	default:
		lengths := make([]int, len(req.Hidden))
		for b, seq := range req.Hidden {
			lengths[b] = len(seq)
		}
		mask, err := cif.SequenceMask(lengths, maxT)
		return hidden, mask, err
	}
}

func predictionFromOutput(id string, createdAt int64, tail bool, out *predictor.Output) PredictionResponse {
	fired := out.Fired
	if fired == nil {
		fired = [][]int{}
	}
	return PredictionResponse{
		ID:         id,
		Object:     "cif.prediction",
		CreatedAt:  createdAt,
		Tail:       tail,
		Embeddings: out.Embeddings.Nested(),
		Lengths:    out.Lengths,
		TokenNum:   out.TokenNum,
		TokenCount: out.TokenCount,
		Alphas:     out.Alphas.Rows(),
		FireCurve:  out.FireCurve.Rows(),
		Fired:      fired,
	}
}
