package scorer

import (
	"fmt"

	"github.com/samcharles93/cif/internal/cif"
	"github.com/samcharles93/cif/internal/safetensors"
	"github.com/samcharles93/cif/internal/tensor"
)

// RawScorer maps one sequence of frames [T x D] to T raw (pre-sigmoid)
// scores written into dst.
type RawScorer interface {
	RawScores(frames tensor.Mat, dst []float32) error
}

// FrameFunc adapts a pure per-frame function to RawScorer.
type FrameFunc func(frame []float32) float32

func (f FrameFunc) RawScores(frames tensor.Mat, dst []float32) error {
	if len(dst) < frames.R {
		return fmt.Errorf("score buffer too small: %d < %d", len(dst), frames.R)
	}
	for t := 0; t < frames.R; t++ {
		dst[t] = f(frames.Row(t))
	}
	return nil
}

// Linear is a single-output dense layer, w·h + b.
type Linear struct {
	Weight []float32
	Bias   float32
}

func (l *Linear) Score(frame []float32) float32 {
	return tensor.Dot(l.Weight, frame) + l.Bias
}

func (l *Linear) RawScores(frames tensor.Mat, dst []float32) error {
	if frames.C != len(l.Weight) {
		return cif.InvalidArgument("linear head expects dim %d, got %d", len(l.Weight), frames.C)
	}
	return FrameFunc(l.Score).RawScores(frames, dst)
}

// ConvHead is the CIF weight head: zero-pad the sequence by LOrder frames on
// the left and ROrder on the right, apply a full Conv1d (D -> D, kernel
// LOrder+ROrder+1) with ReLU, then project each frame to one score.
type ConvHead struct {
	LOrder, ROrder int
	// Kernel is [D x D*K]; element (o, i*K+j) is the weight from input
	// channel i at tap j to output channel o.
	Kernel tensor.Mat
	Bias   []float32
	Output Linear
}

// NewConvHead checks the shapes of the head's parameters.
func NewConvHead(kernel tensor.Mat, bias []float32, output Linear, lOrder, rOrder int) (*ConvHead, error) {
	if lOrder < 0 || rOrder < 0 {
		return nil, fmt.Errorf("conv orders must be non-negative, got l=%d r=%d", lOrder, rOrder)
	}
	k := lOrder + rOrder + 1
	d := kernel.R
	if kernel.C != d*k {
		return nil, fmt.Errorf("conv kernel is %dx%d, want %dx%d for kernel size %d", kernel.R, kernel.C, d, d*k, k)
	}
	if len(bias) != d {
		return nil, fmt.Errorf("conv bias has %d values, want %d", len(bias), d)
	}
	if len(output.Weight) != d {
		return nil, fmt.Errorf("output weight has %d values, want %d", len(output.Weight), d)
	}
	return &ConvHead{
		LOrder: lOrder,
		ROrder: rOrder,
		Kernel: kernel,
		Bias:   bias,
		Output: output,
	}, nil
}

// LoadConvHead reads the head from safetensors using the exported parameter
// names (<prefix>cif_conv1d.weight, .bias, <prefix>cif_output.weight, .bias).
func LoadConvHead(st *safetensors.File, prefix string, lOrder, rOrder int) (*ConvHead, error) {
	kernel, k, err := tensor.LoadSafetensorsConvKernel(st, prefix+"cif_conv1d.weight")
	if err != nil {
		return nil, err
	}
	if want := lOrder + rOrder + 1; k != want {
		return nil, fmt.Errorf("%scif_conv1d.weight: kernel size %d, want %d for l_order=%d r_order=%d", prefix, k, want, lOrder, rOrder)
	}
	bias, err := tensor.LoadSafetensorsVec(st, prefix+"cif_conv1d.bias")
	if err != nil {
		return nil, err
	}
	outW, err := tensor.LoadSafetensorsMat(st, prefix+"cif_output.weight")
	if err != nil {
		return nil, err
	}
	if outW.R != 1 {
		return nil, fmt.Errorf("%scif_output.weight: expected a single output row, got %d", prefix, outW.R)
	}
	outB, err := tensor.LoadSafetensorsVec(st, prefix+"cif_output.bias")
	if err != nil {
		return nil, err
	}
	if len(outB) != 1 {
		return nil, fmt.Errorf("%scif_output.bias: expected 1 value, got %d", prefix, len(outB))
	}
	return NewConvHead(*kernel, bias, Linear{Weight: outW.Row(0), Bias: outB[0]}, lOrder, rOrder)
}

// Dim returns the frame dimension the head accepts.
func (h *ConvHead) Dim() int {
	return h.Kernel.R
}

func (h *ConvHead) RawScores(frames tensor.Mat, dst []float32) error {
	d := h.Kernel.R
	if frames.C != d {
		return cif.InvalidArgument("conv head expects dim %d, got %d", d, frames.C)
	}
	if len(dst) < frames.R {
		return fmt.Errorf("score buffer too small: %d < %d", len(dst), frames.R)
	}
	k := h.LOrder + h.ROrder + 1
	// window holds the padded receptive field in the kernel's (i*k+j) layout.
	window := make([]float32, d*k)
	conv := make([]float32, d)
	for t := 0; t < frames.R; t++ {
		tensor.Zero(window)
		for j := 0; j < k; j++ {
			s := t + j - h.LOrder
			if s < 0 || s >= frames.R {
				continue
			}
			for i, v := range frames.Row(s) {
				window[i*k+j] = v
			}
		}
		tensor.MatVec(conv, &h.Kernel, window)
		tensor.Add(conv, h.Bias)
		for o := range conv {
			conv[o] = tensor.Relu(conv[o])
		}
		dst[t] = h.Output.Score(conv)
	}
	return nil
}
