package tensor

import (
	"fmt"

	"github.com/samcharles93/cif/internal/safetensors"
)

// LoadSafetensorsMat loads a 2D matrix from a Safetensors file.
func LoadSafetensorsMat(st *safetensors.File, name string) (*Mat, error) {
	data, info, err := st.ReadTensorF32(name)
	if err != nil {
		return nil, err
	}
	if len(info.Shape) != 2 {
		return nil, fmt.Errorf("%s: expected 2D tensor, got shape %v: %w", name, info.Shape, errUnsupportedRank)
	}
	r := info.Shape[0]
	c := info.Shape[1]
	if r*c != len(data) {
		return nil, fmt.Errorf("%s: %w", name, errShapeMismatch)
	}
	return &Mat{R: r, C: c, Stride: c, Data: data}, nil
}

// LoadSafetensorsVec loads a 1D vector from a Safetensors file.
func LoadSafetensorsVec(st *safetensors.File, name string) ([]float32, error) {
	data, info, err := st.ReadTensorF32(name)
	if err != nil {
		return nil, err
	}
	if len(info.Shape) != 1 {
		return nil, fmt.Errorf("%s: expected 1D tensor, got shape %v: %w", name, info.Shape, errUnsupportedRank)
	}
	return data, nil
}

// LoadSafetensorsConvKernel loads a Conv1d weight [out, in, k] and flattens it
// to a 2D matrix [out, in*k] whose row o is laid out in-channel major, so
// element (o, i*k+j) is weight[o][i][j].
func LoadSafetensorsConvKernel(st *safetensors.File, name string) (*Mat, int, error) {
	data, info, err := st.ReadTensorF32(name)
	if err != nil {
		return nil, 0, err
	}
	if len(info.Shape) != 3 {
		return nil, 0, fmt.Errorf("%s: expected 3D tensor, got shape %v: %w", name, info.Shape, errUnsupportedRank)
	}
	out := info.Shape[0]
	in := info.Shape[1]
	k := info.Shape[2]
	if out*in*k != len(data) {
		return nil, 0, fmt.Errorf("%s: %w", name, errShapeMismatch)
	}
	return &Mat{R: out, C: in * k, Stride: in * k, Data: data}, k, nil
}

// LoadSafetensorsBatch loads a 3D [B, T, D] tensor as a Batch.
func LoadSafetensorsBatch(st *safetensors.File, name string) (Batch, error) {
	data, info, err := st.ReadTensorF32(name)
	if err != nil {
		return Batch{}, err
	}
	if len(info.Shape) != 3 {
		return Batch{}, fmt.Errorf("%s: expected 3D tensor, got shape %v: %w", name, info.Shape, errUnsupportedRank)
	}
	b, t, d := info.Shape[0], info.Shape[1], info.Shape[2]
	if b*t*d != len(data) {
		return Batch{}, fmt.Errorf("%s: %w", name, errShapeMismatch)
	}
	return NewBatchFromData(b, t, d, data), nil
}

// LoadSafetensorsMask loads a validity mask stored as [B, T] or [B, 1, T].
func LoadSafetensorsMask(st *safetensors.File, name string) (Mat, error) {
	data, info, err := st.ReadTensorF32(name)
	if err != nil {
		return Mat{}, err
	}
	switch {
	case len(info.Shape) == 2:
		return NewMatFromData(info.Shape[0], info.Shape[1], data), nil
	case len(info.Shape) == 3 && info.Shape[1] == 1:
		return NewMatFromData(info.Shape[0], info.Shape[2], data), nil
	default:
		return Mat{}, fmt.Errorf("%s: expected [B,T] or [B,1,T], got shape %v: %w", name, info.Shape, errUnsupportedRank)
	}
}
