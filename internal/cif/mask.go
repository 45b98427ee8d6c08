package cif

import "github.com/samcharles93/cif/internal/tensor"

// SequenceMask builds a [len(lengths) x maxLen] 0/1 mask with m[b][t] = 1
// exactly when t < lengths[b].
func SequenceMask(lengths []int, maxLen int) (tensor.Mat, error) {
	if maxLen < 0 {
		return tensor.Mat{}, InvalidArgument("max_len %d is negative", maxLen)
	}
	for b, l := range lengths {
		if l < 0 {
			return tensor.Mat{}, InvalidArgument("length %d at index %d is negative", l, b)
		}
		if l > maxLen {
			return tensor.Mat{}, InvalidArgument("length %d at index %d exceeds max_len %d", l, b, maxLen)
		}
	}
	m := tensor.NewMat(len(lengths), maxLen)
	for b, l := range lengths {
		row := m.Row(b)
		for t := 0; t < l; t++ {
			row[t] = 1
		}
	}
	return m, nil
}

// MaskLengths recovers per-row lengths from a mask. Every value must be 0 or
// 1 and each row must be monotone (no 1 after a 0).
func MaskLengths(m tensor.Mat) ([]int, error) {
	if len(m.Data) < m.R*m.Stride || m.Stride < m.C {
		return nil, InvalidArgument("mask storage does not match shape %dx%d", m.R, m.C)
	}
	lengths := make([]int, m.R)
	for b := 0; b < m.R; b++ {
		row := m.Row(b)
		n := 0
		for t, v := range row {
			switch v {
			case 1:
				if n != t {
					return nil, InvalidArgument("mask row %d is not monotone at position %d", b, t)
				}
				n++
			case 0:
			default:
				return nil, InvalidArgument("mask row %d has non-binary value %v at position %d", b, v, t)
			}
		}
		lengths[b] = n
	}
	return lengths, nil
}
