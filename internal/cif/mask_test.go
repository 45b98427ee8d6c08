package cif

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/samcharles93/cif/internal/tensor"
)

func TestSequenceMask(t *testing.T) {
	t.Parallel()
	m, err := SequenceMask([]int{2, 0, 4}, 4)
	if err != nil {
		t.Fatalf("SequenceMask: %v", err)
	}
	want := [][]float32{
		{1, 1, 0, 0},
		{0, 0, 0, 0},
		{1, 1, 1, 1},
	}
	if diff := cmp.Diff(want, m.Rows()); diff != "" {
		t.Fatalf("mask mismatch (-want +got):\n%s", diff)
	}

	again, err := SequenceMask([]int{2, 0, 4}, 4)
	if err != nil {
		t.Fatalf("SequenceMask: %v", err)
	}
	if diff := cmp.Diff(m.Data, again.Data); diff != "" {
		t.Fatalf("SequenceMask is not idempotent (-first +second):\n%s", diff)
	}
}

func TestSequenceMaskMatchesLengths(t *testing.T) {
	t.Parallel()
	lengths := []int{0, 1, 3, 7, 7}
	m, err := SequenceMask(lengths, 7)
	if err != nil {
		t.Fatalf("SequenceMask: %v", err)
	}
	for b, l := range lengths {
		for tt := 0; tt < m.C; tt++ {
			want := float32(0)
			if tt < l {
				want = 1
			}
			if got := m.At(b, tt); got != want {
				t.Fatalf("mask[%d][%d] = %v, want %v", b, tt, got, want)
			}
		}
	}
	got, err := MaskLengths(m)
	if err != nil {
		t.Fatalf("MaskLengths: %v", err)
	}
	if diff := cmp.Diff(lengths, got); diff != "" {
		t.Fatalf("MaskLengths mismatch (-want +got):\n%s", diff)
	}
}

func TestSequenceMaskInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		lengths []int
		maxLen  int
	}{
		{"negative length", []int{3, -1}, 4},
		{"length exceeds max", []int{5}, 4},
		{"negative max", []int{}, -1},
	}
	for _, tc := range tests {
		_, err := SequenceMask(tc.lengths, tc.maxLen)
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("%s: expected ErrInvalidArgument, got %v", tc.name, err)
		}
	}
}

func TestMaskLengthsRejectsMalformedMasks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rows [][]float32
	}{
		{"not monotone", [][]float32{{1, 0, 1}}},
		{"not binary", [][]float32{{1, 0.5, 0}}},
	}
	for _, tc := range tests {
		m, err := tensor.NewMatFromRows(tc.rows)
		if err != nil {
			t.Fatalf("%s: NewMatFromRows: %v", tc.name, err)
		}
		if _, err := MaskLengths(m); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("%s: expected ErrInvalidArgument, got %v", tc.name, err)
		}
	}
}
