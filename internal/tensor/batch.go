package tensor

// Batch is a dense [B x T x D] float32 tensor: B sequences of T frames, each a
// D-dimensional vector.  Frames are stored contiguously so one sequence is a
// [T x D] row-major block.
type Batch struct {
	B, T, D int
	Data    []float32
}

// NewBatch allocates a zeroed batch tensor.
func NewBatch(b, t, d int) Batch {
	if b < 0 || t < 0 || d < 0 {
		panic("negative dimension for batch")
	}
	return Batch{B: b, T: t, D: d, Data: make([]float32, b*t*d)}
}

// NewBatchFromData wraps existing data. It checks that len(data) == b*t*d.
func NewBatchFromData(b, t, d int, data []float32) Batch {
	if b*t*d != len(data) {
		panic("data length mismatch")
	}
	return Batch{B: b, T: t, D: d, Data: data}
}

// NewBatchFromNested copies a [B][T][D] nested slice into a Batch. Every
// sequence must have the same number of frames and every frame the same width.
func NewBatchFromNested(seqs [][][]float32) (Batch, error) {
	if len(seqs) == 0 {
		return NewBatch(0, 0, 0), nil
	}
	t := len(seqs[0])
	d := 0
	if t > 0 {
		d = len(seqs[0][0])
	}
	out := NewBatch(len(seqs), t, d)
	for b, seq := range seqs {
		if len(seq) != t {
			return Batch{}, errRaggedRows
		}
		for i, frame := range seq {
			if len(frame) != d {
				return Batch{}, errRaggedRows
			}
			copy(out.Frame(b, i), frame)
		}
	}
	return out, nil
}

// Frame returns a view of frame t of sequence b.
func (x *Batch) Frame(b, t int) []float32 {
	if b < 0 || b >= x.B || t < 0 || t >= x.T {
		panic("frame index out of range")
	}
	off := (b*x.T + t) * x.D
	return x.Data[off : off+x.D]
}

// Seq returns sequence b as a [T x D] matrix view sharing storage with x.
func (x *Batch) Seq(b int) Mat {
	if b < 0 || b >= x.B {
		panic("sequence index out of range")
	}
	off := b * x.T * x.D
	return Mat{R: x.T, C: x.D, Stride: x.D, Data: x.Data[off : off+x.T*x.D]}
}

// Nested copies the batch out as [B][T][D] slices.
func (x *Batch) Nested() [][][]float32 {
	out := make([][][]float32, x.B)
	for b := range out {
		seq := make([][]float32, x.T)
		for t := range seq {
			seq[t] = append(make([]float32, 0, x.D), x.Frame(b, t)...)
		}
		out[b] = seq
	}
	return out
}
