package tensor

import "math/rand"

// Mat represents a dense row-major matrix of float32 values.
//
// R and C represent the number of rows and columns respectively.  Stride is the
// number of elements between the starts of two consecutive rows (for row-major
// matrices this is equal to C).  Data holds the flattened matrix values.
//
// Per-frame quantities of a batch ([B x T] alphas, masks and fire curves) and
// single sequences of frames ([T x D]) are both carried as a Mat.
type Mat struct {
	R, C   int
	Stride int
	Data   []float32
}

// NewMat allocates a new matrix with the given number of rows and columns.
// The underlying slice is zero initialised.  The stride is set to the
// number of columns.
func NewMat(r, c int) Mat {
	if r < 0 || c < 0 {
		panic("negative dimension for matrix")
	}
	return Mat{
		R:      r,
		C:      c,
		Stride: c,
		Data:   make([]float32, r*c),
	}
}

// NewMatFromData creates a matrix from existing data.
// It checks that the data length matches r*c.
func NewMatFromData(r, c int, data []float32) Mat {
	if r*c != len(data) {
		panic("data length mismatch")
	}
	return Mat{
		R:      r,
		C:      c,
		Stride: c,
		Data:   data,
	}
}

// NewMatFromRows copies a ragged-free slice of rows into a new matrix.
// Every row must have the same length.
func NewMatFromRows(rows [][]float32) (Mat, error) {
	if len(rows) == 0 {
		return NewMat(0, 0), nil
	}
	c := len(rows[0])
	m := NewMat(len(rows), c)
	for i, row := range rows {
		if len(row) != c {
			return Mat{}, errRaggedRows
		}
		copy(m.Data[i*c:(i+1)*c], row)
	}
	return m, nil
}

// Row returns a view of the i-th row of the matrix as a slice.  The slice
// has length equal to the number of columns.  Modifications to the returned
// slice update the underlying matrix values.
func (m *Mat) Row(i int) []float32 {
	if i < 0 || i >= m.R {
		panic("row index out of range")
	}
	start := i * m.Stride
	return m.Data[start : start+m.C]
}

// At returns the element at row i, column j.
func (m *Mat) At(i, j int) float32 {
	return m.Data[i*m.Stride+j]
}

// Set stores v at row i, column j.
func (m *Mat) Set(i, j int, v float32) {
	m.Data[i*m.Stride+j] = v
}

// Rows copies the matrix out as nested slices.
func (m *Mat) Rows() [][]float32 {
	out := make([][]float32, m.R)
	for i := range out {
		out[i] = append(make([]float32, 0, m.C), m.Row(i)...)
	}
	return out
}

// FillRand fills the matrix with reproducible pseudo-random values.  A small
// range around zero is used to avoid overflow in accumulations.  The seed
// controls the random sequence; multiple calls with the same seed produce
// identical matrices.
func FillRand(m *Mat, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for i := range m.Data {
		m.Data[i] = (rng.Float32() - 0.5) * 0.02 // roughly in (-0.01,0.01)
	}
}

var (
	errRaggedRows      = fmtError("rows have different lengths")
	errShapeMismatch   = fmtError("shape mismatch")
	errUnsupportedRank = fmtError("unsupported tensor rank")
)

type fmtError string

func (e fmtError) Error() string { return string(e) }
