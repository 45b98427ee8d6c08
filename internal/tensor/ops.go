package tensor

import (
	"math"
)

// Add adds src to dst element-wise.
func Add(dst, src []float32) {
	for i := range dst {
		dst[i] += src[i]
	}
}

// Axpy computes dst += a*x.
func Axpy(dst []float32, a float32, x []float32) {
	if a == 0 {
		return
	}
	for i := range dst {
		dst[i] += a * x[i]
	}
}

// ScaleTo writes a*x into dst.
func ScaleTo(dst []float32, a float32, x []float32) {
	for i := range dst {
		dst[i] = a * x[i]
	}
}

// Dot computes the dot product of a and b.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Sum returns the sum of x accumulated in float64.
func Sum(x []float32) float32 {
	var s float64
	for _, v := range x {
		s += float64(v)
	}
	return float32(s)
}

// Zero clears x.
func Zero(x []float32) {
	for i := range x {
		x[i] = 0
	}
}

// Sigmoid computes the logistic sigmoid activation.
func Sigmoid(x float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(float64(-x))))
}

// Relu clamps negative values to zero.
func Relu(x float32) float32 {
	if x > 0 {
		return x
	}
	return 0
}
