package tensor

import "math"

// Softmax converts logits in x to probabilities in place.
func Softmax(x []float32) {
	SoftmaxScaled(x, x, 1)
}

// SoftmaxScaled writes softmax(scale*src) into dst. dst and src may alias.
// A row whose exponentials all underflow is left as computed (all zero).
func SoftmaxScaled(dst, src []float32, scale float32) {
	if len(src) == 0 {
		return
	}
	if len(dst) != len(src) {
		panic("tensor: softmax length mismatch")
	}
	maxv := src[0] * scale
	for _, v := range src[1:] {
		maxv = max(maxv, v*scale)
	}
	var sum float64
	for i, v := range src {
		e := math.Exp(float64(v*scale - maxv))
		dst[i] = float32(e)
		sum += e
	}
	if sum == 0 {
		return
	}
	inv := 1.0 / sum
	for i := range dst {
		dst[i] = float32(float64(dst[i]) * inv)
	}
}
