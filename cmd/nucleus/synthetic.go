package main

import (
	"github.com/samcharles93/nucleus/internal/rng"
	"github.com/samcharles93/nucleus/internal/tensor"
)

// syntheticBatch fills rows x vocab with softmax distributions over uniform
// random logits. A larger scale gives peakier rows.
func syntheticBatch(gen *rng.Generator, rows, vocab int, scale float64) *tensor.HostBatch {
	data := make([]float32, rows*vocab)
	for r := 0; r < rows; r++ {
		row := data[r*vocab : (r+1)*vocab]
		for i := range row {
			row[i] = float32(gen.Uniform())
		}
		tensor.SoftmaxScaled(row, row, float32(scale))
	}
	return tensor.NewHostBatch(data, rows, vocab)
}
