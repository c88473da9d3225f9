package main

import (
	"math"
	"testing"

	"github.com/samcharles93/nucleus/internal/rng"
	"github.com/samcharles93/nucleus/internal/sampler"
)

func TestSyntheticBatchRowsAreDistributions(t *testing.T) {
	t.Parallel()

	b := syntheticBatch(rng.New(3), 5, 100, 10)
	rows, vocab := b.Shape()
	if rows != 5 || vocab != 100 {
		t.Fatalf("Shape() = %d x %d", rows, vocab)
	}
	for r := 0; r < rows; r++ {
		var sum float64
		for _, p := range b.Data[r*vocab : (r+1)*vocab] {
			if p < 0 || math.IsNaN(float64(p)) {
				t.Fatalf("row %d has invalid entry %v", r, p)
			}
			sum += float64(p)
		}
		if math.Abs(sum-1) > 1e-4 {
			t.Fatalf("row %d sums to %v", r, sum)
		}
	}
}

func TestVerifyRequestsCoverAllRows(t *testing.T) {
	t.Parallel()

	gen := rng.New(1)
	draft := syntheticBatch(gen, 10, 16, 4)
	reqs := verifyRequests(sampler.GenerationConfig{Temperature: 1, TopP: 0.9}, draft, 10, 4, gen)
	total := 0
	for _, r := range reqs {
		total += len(r.Drafts)
		for _, d := range r.Drafts {
			if len(d.Dist.Data) != 16 || d.Token < 0 || d.Token >= 16 {
				t.Fatalf("bad draft step %+v", d)
			}
		}
	}
	if len(reqs) != 3 || total != 10 {
		t.Fatalf("got %d requests covering %d rows, want 3 covering 10", len(reqs), total)
	}
}
