package sampler

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"testing"

	"github.com/samcharles93/nucleus/internal/nucleus"
	"github.com/samcharles93/nucleus/internal/rng"
	"github.com/samcharles93/nucleus/internal/tensor"
	"github.com/samcharles93/nucleus/internal/trace"
)

func newTestSampler(t *testing.T, opts Options) Sampler {
	t.Helper()
	s, err := New(CPU, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustBatch(t *testing.T, rows ...[]float32) *tensor.HostBatch {
	t.Helper()
	b, err := tensor.FromRows(rows)
	if err != nil {
		t.Fatalf("FromRows() error = %v", err)
	}
	return b
}

func expectAbort(t *testing.T, target error, fn func()) {
	t.Helper()
	err := Catch(fn)
	if !errors.Is(err, target) {
		t.Fatalf("Catch() error = %v, want %v", err, target)
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "cpu", want: CPU},
		{in: " CPU ", want: CPU},
		{in: "", want: CPU},
		{in: "auto", want: CPU},
		{in: "tpu", wantErr: true},
		{in: "cuda", wantErr: true},
	}
	for _, tc := range tests {
		got, err := Normalize(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrUnknownKind) {
				t.Errorf("Normalize(%q) error = %v, want ErrUnknownKind", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("Normalize(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestMustNewUnknownKindPanics(t *testing.T) {
	t.Parallel()

	expectAbort(t, ErrUnknownKind, func() { MustNew("gpu-resident", Options{}) })
	if Available() != CPU {
		t.Fatalf("Available() = %q, want %q", Available(), CPU)
	}
}

func TestEffectiveTopP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		cfg  GenerationConfig
		want float64
	}{
		{GenerationConfig{Temperature: 0, TopP: 0.9}, 0},
		{GenerationConfig{Temperature: 1e-6, TopP: 0.9}, 0},
		{GenerationConfig{Temperature: 0.7, TopP: 0.9}, 0.9},
		{GenerationConfig{Temperature: 1, TopP: 1}, 1},
	}
	for _, tc := range tests {
		if got := tc.cfg.EffectiveTopP(); got != tc.want {
			t.Errorf("%+v.EffectiveTopP() = %v, want %v", tc.cfg, got, tc.want)
		}
	}
}

func TestBatchSampleTokensScenarios(t *testing.T) {
	t.Parallel()

	rec := trace.NewMemoryRecorder(0)
	s := newTestSampler(t, Options{Trace: rec, Workers: 3})

	probs := mustBatch(t,
		[]float32{0.1, 0.6, 0.2, 0.1},
		[]float32{0.1, 0.6, 0.2, 0.1},
		[]float32{0.2, 0.2, 0.6, 0.0},
	)
	reqs := []Request{
		{ID: "fast-path", Config: GenerationConfig{Temperature: 1, TopP: 0.5}, RNG: rng.NewSequence(0.05)},
		{ID: "full", Config: GenerationConfig{Temperature: 1, TopP: 1}, RNG: rng.NewSequence(0.95)},
		{ID: "greedy", Config: GenerationConfig{Temperature: 0, TopP: 0.9}, RNG: rng.NewSequence(0.5)},
	}
	res := s.BatchSampleTokens(probs, reqs, SampleOptions{ChosenProbs: true, Distributions: true})

	if !slices.Equal(res.Tokens, []int32{1, 3, 2}) {
		t.Fatalf("Tokens = %v, want [1 3 2]", res.Tokens)
	}
	if !slices.Equal(res.Probs, []float32{0.6, 0.1, 1}) {
		t.Fatalf("Probs = %v, want [0.6 0.1 1]", res.Probs)
	}
	if !slices.Equal(res.Dists[0], probs.Data[:4]) {
		t.Fatalf("Dists[0] = %v, want original row", res.Dists[0])
	}
	if !slices.Equal(res.Dists[2], []float32{0, 0, 1, 0}) {
		t.Fatalf("Dists[2] = %v, want one-hot at 2", res.Dists[2])
	}

	wantEvents := []string{
		trace.StartSampling,
		trace.StartCopyToHost,
		trace.FinishCopyToHost,
		trace.StartSampleToken,
		trace.FinishSampleToken,
		trace.FinishSampling,
	}
	for _, r := range reqs {
		if got := rec.Names(r.ID); !slices.Equal(got, wantEvents) {
			t.Fatalf("events for %s = %v, want %v", r.ID, got, wantEvents)
		}
	}
}

func TestBatchSampleTokensOptionalOutputsOmitted(t *testing.T) {
	t.Parallel()

	s := newTestSampler(t, Options{})
	res := s.BatchSampleTokens(mustBatch(t, []float32{0.5, 0.5}), []Request{
		{ID: "a", Config: GenerationConfig{Temperature: 1, TopP: 1}, RNG: rng.New(1)},
	}, SampleOptions{})
	if res.Probs != nil || res.Dists != nil {
		t.Fatalf("unrequested outputs populated: %+v", res)
	}
	if len(res.Tokens) != 1 {
		t.Fatalf("len(Tokens) = %d, want 1", len(res.Tokens))
	}
}

func TestBatchSampleTokensStitchesByIndex(t *testing.T) {
	t.Parallel()

	const n, vocab = 257, 11
	rows := make([][]float32, n)
	reqs := make([]Request, n)
	for i := range rows {
		rows[i] = make([]float32, vocab)
		rows[i][i%vocab] = 1
		reqs[i] = Request{
			ID:     fmt.Sprintf("req-%d", i),
			Config: GenerationConfig{Temperature: 0.8, TopP: 0.9},
			RNG:    rng.New(uint64(i)),
		}
	}
	s := newTestSampler(t, Options{Workers: 8})
	res := s.BatchSampleTokens(mustBatch(t, rows...), reqs, SampleOptions{ChosenProbs: true})
	for i, tok := range res.Tokens {
		if int(tok) != i%vocab {
			t.Fatalf("request %d: token %d, want %d", i, tok, i%vocab)
		}
		if res.Probs[i] != 1 {
			t.Fatalf("request %d: prob %v, want 1", i, res.Probs[i])
		}
	}
}

func TestBatchSampleTokensIndependentOfWorkerCount(t *testing.T) {
	t.Parallel()

	const n, vocab = 64, 32
	gen := rng.New(99)
	rows := make([][]float32, n)
	for i := range rows {
		rows[i] = make([]float32, vocab)
		var sum float32
		for j := range rows[i] {
			rows[i][j] = float32(gen.Uniform())
			sum += rows[i][j]
		}
		for j := range rows[i] {
			rows[i][j] /= sum
		}
	}
	run := func(workers int) []int32 {
		reqs := make([]Request, n)
		for i := range reqs {
			reqs[i] = Request{
				ID:     fmt.Sprint(i),
				Config: GenerationConfig{Temperature: 1, TopP: 0.8},
				RNG:    rng.New(uint64(1000 + i)),
			}
		}
		return newTestSampler(t, Options{Workers: workers}).
			BatchSampleTokens(mustBatch(t, rows...), reqs, SampleOptions{}).Tokens
	}
	if a, b := run(1), run(7); !slices.Equal(a, b) {
		t.Fatalf("tokens differ between 1 and 7 workers:\n%v\n%v", a, b)
	}
}

func TestBatchSampleTokensShapeMismatch(t *testing.T) {
	t.Parallel()

	s := newTestSampler(t, Options{})
	probs := mustBatch(t, []float32{1, 0}, []float32{0, 1})
	expectAbort(t, ErrShapeMismatch, func() {
		s.BatchSampleTokens(probs, []Request{{ID: "only", RNG: rng.New(1)}}, SampleOptions{})
	})
	expectAbort(t, ErrMissingRNG, func() {
		s.BatchSampleTokens(probs, []Request{{ID: "a", RNG: rng.New(1)}, {ID: "b"}}, SampleOptions{})
	})
}

func TestBatchSampleTokensCorruptRowAbortsBatch(t *testing.T) {
	t.Parallel()

	s := newTestSampler(t, Options{Workers: 2})
	nan := float32(math.NaN())
	probs := mustBatch(t, []float32{0.5, 0.5}, []float32{nan, nan})
	reqs := []Request{
		{ID: "ok", Config: GenerationConfig{Temperature: 1, TopP: 1}, RNG: rng.New(1)},
		{ID: "bad", Config: GenerationConfig{Temperature: 1, TopP: 1}, RNG: rng.New(2)},
	}
	expectAbort(t, nucleus.ErrCorruptDistribution, func() {
		s.BatchSampleTokens(probs, reqs, SampleOptions{})
	})

	// The sampler stays usable for the next well-formed batch.
	res := s.BatchSampleTokens(mustBatch(t, []float32{0, 1}, []float32{1, 0}), reqs, SampleOptions{})
	if !slices.Equal(res.Tokens, []int32{1, 0}) {
		t.Fatalf("Tokens = %v, want [1 0]", res.Tokens)
	}
}

func TestBatchSampleTokensReusesHostBuffer(t *testing.T) {
	t.Parallel()

	s := newTestSampler(t, Options{})
	cpu := s.(*cpuSampler)
	reqs := []Request{{ID: "a", RNG: rng.New(1)}}
	for i := 0; i < 5; i++ {
		s.BatchSampleTokens(mustBatch(t, []float32{0.3, 0.7}), reqs, SampleOptions{})
	}
	if cpu.host.Allocations() != 1 {
		t.Fatalf("Allocations() = %d, want 1", cpu.host.Allocations())
	}
}
