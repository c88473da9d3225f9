package sampler

import (
	"fmt"

	"github.com/samcharles93/nucleus/internal/hostbuf"
	"github.com/samcharles93/nucleus/internal/logger"
	"github.com/samcharles93/nucleus/internal/nucleus"
	"github.com/samcharles93/nucleus/internal/tensor"
	"github.com/samcharles93/nucleus/internal/trace"
	"github.com/samcharles93/nucleus/internal/workpool"
)

type cpuSampler struct {
	trace trace.Recorder
	log   logger.Logger
	host  *hostbuf.Buffer
	pool  *workpool.Pool[*nucleus.Scratch]
}

func newCPU(opts Options) (Sampler, error) {
	rec := opts.Trace
	if rec == nil {
		rec = trace.Nop()
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	s := &cpuSampler{
		trace: rec,
		log:   log.With("sampler", CPU),
		host:  hostbuf.New(hostbuf.Options{Pinned: opts.PinnedHost}),
		pool:  workpool.New(opts.Workers, nucleus.NewScratch),
	}
	s.log.Debug("sampler ready", "workers", s.pool.Size(), "pinned_host", opts.PinnedHost)
	return s, nil
}

func (s *cpuSampler) Name() string { return CPU }

func (s *cpuSampler) Close() error {
	s.pool.Close()
	return s.host.Close()
}

func (s *cpuSampler) copyToHost(probs tensor.Batch, ids []string) tensor.View {
	trace.AddEventBatch(s.trace, ids, trace.StartCopyToHost)
	view := s.host.CopyToHost(probs)
	trace.AddEventBatch(s.trace, ids, trace.FinishCopyToHost)
	return view
}

func (s *cpuSampler) BatchSampleTokens(probs tensor.Batch, reqs []Request, opts SampleOptions) SampleResult {
	ids := requestIDs(reqs)
	trace.AddEventBatch(s.trace, ids, trace.StartSampling)

	rows, _ := probs.Shape()
	if rows != len(reqs) {
		panic(fmt.Errorf("%w: %d probability rows for %d requests", ErrShapeMismatch, rows, len(reqs)))
	}
	for i, r := range reqs {
		if r.RNG == nil {
			panic(fmt.Errorf("%w: request %d (%s)", ErrMissingRNG, i, r.ID))
		}
	}

	host := s.copyToHost(probs, ids)
	res := SampleResult{Tokens: make([]int32, rows)}
	if opts.ChosenProbs {
		res.Probs = make([]float32, rows)
	}
	if opts.Distributions {
		res.Dists = make([][]float32, rows)
	}

	// Each task writes only slot i of the outputs.
	s.pool.ParallelFor(rows, func(scratch *nucleus.Scratch, i int) {
		req := reqs[i]
		s.trace.AddEvent(req.ID, trace.StartSampleToken)
		var snapshot []float32
		if res.Dists != nil {
			snapshot = make([]float32, host.Vocab)
			res.Dists[i] = snapshot
		}
		out := nucleus.SampleTopP(host.Row(i), req.Config.EffectiveTopP(), req.RNG.Uniform(), scratch, snapshot)
		res.Tokens[i] = int32(out.Token)
		if res.Probs != nil {
			res.Probs[i] = out.Prob
		}
		s.trace.AddEvent(req.ID, trace.FinishSampleToken)
	})

	trace.AddEventBatch(s.trace, ids, trace.FinishSampling)
	s.log.Debug("sampled batch", "requests", rows, "capacity", s.host.Capacity())
	return res
}
