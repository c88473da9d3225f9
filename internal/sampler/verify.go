package sampler

import (
	"fmt"

	"github.com/samcharles93/nucleus/internal/nucleus"
	"github.com/samcharles93/nucleus/internal/tensor"
	"github.com/samcharles93/nucleus/internal/trace"
)

func (s *cpuSampler) BatchVerifyDraftTokens(probs tensor.Batch, reqs []VerifyRequest) [][]int32 {
	ids := requestIDs(reqs)
	trace.AddEventBatch(s.trace, ids, trace.StartDraftVerification)

	rows, vocab := probs.Shape()
	offsets := CumVerifyLengths(reqs)
	if offsets[len(reqs)] != rows {
		panic(fmt.Errorf("%w: %d target rows for %d drafted tokens", ErrShapeMismatch, rows, offsets[len(reqs)]))
	}
	for i, r := range reqs {
		if r.RNG == nil {
			panic(fmt.Errorf("%w: request %d (%s)", ErrMissingRNG, i, r.ID))
		}
		if r.State == nil {
			panic(fmt.Errorf("%w: request %d (%s)", ErrMissingState, i, r.ID))
		}
		for pos, d := range r.Drafts {
			if d.Token < 0 || int(d.Token) >= vocab {
				panic(fmt.Errorf("%w: request %d position %d token %d (vocab %d)", ErrTokenOutOfRange, i, pos, d.Token, vocab))
			}
		}
	}

	host := s.copyToHost(probs, ids)
	accepted := make([][]int32, len(reqs))

	// Request i owns rows [offsets[i], offsets[i+1]) of the host buffer
	// exclusively; residual distributions are written there in place.
	s.pool.ParallelFor(len(reqs), func(scratch *nucleus.Scratch, i int) {
		accepted[i] = verifyDrafts(host.Span(offsets[i], offsets[i+1]), vocab, reqs[i], scratch)
	})

	trace.AddEventBatch(s.trace, ids, trace.FinishDraftVerification)
	return accepted
}

// verifyDrafts walks one request's drafts in order. target holds one row per
// draft. Processing stops at the first rejection, after committing a token
// resampled from the residual distribution.
func verifyDrafts(target []float32, vocab int, req VerifyRequest, scratch *nucleus.Scratch) []int32 {
	accepted := make([]int32, 0, len(req.Drafts))
	for pos, d := range req.Drafts {
		row := target[pos*vocab : (pos+1)*vocab]
		p := row[d.Token]
		q := d.Prob

		if p >= q || req.RNG.Uniform() < float64(p/(q+eps)) {
			req.State.CommitToken(d.Token)
			accepted = append(accepted, d.Token)
			continue
		}

		if !d.Dist.Defined() || !d.Dist.Device.IsHost() || len(d.Dist.Data) != vocab {
			panic(fmt.Errorf("%w: request %s position %d: device %s, %d values, vocab %d",
				ErrInvalidDraftDist, req.ID, pos, d.Dist.Device, len(d.Dist.Data), vocab))
		}
		if mass := residual(row, d.Dist.Data); !(mass > 0) {
			panic(fmt.Errorf("%w: %w: request %s position %d", ErrEmptyResidual, nucleus.ErrCorruptDistribution, req.ID, pos))
		}
		next := nucleus.SampleTopP(row, req.Config.EffectiveTopP(), req.RNG.Uniform(), scratch, nil)
		req.State.CommitToken(int32(next.Token))
		// The rejected position records the drafted token while the state
		// receives the resampled one.
		accepted = append(accepted, d.Token)
		break
	}
	return accepted
}

// residual overwrites target with max(target-draft, 0) normalised to sum to
// one and returns the mass before normalisation.
func residual(target, draft []float32) float64 {
	var sum float64
	for j := range target {
		target[j] = max(target[j]-draft[j], 0)
		sum += float64(target[j])
	}
	if !(sum > 0) {
		return sum
	}
	for j := range target {
		target[j] = float32(float64(target[j]) / sum)
	}
	return sum
}
