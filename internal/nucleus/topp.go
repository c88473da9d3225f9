// Package nucleus draws a single token from a probability row under top-p
// truncation.
package nucleus

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
)

// FullThreshold is the top_p value at or above which the whole distribution
// is sampled without truncation.
const FullThreshold = float64(float32(1.0) - float32(1e-5))

// cutoffDivisor bounds the first filtering pass: by pigeonhole at most this
// many entries can have probability >= top_p/cutoffDivisor.
const cutoffDivisor = 1024

var ErrCorruptDistribution = errors.New("probability distribution contains NaN or negative values")

// Result is a sampled token and its probability under the distribution the
// token was drawn from.
type Result struct {
	Prob  float32
	Token int
}

type candidate struct {
	prob  float32
	token int32
}

// Scratch is reusable working storage for SampleTopP. A Scratch must not be
// shared between goroutines.
type Scratch struct {
	data []candidate
}

func NewScratch() *Scratch {
	return &Scratch{data: make([]candidate, 0, 256)}
}

// SampleTopP draws one index from row given top_p and a uniform sample u in
// [0, 1). top_p == 0 selects the argmax. If snapshot is non-nil it receives
// the distribution before sampling (one-hot at the argmax for top_p == 0).
// scratch may be nil, in which case a temporary one is allocated.
//
// A row whose mass cannot satisfy u panics with ErrCorruptDistribution.
func SampleTopP(row []float32, topP, u float64, scratch *Scratch, snapshot []float32) Result {
	if snapshot != nil && len(snapshot) != len(row) {
		panic(fmt.Errorf("snapshot holds %d values, row has %d", len(snapshot), len(row)))
	}

	if topP == 0 {
		idx := Argmax(row)
		if idx < 0 {
			panic(fmt.Errorf("%w: no positive entry in row of %d", ErrCorruptDistribution, len(row)))
		}
		if snapshot != nil {
			clear(snapshot)
			snapshot[idx] = 1
		}
		return Result{Prob: 1, Token: idx}
	}

	if snapshot != nil {
		copy(snapshot, row)
	}

	if topP >= FullThreshold {
		return sampleFull(row, u)
	}

	if scratch == nil {
		scratch = NewScratch()
	}
	if res, ok := sampleWithCutoff(row, topP, u, float32(topP/cutoffDivisor), scratch); ok {
		return res
	}
	res, ok := sampleWithCutoff(row, topP, u, 0, scratch)
	if !ok {
		panic(fmt.Errorf("%w: nucleus of top_p=%v is empty", ErrCorruptDistribution, topP))
	}
	return res
}

// Argmax returns the first index holding the largest positive value, or -1
// if no entry is positive.
func Argmax(row []float32) int {
	best := -1
	var bestProb float32
	for i, p := range row {
		if p > bestProb {
			bestProb = p
			best = i
		}
	}
	return best
}

func sampleFull(row []float32, u float64) Result {
	var sum float64
	for i, p := range row {
		sum += float64(p)
		if sum >= u {
			return Result{Prob: p, Token: i}
		}
	}
	panic(fmt.Errorf("%w: cumulative mass %v never reached sample %v", ErrCorruptDistribution, sum, u))
}

// sampleWithCutoff samples among entries with probability >= cutoff. It
// reports false when the filtered entries carry less than top_p mass and a
// wider cutoff is required; with cutoff 0 it only reports false for an empty
// or non-finite candidate set.
func sampleWithCutoff(row []float32, topP, u float64, cutoff float32, s *Scratch) (Result, bool) {
	data := s.data[:0]
	var cutoffSum float32
	for i, p := range row {
		if p < cutoff {
			continue
		}
		cutoffSum += p
		data = append(data, candidate{prob: p, token: int32(i)})
		// The remaining entries cannot add cutoff-sized mass past this point.
		if cutoffSum > 1-cutoff {
			break
		}
	}
	s.data = data
	if len(data) == 0 {
		return Result{Prob: -1, Token: -1}, false
	}

	slices.SortStableFunc(data, func(a, b candidate) int {
		return cmp.Compare(b.prob, a.prob)
	})

	// u < top/top_p implies u < top/top_p_sum since top_p_sum >= top_p.
	if u < float64(data[0].prob)/topP {
		return Result{Prob: data[0].prob, Token: int(data[0].token)}, true
	}

	// Replace probabilities with running sums over the nucleus prefix.
	var cum float32
	n := 0
	for ; n < len(data); n++ {
		if float64(cum) >= topP {
			break
		}
		cum += data[n].prob
		data[n].prob = cum
	}
	if float64(cum) < topP && cutoff != 0 {
		return Result{Prob: -1, Token: -1}, false
	}
	// Realised nucleus mass; may exceed top_p by the last admitted entry.
	topPSum := cum
	if !(topPSum > 0) || math.IsInf(float64(topPSum), 0) {
		return Result{Prob: -1, Token: -1}, false
	}

	var last float32
	for _, c := range data[:n] {
		if u < float64(c.prob/topPSum) {
			return Result{Prob: c.prob - last, Token: int(c.token)}, true
		}
		last = c.prob
	}
	// Round-off can leave u above the final normalised sum.
	end := data[n-1]
	var prev float32
	if n > 1 {
		prev = data[n-2].prob
	}
	return Result{Prob: end.prob - prev, Token: int(end.token)}, true
}
