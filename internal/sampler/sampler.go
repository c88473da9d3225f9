// Package sampler turns batches of next-token probability distributions into
// sampled tokens and verifies speculatively drafted tokens against a target
// distribution.
package sampler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/samcharles93/nucleus/internal/logger"
	"github.com/samcharles93/nucleus/internal/tensor"
	"github.com/samcharles93/nucleus/internal/trace"
)

const (
	CPU  = "cpu"
	Auto = "auto"
)

// eps is the temperature below which sampling collapses to argmax, and the
// guard added to draft probabilities in the acceptance ratio.
const eps = 1e-5

// RandomSource yields uniform values in [0, 1). One source belongs to one
// request and is only drawn from by the task handling that request.
type RandomSource interface {
	Uniform() float64
}

// TokenCommitter appends an accepted token to a request's state.
type TokenCommitter interface {
	CommitToken(token int32)
}

// GenerationConfig holds the per-request sampling parameters.
type GenerationConfig struct {
	Temperature float64
	TopP        float64
}

// EffectiveTopP is 0 (greedy) when the temperature is below eps and TopP
// otherwise.
func (c GenerationConfig) EffectiveTopP() float64 {
	if c.Temperature < eps {
		return 0
	}
	return c.TopP
}

// Request identifies one row of a batch and carries its sampling state.
type Request struct {
	ID     string
	Config GenerationConfig
	RNG    RandomSource
}

// SampleOptions selects the optional outputs of BatchSampleTokens.
type SampleOptions struct {
	ChosenProbs   bool
	Distributions bool
}

// SampleResult holds one entry per request, in request order. Probs and
// Dists are nil unless requested.
type SampleResult struct {
	Tokens []int32
	Probs  []float32
	Dists  [][]float32
}

// DraftStep is one speculatively drafted token. Dist is the draft model's
// full distribution at this position and is only read when the token is
// rejected; it must then be host-resident with vocabulary length.
type DraftStep struct {
	Token int32
	Prob  float32
	Dist  tensor.Dist
}

// VerifyRequest is a request with its drafted tokens. The target batch holds
// one row per drafted token, laid out request after request.
type VerifyRequest struct {
	Request
	State  TokenCommitter
	Drafts []DraftStep
}

// Sampler is implemented by every sampling backend.
//
// Calls on one Sampler must not overlap: the host staging buffer is shared by
// consecutive calls. Contract violations and corrupted distributions panic.
type Sampler interface {
	Name() string
	// BatchSampleTokens draws one token per row of probs.
	BatchSampleTokens(probs tensor.Batch, reqs []Request, opts SampleOptions) SampleResult
	// BatchVerifyDraftTokens runs rejection sampling over each request's
	// drafts in order, committing accepted and resampled tokens to the
	// request's State, and returns the accepted tokens per request.
	BatchVerifyDraftTokens(probs tensor.Batch, reqs []VerifyRequest) [][]int32
	Close() error
}

// Options configures a sampler backend.
type Options struct {
	Trace      trace.Recorder
	Logger     logger.Logger
	Workers    int
	PinnedHost bool
}

var factories = map[string]func(Options) (Sampler, error){
	CPU: newCPU,
}

// Normalize lowercases kind and resolves "" and "auto" to the default
// backend. Unknown kinds are an error.
func Normalize(kind string) (string, error) {
	k := strings.ToLower(strings.TrimSpace(kind))
	if k == "" || k == Auto {
		return CPU, nil
	}
	if _, ok := factories[k]; !ok {
		return "", fmt.Errorf("%w %q (expected %s)", ErrUnknownKind, kind, Available())
	}
	return k, nil
}

// New constructs the backend named by kind.
func New(kind string, opts Options) (Sampler, error) {
	k, err := Normalize(kind)
	if err != nil {
		return nil, err
	}
	return factories[k](opts)
}

// MustNew is New for configuration that was validated earlier; it panics on
// an unknown kind.
func MustNew(kind string, opts Options) Sampler {
	s, err := New(kind, opts)
	if err != nil {
		panic(err)
	}
	return s
}

// Available returns a comma-separated list of backend kinds.
func Available() string {
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return strings.Join(kinds, ", ")
}

// CumVerifyLengths returns the row offsets of each request's drafts in the
// target batch; entry i+1 minus entry i is the number of drafts of request i.
func CumVerifyLengths(reqs []VerifyRequest) []int {
	offsets := make([]int, len(reqs)+1)
	for i, r := range reqs {
		offsets[i+1] = offsets[i] + len(r.Drafts)
	}
	return offsets
}

func requestIDs[T interface{ requestID() string }](reqs []T) []string {
	ids := make([]string, len(reqs))
	for i, r := range reqs {
		ids[i] = r.requestID()
	}
	return ids
}

func (r Request) requestID() string { return r.ID }
