package api

import "github.com/samcharles93/nucleus/internal/trace"

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

type GenerationConfig struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

// SampleItem is one row of a sampling batch. A nil Seed draws a random one;
// the seed used is echoed back in the result.
type SampleItem struct {
	ID     string           `json:"id,omitempty"`
	Seed   *int64           `json:"seed,omitempty"`
	Config GenerationConfig `json:"config"`
	Probs  []float32        `json:"probs"`
}

type SampleRequest struct {
	Requests    []SampleItem `json:"requests"`
	ReturnProbs bool         `json:"return_probs,omitempty"`
	ReturnDists bool         `json:"return_dists,omitempty"`
}

type SampleResult struct {
	ID    string    `json:"id"`
	Seed  uint64    `json:"seed"`
	Token int32     `json:"token"`
	Prob  *float32  `json:"prob,omitempty"`
	Dist  []float32 `json:"dist,omitempty"`
}

type SampleResponse struct {
	Object  string         `json:"object"`
	Results []SampleResult `json:"results"`
}

// Draft is one speculatively proposed token. Target is the target model's
// distribution at this position; Dist is the draft model's, needed only if
// the token is rejected.
type Draft struct {
	Token  int32     `json:"token"`
	Prob   float32   `json:"prob"`
	Target []float32 `json:"target"`
	Dist   []float32 `json:"dist,omitempty"`
}

type VerifyItem struct {
	ID     string           `json:"id,omitempty"`
	Seed   *int64           `json:"seed,omitempty"`
	Config GenerationConfig `json:"config"`
	Drafts []Draft          `json:"drafts"`
}

type VerifyRequest struct {
	Requests []VerifyItem `json:"requests"`
}

type VerifyResult struct {
	ID        string  `json:"id"`
	Seed      uint64  `json:"seed"`
	Accepted  []int32 `json:"accepted"`
	Committed []int32 `json:"committed"`
}

type VerifyResponse struct {
	Object  string         `json:"object"`
	Results []VerifyResult `json:"results"`
}

type TraceResponse struct {
	ID     string        `json:"id"`
	Events []trace.Event `json:"events"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Sampler string `json:"sampler"`
	Version string `json:"version"`
}
