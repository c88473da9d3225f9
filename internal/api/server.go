package api

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/nucleus/internal/logger"
	"github.com/samcharles93/nucleus/internal/nucleus"
	"github.com/samcharles93/nucleus/internal/sampler"
	"github.com/samcharles93/nucleus/internal/tensor"
	"github.com/samcharles93/nucleus/internal/trace"
	"github.com/samcharles93/nucleus/internal/version"
)

// Server exposes a Sampler over HTTP. The sampler's host buffer is shared
// across batches, so calls into it are serialised.
type Server struct {
	mu      sync.Mutex
	sampler sampler.Sampler
	events  *trace.MemoryRecorder
	log     logger.Logger
}

// NewServer wraps s. events, if non-nil, must be the recorder s was built
// with; it backs the trace endpoint.
func NewServer(s sampler.Sampler, events *trace.MemoryRecorder, log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{sampler: s, events: events, log: log}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.POST("/v1/sample", s.handleSample)
	e.POST("/v1/verify", s.handleVerify)
	e.GET("/v1/trace/:id", s.handleTrace)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Sampler: s.sampler.Name(),
		Version: version.String(),
	})
}

func (s *Server) handleSample(c *echo.Context) error {
	req, err := decodeJSON[SampleRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	probs, reqs, err := buildSampleBatch(req)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	var res sampler.SampleResult
	err = s.run(func() {
		res = s.sampler.BatchSampleTokens(probs, reqs, sampler.SampleOptions{
			ChosenProbs:   req.ReturnProbs,
			Distributions: req.ReturnDists,
		})
	})
	if err != nil {
		return s.writeSamplingError(c, err)
	}

	out := SampleResponse{Object: "sample.batch", Results: make([]SampleResult, len(reqs))}
	for i, r := range reqs {
		item := SampleResult{
			ID:    r.ID,
			Seed:  r.RNG.(seeded).Seed(),
			Token: res.Tokens[i],
		}
		if res.Probs != nil {
			item.Prob = &res.Probs[i]
		}
		if res.Dists != nil {
			item.Dist = res.Dists[i]
		}
		out.Results[i] = item
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleVerify(c *echo.Context) error {
	req, err := decodeJSON[VerifyRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	probs, reqs, states, err := buildVerifyBatch(req)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	var accepted [][]int32
	if err := s.run(func() { accepted = s.sampler.BatchVerifyDraftTokens(probs, reqs) }); err != nil {
		return s.writeSamplingError(c, err)
	}

	out := VerifyResponse{Object: "verify.batch", Results: make([]VerifyResult, len(reqs))}
	for i, r := range reqs {
		out.Results[i] = VerifyResult{
			ID:        r.ID,
			Seed:      r.RNG.(seeded).Seed(),
			Accepted:  nonNil(accepted[i]),
			Committed: nonNil(states[i].tokens),
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleTrace(c *echo.Context) error {
	id := c.Param("id")
	if s.events == nil {
		return writeNotFound(c, "tracing is disabled")
	}
	events := s.events.Events(id)
	if len(events) == 0 {
		return writeNotFound(c, fmt.Sprintf("no trace for request %q", id))
	}
	return c.JSON(http.StatusOK, TraceResponse{ID: id, Events: events})
}

func (s *Server) run(fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sampler.Catch(fn)
}

func (s *Server) writeSamplingError(c *echo.Context, err error) error {
	if errors.Is(err, nucleus.ErrCorruptDistribution) {
		s.log.Warn("sampling rejected corrupt distribution", "error", err)
		return writeError(c, http.StatusUnprocessableEntity, "invalid_distribution_error", err.Error(), "", "corrupt_distribution")
	}
	s.log.Warn("sampling aborted", "error", err)
	return writeBadRequest(c, err.Error())
}

type seeded interface {
	Seed() uint64
}

// tokenLog collects the tokens a verification commits for one request.
type tokenLog struct {
	tokens []int32
}

func (l *tokenLog) CommitToken(token int32) { l.tokens = append(l.tokens, token) }

func buildSampleBatch(req SampleRequest) (*tensor.HostBatch, []sampler.Request, error) {
	if len(req.Requests) == 0 {
		return nil, nil, newInvalidRequest("requests must not be empty")
	}
	rows := make([][]float32, len(req.Requests))
	reqs := make([]sampler.Request, len(req.Requests))
	for i, item := range req.Requests {
		param := fmt.Sprintf("requests[%d]", i)
		if err := validateConfig(item.Config, param+".config"); err != nil {
			return nil, nil, err
		}
		if len(item.Probs) == 0 {
			return nil, nil, newInvalidRequest("%s.probs must not be empty", param)
		}
		rows[i] = item.Probs
		reqs[i] = sampler.Request{
			ID:     requestID(item.ID),
			Config: sampler.GenerationConfig{Temperature: item.Config.Temperature, TopP: item.Config.TopP},
			RNG:    generator(item.Seed),
		}
	}
	probs, err := tensor.FromRows(rows)
	if err != nil {
		return nil, nil, newInvalidRequest("probs: %v", err)
	}
	return probs, reqs, nil
}

func buildVerifyBatch(req VerifyRequest) (*tensor.HostBatch, []sampler.VerifyRequest, []*tokenLog, error) {
	if len(req.Requests) == 0 {
		return nil, nil, nil, newInvalidRequest("requests must not be empty")
	}
	var rows [][]float32
	reqs := make([]sampler.VerifyRequest, len(req.Requests))
	states := make([]*tokenLog, len(req.Requests))
	for i, item := range req.Requests {
		param := fmt.Sprintf("requests[%d]", i)
		if err := validateConfig(item.Config, param+".config"); err != nil {
			return nil, nil, nil, err
		}
		drafts := make([]sampler.DraftStep, len(item.Drafts))
		for pos, d := range item.Drafts {
			if len(d.Target) == 0 {
				return nil, nil, nil, newInvalidRequest("%s.drafts[%d].target must not be empty", param, pos)
			}
			rows = append(rows, d.Target)
			drafts[pos] = sampler.DraftStep{Token: d.Token, Prob: d.Prob}
			if d.Dist != nil {
				drafts[pos].Dist = tensor.HostDist(d.Dist)
			}
		}
		states[i] = &tokenLog{}
		reqs[i] = sampler.VerifyRequest{
			Request: sampler.Request{
				ID:     requestID(item.ID),
				Config: sampler.GenerationConfig{Temperature: item.Config.Temperature, TopP: item.Config.TopP},
				RNG:    generator(item.Seed),
			},
			State:  states[i],
			Drafts: drafts,
		}
	}
	if len(rows) == 0 {
		return nil, nil, nil, newInvalidRequest("requests carry no drafted tokens")
	}
	probs, err := tensor.FromRows(rows)
	if err != nil {
		return nil, nil, nil, newInvalidRequest("target: %v", err)
	}
	return probs, reqs, states, nil
}

func nonNil(s []int32) []int32 {
	if s == nil {
		return []int32{}
	}
	return s
}
