// Package trace records per-request lifecycle events emitted by the sampler.
// Recording is observational only and never affects sampling results.
package trace

import (
	"slices"
	"sync"
	"time"

	"github.com/samcharles93/nucleus/internal/logger"
)

// Event names emitted by the sampler.
const (
	StartSampling           = "start sampling"
	FinishSampling          = "finish sampling"
	StartCopyToHost         = "start copy probs to CPU"
	FinishCopyToHost        = "finish copy probs to CPU"
	StartSampleToken        = "start sample token"
	FinishSampleToken       = "finish sample token"
	StartDraftVerification  = "start draft verification"
	FinishDraftVerification = "finish draft verification"
)

// Recorder receives events. Implementations must be safe for concurrent use.
type Recorder interface {
	AddEvent(requestID, event string)
}

// AddEventBatch records event for every id. A nil recorder is a no-op.
func AddEventBatch(r Recorder, ids []string, event string) {
	if r == nil {
		return
	}
	for _, id := range ids {
		r.AddEvent(id, event)
	}
}

type nop struct{}

func (nop) AddEvent(string, string) {}

// Nop returns a recorder that drops every event.
func Nop() Recorder { return nop{} }

// LogRecorder forwards events to a logger at debug level.
type LogRecorder struct {
	log logger.Logger
}

func NewLogRecorder(log logger.Logger) *LogRecorder {
	return &LogRecorder{log: log.WithGroup("trace")}
}

func (r *LogRecorder) AddEvent(requestID, event string) {
	r.log.Debug(event, "request_id", requestID)
}

// Event is one recorded entry.
type Event struct {
	Name string    `json:"name"`
	Time time.Time `json:"time"`
}

// MemoryRecorder keeps the most recent events per request in memory.
type MemoryRecorder struct {
	mu      sync.Mutex
	events  map[string][]Event
	order   []string
	maxReqs int
	clock   func() time.Time
}

// NewMemoryRecorder retains events for up to maxRequests request ids,
// evicting the oldest id first. maxRequests <= 0 keeps everything.
func NewMemoryRecorder(maxRequests int) *MemoryRecorder {
	return &MemoryRecorder{
		events:  make(map[string][]Event),
		maxReqs: maxRequests,
		clock:   time.Now,
	}
}

func (r *MemoryRecorder) AddEvent(requestID, event string) {
	now := r.clock()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[requestID]; !ok {
		r.order = append(r.order, requestID)
		if r.maxReqs > 0 && len(r.order) > r.maxReqs {
			delete(r.events, r.order[0])
			r.order = r.order[1:]
		}
	}
	r.events[requestID] = append(r.events[requestID], Event{Name: event, Time: now})
}

// Events returns a copy of the events recorded for requestID in order.
func (r *MemoryRecorder) Events(requestID string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events[requestID])
}

// Names returns just the event names for requestID.
func (r *MemoryRecorder) Names(requestID string) []string {
	events := r.Events(requestID)
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Name
	}
	return names
}

// Requests lists retained request ids, oldest first.
func (r *MemoryRecorder) Requests() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.order)
}

// Multi fans events out to several recorders.
type Multi []Recorder

func (m Multi) AddEvent(requestID, event string) {
	for _, r := range m {
		r.AddEvent(requestID, event)
	}
}
