package trace

import (
	"bytes"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/samcharles93/nucleus/internal/logger"
)

func TestMemoryRecorderKeepsOrder(t *testing.T) {
	t.Parallel()

	r := NewMemoryRecorder(0)
	AddEventBatch(r, []string{"a", "b"}, StartSampling)
	r.AddEvent("a", StartSampleToken)
	r.AddEvent("a", FinishSampleToken)
	AddEventBatch(r, []string{"a", "b"}, FinishSampling)

	want := []string{StartSampling, StartSampleToken, FinishSampleToken, FinishSampling}
	if got := r.Names("a"); !slices.Equal(got, want) {
		t.Fatalf("Names(a) = %v, want %v", got, want)
	}
	if got := r.Names("b"); !slices.Equal(got, []string{StartSampling, FinishSampling}) {
		t.Fatalf("Names(b) = %v", got)
	}
	if got := r.Requests(); !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("Requests() = %v", got)
	}
}

func TestMemoryRecorderEvictsOldest(t *testing.T) {
	t.Parallel()

	r := NewMemoryRecorder(2)
	for _, id := range []string{"r1", "r2", "r3"} {
		r.AddEvent(id, StartSampling)
	}
	if got := r.Requests(); !slices.Equal(got, []string{"r2", "r3"}) {
		t.Fatalf("Requests() = %v, want [r2 r3]", got)
	}
	if len(r.Events("r1")) != 0 {
		t.Fatalf("evicted request still has events")
	}
}

func TestMemoryRecorderConcurrent(t *testing.T) {
	t.Parallel()

	r := NewMemoryRecorder(0)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				r.AddEvent("shared", StartSampleToken)
			}
		}()
	}
	wg.Wait()
	if n := len(r.Events("shared")); n != 800 {
		t.Fatalf("recorded %d events, want 800", n)
	}
}

func TestLogRecorder(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	rec := NewLogRecorder(logger.JSON(&buf, slog.LevelDebug))
	rec.AddEvent("req-1", StartCopyToHost)
	out := buf.String()
	if !strings.Contains(out, `"msg":"start copy probs to CPU"`) || !strings.Contains(out, `"request_id":"req-1"`) {
		t.Fatalf("unexpected log output: %s", out)
	}
}

func TestMultiAndNop(t *testing.T) {
	t.Parallel()

	a, b := NewMemoryRecorder(0), NewMemoryRecorder(0)
	m := Multi{a, Nop(), b}
	m.AddEvent("x", FinishSampling)
	if len(a.Events("x")) != 1 || len(b.Events("x")) != 1 {
		t.Fatalf("Multi did not fan out")
	}
	AddEventBatch(nil, []string{"x"}, StartSampling)
}
