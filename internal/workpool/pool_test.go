package workpool

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

type counter struct {
	calls int
}

func TestParallelForVisitsEveryIndexOnce(t *testing.T) {
	t.Parallel()

	p := New(4, func() *counter { return &counter{} })
	defer p.Close()

	for _, n := range []int{0, 1, 3, 4, 5, 17, 1000} {
		hits := make([]int32, n)
		p.ParallelFor(n, func(_ *counter, i int) {
			atomic.AddInt32(&hits[i], 1)
		})
		for i, h := range hits {
			if h != 1 {
				t.Fatalf("n=%d: index %d visited %d times", n, i, h)
			}
		}
	}
}

func TestWorkerStateIsPrivate(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		states []*counter
	)
	p := New(3, func() *counter {
		c := &counter{}
		mu.Lock()
		states = append(states, c)
		mu.Unlock()
		return c
	})
	defer p.Close()

	// Unsynchronised increments are only safe because a state is never
	// shared between workers; the race detector would flag a violation.
	for round := 0; round < 20; round++ {
		p.ParallelFor(30, func(c *counter, _ int) {
			c.calls++
		})
	}

	mu.Lock()
	defer mu.Unlock()
	if len(states) != 3 {
		t.Fatalf("created %d states, want 3", len(states))
	}
	total := 0
	for _, s := range states {
		total += s.calls
	}
	if total != 600 {
		t.Fatalf("total calls = %d, want 600", total)
	}
}

func TestParallelForPropagatesPanic(t *testing.T) {
	t.Parallel()

	p := New(2, func() struct{} { return struct{}{} })
	defer p.Close()

	boom := errors.New("boom")
	var ran atomic.Int32
	func() {
		defer func() {
			rec := recover()
			err, ok := rec.(error)
			if !ok || !errors.Is(err, boom) {
				t.Fatalf("recovered %v, want error wrapping boom", rec)
			}
			var tp *TaskPanic
			if !errors.As(err, &tp) {
				t.Fatalf("recovered %T, want *TaskPanic", rec)
			}
		}()
		p.ParallelFor(10, func(_ struct{}, i int) {
			ran.Add(1)
			if i == 0 {
				panic(boom)
			}
		})
	}()
	if ran.Load() < 6 {
		t.Fatalf("only %d tasks ran; sibling chunks should complete", ran.Load())
	}

	// The pool remains usable after a propagated panic.
	var after atomic.Int32
	p.ParallelFor(5, func(_ struct{}, _ int) { after.Add(1) })
	if after.Load() != 5 {
		t.Fatalf("after panic: %d calls, want 5", after.Load())
	}
}

func TestParallelForNonErrorPanic(t *testing.T) {
	t.Parallel()

	p := New(1, func() int { return 0 })
	defer p.Close()

	defer func() {
		rec := recover()
		tp, ok := rec.(*TaskPanic)
		if !ok || tp.Error() != "worker panic: plain string" {
			t.Fatalf("recovered %v, want TaskPanic with message", rec)
		}
	}()
	p.ParallelFor(1, func(int, int) { panic("plain string") })
}

func TestConcurrentCallers(t *testing.T) {
	t.Parallel()

	p := New(4, func() struct{} { return struct{}{} })
	defer p.Close()

	var wg sync.WaitGroup
	var total atomic.Int64
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < 10; r++ {
				p.ParallelFor(25, func(_ struct{}, _ int) { total.Add(1) })
			}
		}()
	}
	wg.Wait()
	if total.Load() != 8*10*25 {
		t.Fatalf("total = %d, want %d", total.Load(), 8*10*25)
	}
}

func TestDefaultSize(t *testing.T) {
	t.Parallel()

	p := New(0, func() struct{} { return struct{}{} })
	defer p.Close()
	if p.Size() < 1 {
		t.Fatalf("Size() = %d, want >= 1", p.Size())
	}
}
