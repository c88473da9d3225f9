// Package workpool runs data-parallel loops on a fixed set of goroutines.
// Each worker owns a private state value that is reused across the tasks it
// executes and is never visible to another worker.
package workpool

import (
	"fmt"
	"runtime"
	"sync"
)

type task[S any] struct {
	fn     func(state S, i int)
	rs, re int
	done   chan any
}

// Pool is a fixed-size worker pool. ParallelFor may be called from several
// goroutines at once.
type Pool[S any] struct {
	size      int
	tasks     chan task[S]
	doneSlots chan chan any
	closeOnce sync.Once
}

// New starts size workers, each holding the state returned by newState.
// size <= 0 uses GOMAXPROCS.
func New[S any](size int, newState func() S) *Pool[S] {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	size = max(size, 1)
	p := &Pool[S]{
		size:      size,
		tasks:     make(chan task[S], size*2),
		doneSlots: make(chan chan any, size),
	}
	for i := 0; i < size; i++ {
		p.doneSlots <- make(chan any, size)
	}
	for i := 0; i < size; i++ {
		state := newState()
		go func() {
			for t := range p.tasks {
				t.done <- runRange(t, state)
			}
		}()
	}
	return p
}

func runRange[S any](t task[S], state S) (rec any) {
	defer func() {
		if r := recover(); r != nil {
			rec = r
		}
	}()
	for i := t.rs; i < t.re; i++ {
		t.fn(state, i)
	}
	return nil
}

// Size reports the number of workers.
func (p *Pool[S]) Size() int { return p.size }

// ParallelFor calls fn(state, i) for every i in [0, n), splitting the range
// into contiguous chunks across workers. It returns once all calls finish.
// If any call panics, ParallelFor re-panics on the calling goroutine with the
// first recovered value after the remaining chunks complete.
func (p *Pool[S]) ParallelFor(n int, fn func(state S, i int)) {
	if n <= 0 {
		return
	}
	workers := min(p.size, n)
	chunk := (n + workers - 1) / workers
	done := <-p.doneSlots

	active := 0
	for rs := 0; rs < n; rs += chunk {
		p.tasks <- task[S]{fn: fn, rs: rs, re: min(rs+chunk, n), done: done}
		active++
	}

	var first any
	for i := 0; i < active; i++ {
		if rec := <-done; rec != nil && first == nil {
			first = rec
		}
	}
	p.doneSlots <- done
	if first != nil {
		if err, ok := first.(error); ok {
			panic(&TaskPanic{Err: err})
		}
		panic(&TaskPanic{Err: fmt.Errorf("%v", first)})
	}
}

// Close stops the workers. The pool must not be used afterwards.
func (p *Pool[S]) Close() {
	p.closeOnce.Do(func() {
		close(p.tasks)
	})
}

// TaskPanic carries a panic raised inside a worker back to the caller.
type TaskPanic struct {
	Err error
}

func (e *TaskPanic) Error() string { return "worker panic: " + e.Err.Error() }

func (e *TaskPanic) Unwrap() error { return e.Err }
