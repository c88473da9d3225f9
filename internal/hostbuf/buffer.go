// Package hostbuf owns the reusable host-side staging buffer that device
// probability batches are copied into before sampling.
package hostbuf

import (
	"errors"
	"fmt"

	"github.com/samcharles93/nucleus/internal/tensor"
)

// InitialRows is the row capacity of the first allocation.
const InitialRows = 32

var (
	ErrVocabMismatch = errors.New("vocabulary size differs from previous batch")
	ErrTransfer      = errors.New("device to host transfer failed")
)

// Options configures host allocation.
type Options struct {
	// Pinned requests page-locked memory where the platform supports it.
	// Locking is best effort; an unlocked mapping is used if it fails.
	Pinned bool
}

// Buffer is a (capacity, vocab) float32 host buffer. Capacity grows by
// doubling and never shrinks. A Buffer is not safe for concurrent CopyToHost
// calls.
type Buffer struct {
	opts     Options
	mem      *region
	capacity int
	vocab    int
	allocs   int
}

func New(opts Options) *Buffer {
	return &Buffer{opts: opts}
}

// CopyToHost synchronously copies src into the buffer and returns a view of
// shape (rows, vocab). The view aliases the buffer and is only valid until the
// next call. A vocabulary change or a failed transfer panics.
func (b *Buffer) CopyToHost(src tensor.Batch) tensor.View {
	rows, vocab := src.Shape()
	if b.mem != nil && vocab != b.vocab {
		panic(fmt.Errorf("%w: got %d, want %d", ErrVocabMismatch, vocab, b.vocab))
	}
	if vocab <= 0 || rows < 0 {
		panic(fmt.Errorf("%w: shape (%d, %d)", tensor.ErrShape, rows, vocab))
	}

	need := InitialRows
	if b.mem != nil {
		need = b.capacity
	}
	for need < rows {
		need *= 2
	}
	if b.mem == nil || need != b.capacity {
		b.grow(need, vocab)
	}

	n := rows * vocab
	dst := b.mem.data[:n:n]
	if err := src.CopyToHost(dst); err != nil {
		panic(fmt.Errorf("%w from %s: %v", ErrTransfer, src.Device(), err))
	}
	return tensor.View{Data: dst, Rows: rows, Vocab: vocab}
}

func (b *Buffer) grow(capacity, vocab int) {
	next, err := allocate(capacity*vocab, b.opts.Pinned)
	if err != nil {
		panic(fmt.Errorf("allocate host buffer (%d, %d): %w", capacity, vocab, err))
	}
	if b.mem != nil {
		_ = b.mem.free()
	}
	b.mem = next
	b.capacity = capacity
	b.vocab = vocab
	b.allocs++
}

// Capacity reports the current row capacity, or 0 before the first copy.
func (b *Buffer) Capacity() int { return b.capacity }

// Vocab reports the fixed vocabulary size, or 0 before the first copy.
func (b *Buffer) Vocab() int { return b.vocab }

// Allocations counts physical allocations performed so far.
func (b *Buffer) Allocations() int { return b.allocs }

// Locked reports whether the current storage is page-locked.
func (b *Buffer) Locked() bool { return b.mem != nil && b.mem.locked }

// Close releases the backing storage. Views returned earlier become invalid.
func (b *Buffer) Close() error {
	if b.mem == nil {
		return nil
	}
	err := b.mem.free()
	b.mem = nil
	b.capacity = 0
	return err
}
