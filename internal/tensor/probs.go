package tensor

import (
	"errors"
	"fmt"
)

// DeviceKind identifies where a tensor's storage lives.
type DeviceKind int

const (
	CPU DeviceKind = iota
	CUDA
)

func (k DeviceKind) String() string {
	switch k {
	case CPU:
		return "cpu"
	case CUDA:
		return "cuda"
	default:
		return fmt.Sprintf("device(%d)", int(k))
	}
}

// Device is a storage location. Index selects among devices of the same kind.
type Device struct {
	Kind  DeviceKind
	Index int
}

// Host is the host (CPU) device.
var Host = Device{Kind: CPU}

func (d Device) IsHost() bool { return d.Kind == CPU }

func (d Device) String() string {
	if d.Kind == CPU {
		return d.Kind.String()
	}
	return fmt.Sprintf("%s:%d", d.Kind, d.Index)
}

var ErrShape = errors.New("tensor shape mismatch")

// Batch is a dense row-major float32 batch of probability distributions with
// shape (rows, vocab). The storage may be off-host; CopyToHost performs a
// synchronous transfer into dst, which must hold at least rows*vocab values.
type Batch interface {
	Shape() (rows, vocab int)
	Device() Device
	CopyToHost(dst []float32) error
}

// HostBatch is a Batch backed by host memory.
type HostBatch struct {
	Data  []float32
	Rows  int
	Vocab int
}

// NewHostBatch wraps data as a (rows, vocab) batch. It panics if the data
// length does not match the shape.
func NewHostBatch(data []float32, rows, vocab int) *HostBatch {
	if rows < 0 || vocab <= 0 || len(data) != rows*vocab {
		panic(fmt.Errorf("%w: %d values for shape (%d, %d)", ErrShape, len(data), rows, vocab))
	}
	return &HostBatch{Data: data, Rows: rows, Vocab: vocab}
}

// FromRows packs equally sized rows into a HostBatch.
func FromRows(rows [][]float32) (*HostBatch, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrShape)
	}
	vocab := len(rows[0])
	if vocab == 0 {
		return nil, fmt.Errorf("%w: empty row", ErrShape)
	}
	data := make([]float32, 0, len(rows)*vocab)
	for i, r := range rows {
		if len(r) != vocab {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrShape, i, len(r), vocab)
		}
		data = append(data, r...)
	}
	return &HostBatch{Data: data, Rows: len(rows), Vocab: vocab}, nil
}

func (b *HostBatch) Shape() (int, int) { return b.Rows, b.Vocab }

func (b *HostBatch) Device() Device { return Host }

func (b *HostBatch) CopyToHost(dst []float32) error {
	n := b.Rows * b.Vocab
	if len(dst) < n {
		return fmt.Errorf("%w: destination holds %d values, need %d", ErrShape, len(dst), n)
	}
	copy(dst, b.Data[:n])
	return nil
}

// Flatten collapses an arbitrary shape (*, vocab) into (rows, vocab).
func Flatten(shape []int) (rows, vocab int, err error) {
	if len(shape) == 0 {
		return 0, 0, fmt.Errorf("%w: scalar shape", ErrShape)
	}
	vocab = shape[len(shape)-1]
	rows = 1
	for _, d := range shape[:len(shape)-1] {
		if d < 0 {
			return 0, 0, fmt.Errorf("%w: negative dimension in %v", ErrShape, shape)
		}
		rows *= d
	}
	return rows, vocab, nil
}

// View is a window of shape (Rows, Vocab) into host storage owned elsewhere.
type View struct {
	Data  []float32
	Rows  int
	Vocab int
}

// Row returns row i of the view. The slice aliases the view's storage.
func (v View) Row(i int) []float32 {
	return v.Data[i*v.Vocab : (i+1)*v.Vocab : (i+1)*v.Vocab]
}

// Span returns rows [start, end) as one contiguous slice.
func (v View) Span(start, end int) []float32 {
	return v.Data[start*v.Vocab : end*v.Vocab : end*v.Vocab]
}

// Dist is a single distribution of vocab length, tagged with its device.
type Dist struct {
	Device Device
	Data   []float32
}

// HostDist wraps host-resident probabilities.
func HostDist(data []float32) Dist {
	return Dist{Device: Host, Data: data}
}

func (d Dist) Defined() bool { return d.Data != nil }
