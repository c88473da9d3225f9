//go:build unix

package hostbuf

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

type region struct {
	data   []float32
	raw    []byte
	locked bool
}

func allocate(n int, pinned bool) (*region, error) {
	if n == 0 {
		return &region{}, nil
	}
	raw, err := unix.Mmap(-1, 0, n*4, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		// Fall back to the Go heap when anonymous mappings are unavailable.
		return &region{data: make([]float32, n)}, nil
	}
	r := &region{
		data: unsafe.Slice((*float32)(unsafe.Pointer(&raw[0])), n),
		raw:  raw,
	}
	if pinned && unix.Mlock(raw) == nil {
		r.locked = true
	}
	return r, nil
}

func (r *region) free() error {
	if r.raw == nil {
		r.data = nil
		return nil
	}
	if r.locked {
		_ = unix.Munlock(r.raw)
	}
	err := unix.Munmap(r.raw)
	r.raw = nil
	r.data = nil
	r.locked = false
	return err
}
