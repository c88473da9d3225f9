package sampler

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownKind      = errors.New("unknown sampler kind")
	ErrShapeMismatch    = errors.New("batch shape mismatch")
	ErrMissingRNG       = errors.New("request has no random source")
	ErrMissingState     = errors.New("request has no token committer")
	ErrTokenOutOfRange  = errors.New("draft token outside vocabulary")
	ErrInvalidDraftDist = errors.New("invalid draft distribution")
	ErrEmptyResidual    = errors.New("residual distribution has no mass")
)

// Catch runs fn and converts a panic carrying an error into a returned
// error. Panics with non-error values are re-raised.
func Catch(fn func()) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			e, ok := rec.(error)
			if !ok {
				panic(rec)
			}
			err = fmt.Errorf("sampling aborted: %w", e)
		}
	}()
	fn()
	return nil
}
