// Package rng provides per-request uniform random sources.
package rng

import "math/rand/v2"

// Generator yields uniform values in [0, 1). It is not safe for concurrent
// use; each request owns one.
type Generator struct {
	r    *rand.Rand
	seed uint64
}

// New returns a PCG generator for seed. Equal seeds produce equal streams.
func New(seed uint64) *Generator {
	return &Generator{
		r:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		seed: seed,
	}
}

// FromSeed maps a signed seed to a generator; seed < 0 picks a random seed.
func FromSeed(seed int64) *Generator {
	if seed < 0 {
		return New(rand.Uint64())
	}
	return New(uint64(seed))
}

func (g *Generator) Uniform() float64 { return g.r.Float64() }

func (g *Generator) Seed() uint64 { return g.seed }

// Sequence replays a fixed list of values and then repeats the last one.
// It is intended for reproducing a specific accept/reject path.
type Sequence struct {
	values []float64
	next   int
}

func NewSequence(values ...float64) *Sequence {
	return &Sequence{values: values}
}

func (s *Sequence) Uniform() float64 {
	if len(s.values) == 0 {
		return 0
	}
	v := s.values[min(s.next, len(s.values)-1)]
	s.next++
	return v
}

// Draws reports how many values have been consumed.
func (s *Sequence) Draws() int { return s.next }
