package formula

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
)

// Source produces die results. Roll returns a value in [1, sides].
type Source interface {
	Roll(sides int) int
}

type randSource struct {
	rng *rand.Rand
}

// NewSource returns a deterministic Source for the given seed.
// Same seed and same sequence of Roll calls give the same results.
func NewSource(seed int64) Source {
	return &randSource{rng: rand.New(rand.NewSource(seed))}
}

// NewRandomSource returns a Source seeded from crypto/rand.
func NewRandomSource() (Source, error) {
	seed, err := NewSeed()
	if err != nil {
		return nil, err
	}
	return NewSource(seed), nil
}

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

func (s *randSource) Roll(sides int) int {
	return s.rng.Intn(sides) + 1
}

// FixedSource replays Values in order, wrapping around.
// Values are clamped to [1, sides]. Zero Values always roll 1.
type FixedSource struct {
	Values []int
	next   int
}

// Fixed returns a FixedSource replaying values.
func Fixed(values ...int) *FixedSource {
	return &FixedSource{Values: values}
}

func (s *FixedSource) Roll(sides int) int {
	if len(s.Values) == 0 {
		return 1
	}
	v := s.Values[s.next%len(s.Values)]
	s.next++
	return min(max(v, 1), sides)
}
