package utils

import (
	"math/rand"
	"sync"
	"time"
)

// RandomSource produces the random identifiers and sequence
// start values a session needs. Tests inject a seeded source
// to get deterministic identifiers.
type RandomSource interface {
	Uint32() uint32
	Uint64() uint64
}

type lockedSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func (s *lockedSource) Uint32() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Uint32()
}

func (s *lockedSource) Uint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Uint64()
}

// NewRandomSource creates a goroutine safe source seeded with seed.
func NewRandomSource(seed int64) RandomSource {
	return &lockedSource{rnd: rand.New(rand.NewSource(seed))}
}

// DefaultRandomSource creates a source seeded from the wall clock.
func DefaultRandomSource() RandomSource {
	return NewRandomSource(time.Now().UnixNano())
}

func Uint16Random(src RandomSource) uint16 {
	return uint16(src.Uint32() & 0xffff)
}
