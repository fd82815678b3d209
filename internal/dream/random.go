package dream

import (
	"math/rand/v2"
	"sync"
)

// RandomSource supplies the bounded jitter used by the stress and mystic
// axes.
type RandomSource interface {
	// NextInRange returns an integer in [lo, hi].
	NextInRange(lo, hi int) int
}

type processSource struct{}

// NewRandomSource returns a source backed by the process-wide generator.
func NewRandomSource() RandomSource { return processSource{} }

func (processSource) NextInRange(lo, hi int) int {
	lo, hi = ordered(lo, hi)
	return lo + rand.IntN(hi-lo+1)
}

// SeededSource is a deterministic source. It is safe for concurrent use.
type SeededSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewSeededSource(seed uint64) *SeededSource {
	s := &SeededSource{}
	s.Seed(seed)
	return s
}

// Seed restarts the sequence.
func (s *SeededSource) Seed(seed uint64) {
	s.mu.Lock()
	s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	s.mu.Unlock()
}

func (s *SeededSource) NextInRange(lo, hi int) int {
	lo, hi = ordered(lo, hi)
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + s.rng.IntN(hi-lo+1)
}

func ordered(lo, hi int) (int, int) {
	if lo > hi {
		return hi, lo
	}
	return lo, hi
}
