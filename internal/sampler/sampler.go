package sampler

import (
	"math"
	"math/rand"

	"proctorhub/internal/config"
)

// Sampler decides which subset of active sessions is observed at any moment
//
// Policy note: every selection is a fresh uniform permutation with no
// stickiness across rotations. A student observed in one window may or may
// not be observed in the next. This is deliberate, predictable observation
// windows would be trivial to evade.
type Sampler struct {
	sampleRate  float64
	minObserved int
	maxObserved int
	rng         *rand.Rand
}

// New creates a sampler from the injected policy and random source.
// TECHNICAL DISCOVERY: The rand source is injected so tests can assert exact
// observed-set membership for a fixed seed; it is owned by the coordinator
// loop and must not be shared across goroutines.
func New(cfg config.ProctoringConfig, rng *rand.Rand) *Sampler {
	return &Sampler{
		sampleRate:  cfg.SampleRate,
		minObserved: cfg.MinObserved,
		maxObserved: cfg.MaxObserved,
		rng:         rng,
	}
}

// ObservedCount returns how many of total sessions should be observed:
// ceil(total * sampleRate) clamped to [minObserved, maxObserved], and never
// more than total (cannot observe sessions that do not exist).
func (s *Sampler) ObservedCount(total int) int {
	if total <= 0 {
		return 0
	}

	count := int(math.Ceil(float64(total) * s.sampleRate))
	if count < s.minObserved {
		count = s.minObserved
	}
	if count > s.maxObserved {
		count = s.maxObserved
	}
	if count > total {
		count = total
	}

	return count
}

// Select shuffles the session keys uniformly and returns the observed subset.
// The input slice is not modified.
func (s *Sampler) Select(studentIDs []string) []string {
	if len(studentIDs) == 0 {
		return nil
	}

	shuffled := make([]string, len(studentIDs))
	copy(shuffled, studentIDs)
	s.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	return shuffled[:s.ObservedCount(len(shuffled))]
}
