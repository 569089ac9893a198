package pacing

import (
	"math/rand"
	"sync"
	"time"
)

// Jitter draws random whole-second durations.
type Jitter interface {
	// Seconds returns a uniformly distributed value in [min, max] (inclusive).
	Seconds(min, max int) int
}

// RandJitter is a Jitter backed by math/rand. Safe for concurrent use.
type RandJitter struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandJitter seeds a jitter source. Use a fixed seed in tests.
func NewRandJitter(seed int64) *RandJitter {
	return &RandJitter{rng: rand.New(rand.NewSource(seed))}
}

// NewTimeJitter seeds from the wall clock.
func NewTimeJitter() *RandJitter { return NewRandJitter(time.Now().UnixNano()) }

func (j *RandJitter) Seconds(min, max int) int {
	if max <= min {
		return min
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return min + j.rng.Intn(max-min+1)
}
