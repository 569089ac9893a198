// Package eventbus is an in-process fanout for bot lifecycle signals.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the bot.
const (
	TypeCycleOutcome = "cycle.outcome" // Data: domain.Outcome
	TypeDelayChosen  = "pacing.delay"  // Data: pacing.Delay
	TypeStopping     = "bot.stopping"  // Data: string reason
)

// Event is a small in-memory signal.
//
// Publish never blocks: subscribers get buffered channels and a slow
// subscriber loses events instead of stalling the run loop.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// MemBus is the default Bus. It owns no goroutines.
type MemBus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func New() *MemBus {
	return &MemBus{subs: map[uint64]chan Event{}}
}

// Dropped reports how many deliveries were discarded because a
// subscriber's buffer was full.
func (b *MemBus) Dropped() uint64 { return b.dropped.Load() }

func (b *MemBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *MemBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			// Holding the write lock excludes in-flight Publish calls, so
			// closing here cannot race a send.
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}
