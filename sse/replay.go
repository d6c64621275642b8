package sse

import "sync"

// DefaultReplaySize is the number of events a ReplayBuffer keeps when no
// capacity is given.
const DefaultReplaySize = 256

// ReplayBuffer keeps the most recent events that carry an id so that a
// reconnecting client can resume after its Last-Event-ID. It is a best
// effort in-memory ring and is safe for concurrent use.
type ReplayBuffer struct {
	mu   sync.RWMutex
	ring []Event
	head int
	size int
}

// NewReplayBuffer creates a buffer holding up to capacity events.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = DefaultReplaySize
	}
	return &ReplayBuffer{ring: make([]Event, capacity)}
}

// Append stores ev, evicting the oldest event when full. Events without an
// id cannot be resumed from and are ignored.
func (b *ReplayBuffer) Append(ev Event) {
	if ev.ID == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := (b.head + b.size) % len(b.ring)
	b.ring[idx] = ev
	if b.size < len(b.ring) {
		b.size++
		return
	}
	b.head = (b.head + 1) % len(b.ring)
}

// Since returns the events appended after the event with id lastID. When
// lastID is no longer (or never was) retained, it returns every retained
// event and false.
func (b *ReplayBuffer) Since(lastID string) ([]Event, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	found := -1
	for i := b.size - 1; i >= 0; i-- {
		if b.ring[(b.head+i)%len(b.ring)].ID == lastID {
			found = i
			break
		}
	}

	start := found + 1
	out := make([]Event, 0, b.size-start)
	for i := start; i < b.size; i++ {
		out = append(out, b.ring[(b.head+i)%len(b.ring)])
	}
	return out, found >= 0
}

// Len returns the number of retained events.
func (b *ReplayBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Cap returns the buffer capacity.
func (b *ReplayBuffer) Cap() int {
	return len(b.ring)
}
