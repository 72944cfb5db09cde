package events

import "sync"

// Bus is an append-only event log. Readers get copies.
type Bus struct {
	mu     sync.RWMutex
	events []Event
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Publish appends a batch.
func (b *Bus) Publish(batch ...Event) {
	if len(batch) == 0 {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, batch...)
	b.mu.Unlock()
}

// Events returns a copy of everything published.
func (b *Bus) Events() []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Since returns a copy of the events published after the first offset ones.
func (b *Bus) Since(offset int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if offset < 0 {
		offset = 0
	}
	if offset >= len(b.events) {
		return nil
	}
	out := make([]Event, len(b.events)-offset)
	copy(out, b.events[offset:])
	return out
}

// Len returns the number of events published.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}

// Reset empties the bus.
func (b *Bus) Reset() {
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}
