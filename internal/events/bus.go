// Package events carries the local auth-change bus. One coordinator
// instance per process subscribes; the storage layer publishes when a
// session-affecting event happens so every subscriber re-hydrates.
package events

import (
	"sync"
	"time"
)

// AuthChange is published whenever the session state of this client
// (or a sibling process) may have changed.
type AuthChange struct {
	ID     string    // ULID of the originating event
	At     time.Time // when the event was emitted
	Reason string    // "login", "logout", "refresh-failed", "tenant-mismatch", "external"
}

// Bus fans AuthChange events out to subscribers. Publishing never
// blocks; a subscriber that is not draining its channel misses events
// rather than stalling the publisher.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan AuthChange
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan AuthChange)}
}

// Publish delivers the event to every current subscriber.
func (b *Bus) Publish(ev AuthChange) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel func
// removes the subscription and closes the channel.
func (b *Bus) Subscribe() (<-chan AuthChange, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan AuthChange, 8)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}
