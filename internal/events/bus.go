// Package events fans engine notifications out to any number of listeners.
package events

import (
	"sync"
)

// Channel names
const (
	PingResult  = "ping-result"
	StatsUpdate = "stats-update"
	StateChange = "state-change"
)

const subscriberBuffer = 100

// Event is one notification on a named channel
type Event struct {
	Channel string `json:"channel"`
	Payload any    `json:"payload"`
}

// Sink receives engine notifications. Emit must not block.
type Sink interface {
	Emit(channel string, payload any)
}

// Bus is a Sink that broadcasts to subscribers, dropping events for slow ones
type Bus struct {
	subscribers map[chan Event]struct{}
	closed      bool
	mu          sync.RWMutex
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Emit sends an event to every subscriber without blocking
func (b *Bus) Emit(channel string, payload any) {
	ev := Event{Channel: channel, Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			// Subscriber is behind, drop
		}
	}
}

// Subscribe returns a channel receiving all future events.
// The channel is closed by Unsubscribe or Close.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes a subscriber channel
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subscribers {
		if sub == ch {
			close(sub)
			delete(b.subscribers, sub)
			return
		}
	}
}

// Close closes every subscriber channel; later Emits are dropped
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, ch)
	}
	b.closed = true
}

// Discard is a Sink that ignores every event
type Discard struct{}

func (Discard) Emit(string, any) {}
