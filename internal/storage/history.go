package storage

import (
	"sync"

	"github.com/wellsgz/pingmon/internal/probe"
)

const defaultHistorySize = 100

// History keeps the most recent probe outcomes in a fixed-size ring buffer
type History struct {
	samples  []probe.Outcome
	head     int // Next write position
	count    int // Number of valid samples
	capacity int // Applied on the next Push
	mu       sync.RWMutex
}

// NewHistory creates a ring buffer holding up to capacity outcomes
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = defaultHistorySize
	}
	return &History{
		samples:  make([]probe.Outcome, capacity),
		capacity: capacity,
	}
}

// Push appends an outcome, evicting the oldest when the buffer is full
func (h *History) Push(o probe.Outcome) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.capacity != len(h.samples) {
		h.resize()
	}

	h.samples[h.head] = o
	h.head = (h.head + 1) % len(h.samples)
	if h.count < len(h.samples) {
		h.count++
	}
}

// resize reallocates the buffer to the pending capacity, keeping the newest entries.
// Must be called with h.mu held.
func (h *History) resize() {
	keep := h.count
	if keep > h.capacity {
		keep = h.capacity
	}

	samples := make([]probe.Outcome, h.capacity)
	start := h.head - keep
	if start < 0 {
		start += len(h.samples)
	}
	for i := 0; i < keep; i++ {
		samples[i] = h.samples[(start+i)%len(h.samples)]
	}

	h.samples = samples
	h.count = keep
	h.head = keep % h.capacity
}

// Recent returns up to count outcomes, newest first.
// A count <= 0 returns everything.
func (h *History) Recent(count int) []probe.Outcome {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if count <= 0 || count > h.count {
		count = h.count
	}

	result := make([]probe.Outcome, count)
	for i := 0; i < count; i++ {
		idx := h.head - 1 - i
		if idx < 0 {
			idx += len(h.samples)
		}
		result[i] = h.samples[idx]
	}
	return result
}

// Clear drops every stored outcome
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.samples {
		h.samples[i] = probe.Outcome{}
	}
	h.head = 0
	h.count = 0
}

// Len returns the number of stored outcomes
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Capacity returns the configured capacity, including a pending change
func (h *History) Capacity() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.capacity
}

// SetCapacity changes the maximum size. The buffer is resized on the next Push.
func (h *History) SetCapacity(capacity int) {
	if capacity <= 0 {
		return
	}
	h.mu.Lock()
	h.capacity = capacity
	h.mu.Unlock()
}
