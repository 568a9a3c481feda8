package sample

import "sync"

// MinCapacity is the smallest window the ring accepts. Anything lower would
// make live consumption pointless, so smaller requests are clamped up.
const MinCapacity = 10

// Ring is a bounded, oldest-evicting window of samples. It is the hand-off
// point between the acquisition loop (single writer) and live consumers
// (any number of readers); the full session history is kept elsewhere.
type Ring struct {
	mu   sync.RWMutex
	buf  []Sample
	head int
	size int
}

// NewRing returns an empty ring holding at most capacity samples.
func NewRing(capacity int) *Ring {
	if capacity < MinCapacity {
		capacity = MinCapacity
	}

	return &Ring{
		buf: make([]Sample, capacity),
	}
}

// Push appends s, evicting the oldest sample when the ring is full. O(1).
func (r *Ring) Push(s Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == len(r.buf) {
		r.buf[r.head] = s
		r.head = (r.head + 1) % len(r.buf)
		return
	}

	r.buf[(r.head+r.size)%len(r.buf)] = s
	r.size++
}

// Snapshot returns the buffered samples oldest-first as a fresh slice, so
// readers never observe a torn write.
func (r *Ring) Snapshot() []Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Sample, r.size)
	for i := range out {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}

	return out
}

// Resize changes the capacity going forward. Shrinking keeps the newest
// samples and discards from the oldest end; requests below MinCapacity are
// clamped up.
func (r *Ring) Resize(capacity int) {
	if capacity < MinCapacity {
		capacity = MinCapacity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if capacity == len(r.buf) {
		return
	}

	keep := r.size
	if keep > capacity {
		keep = capacity
	}

	buf := make([]Sample, capacity)
	for i := 0; i < keep; i++ {
		buf[i] = r.buf[(r.head+r.size-keep+i)%len(r.buf)]
	}

	r.buf = buf
	r.head = 0
	r.size = keep
}

// Len returns the number of buffered samples.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.size
}

// Cap returns the current capacity.
func (r *Ring) Cap() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.buf)
}
