package market

import "errors"

// ErrInvalidCapacity is returned when a ring is constructed with capacity < 1.
var ErrInvalidCapacity = errors.New("ring capacity must be >= 1")

// Ring is a fixed-capacity FIFO buffer. Once full, a push evicts the oldest
// element. It is the substrate for both estimators and is safe to construct
// and clear repeatedly without residual state.
type Ring[T any] struct {
	buf   []T
	head  int
	count int
}

// NewRing creates a ring with the given capacity.
func NewRing[T any](capacity int) (*Ring[T], error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	return &Ring[T]{buf: make([]T, capacity)}, nil
}

// Push appends v, overwriting the oldest element when the ring is full.
func (r *Ring[T]) Push(v T) {
	r.buf[(r.head+r.count)%len(r.buf)] = v
	if r.count < len(r.buf) {
		r.count++
	} else {
		r.head = (r.head + 1) % len(r.buf)
	}
}

// Values returns the buffered elements ordered oldest to newest.
func (r *Ring[T]) Values() []T {
	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Len returns the number of buffered elements.
func (r *Ring[T]) Len() int { return r.count }

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Full reports whether the next push will evict.
func (r *Ring[T]) Full() bool { return r.count == len(r.buf) }

// Clear drops all elements, keeping the backing array.
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head = 0
	r.count = 0
}
