// Package spscring implements the bounded single-producer/single-consumer
// ring used as the lock-free handoff between pipeline stages (ticks between
// producer and strategy worker, orders between strategy worker and
// execution worker).
//
// Push and pop never block. Push returns ErrFull when the ring is at
// capacity instead of waiting for space; pop returns ErrEmpty when there is
// nothing ready instead of waiting for a producer. This mirrors the
// select-default-over-a-buffered-channel shape used across this codebase,
// generalized to any value type with the observational size/empty calls a
// ring buffer carries.
package spscring

import (
	"errors"
	"sync/atomic"
)

// ErrFull is returned by Push when the ring is at capacity. The producer
// must treat this as a dropped item, not retry; see the package doc.
var ErrFull = errors.New("spscring: full")

// ErrEmpty is returned by Pop when there is nothing to consume.
var ErrEmpty = errors.New("spscring: empty")

// Ring is a fixed-capacity SPSC ring buffer. The zero value is not usable;
// construct with New. A Ring must have exactly one producer goroutine
// calling Push and exactly one consumer goroutine calling Pop — concurrent
// callers on the same side are not safe.
type Ring[T any] struct {
	capacity int64
	ch       chan T

	// pushed/popped/drops count accepted pushes, successful pops and
	// rejected pushes; they back Pushed/Popped/Dropped. Size/Empty read
	// len(ch) directly. The Go channel itself enforces the capacity bound
	// and the publish/ready ordering a hand-rolled ring would need (channel
	// send is the "ready flag").
	pushed atomic.Int64
	popped atomic.Int64
	drops  atomic.Int64
}

// New constructs a ring with the given fixed capacity. Capacity must be a
// positive number of elements; it need not be a power of two.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{
		capacity: int64(capacity),
		ch:       make(chan T, capacity),
	}
}

// Push writes item into the ring without blocking. It returns ErrFull when
// the ring is already at capacity; the caller (producer) must increment its
// own drop accounting and move on; overload sheds the tail of the stream,
// never blocks upstream. A rejected push never mutates the ring.
func (r *Ring[T]) Push(item T) error {
	select {
	case r.ch <- item:
		r.pushed.Add(1)
		return nil
	default:
		r.drops.Add(1)
		return ErrFull
	}
}

// Pop removes and returns the oldest item in the ring without blocking. It
// returns ErrEmpty when nothing is ready.
func (r *Ring[T]) Pop() (T, error) {
	select {
	case item := <-r.ch:
		r.popped.Add(1)
		return item, nil
	default:
		var zero T
		return zero, ErrEmpty
	}
}

// PopBatch drains up to len(dst) ready items into dst without blocking and
// returns the number popped. This backs the engine's batch-size worker
// loops without requiring a lock around repeated Pop calls.
func (r *Ring[T]) PopBatch(dst []T) int {
	n := 0
	for n < len(dst) {
		item, err := r.Pop()
		if err != nil {
			break
		}
		dst[n] = item
		n++
	}
	return n
}

// Size returns the current number of ready items. Observational only — it
// may race with concurrent Push/Pop and is never used to gate
// correctness, only diagnostics.
func (r *Ring[T]) Size() int {
	return len(r.ch)
}

// Capacity returns the fixed capacity the ring was constructed with.
func (r *Ring[T]) Capacity() int {
	return int(r.capacity)
}

// Empty reports whether the ring currently has no ready items.
func (r *Ring[T]) Empty() bool {
	return r.Size() == 0
}

// Full reports whether the ring is at capacity.
func (r *Ring[T]) Full() bool {
	return r.Size() >= int(r.capacity)
}

// Dropped returns the number of Push calls rejected due to a full ring
// since construction. The engine surfaces this as its drop counter.
func (r *Ring[T]) Dropped() int64 {
	return r.drops.Load()
}

// Pushed returns the total number of items accepted by Push.
func (r *Ring[T]) Pushed() int64 {
	return r.pushed.Load()
}

// Popped returns the total number of items removed by Pop.
func (r *Ring[T]) Popped() int64 {
	return r.popped.Load()
}
