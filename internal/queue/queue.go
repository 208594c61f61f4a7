// Package queue provides the bounded FIFO buffer between producer-side
// signal intake and the batch scheduler.
package queue

import (
	"go.uber.org/atomic"
)

// Bounded is a fixed-capacity FIFO. Offer never blocks: when the queue is
// full the newest item is dropped and counted, keeping already-buffered
// telemetry intact. The channel is never closed, so producers racing a
// shutdown cannot panic; CloseIntake only flips a flag.
type Bounded[T any] struct {
	ch      chan T
	dropped *atomic.Int64
	closed  atomic.Bool
}

// New returns a queue of the given capacity. dropped counts rejected
// items; pass nil to keep a private counter.
func New[T any](capacity int, dropped *atomic.Int64) *Bounded[T] {
	if capacity < 1 {
		capacity = 1
	}
	if dropped == nil {
		dropped = atomic.NewInt64(0)
	}
	return &Bounded[T]{
		ch:      make(chan T, capacity),
		dropped: dropped,
	}
}

// Offer enqueues v, reporting whether it was accepted. Overflow and
// post-close offers drop v and bump the drop counter.
func (q *Bounded[T]) Offer(v T) bool {
	if q.closed.Load() {
		q.dropped.Inc()
		return false
	}
	select {
	case q.ch <- v:
		return true
	default:
		q.dropped.Inc()
		return false
	}
}

// Chan exposes the receive side for the consumer's select loop.
func (q *Bounded[T]) Chan() <-chan T { return q.ch }

// Len returns the number of buffered items.
func (q *Bounded[T]) Len() int { return len(q.ch) }

// Dropped returns how many items were rejected so far.
func (q *Bounded[T]) Dropped() int64 { return q.dropped.Load() }

// CloseIntake stops accepting new items. Buffered items remain readable.
func (q *Bounded[T]) CloseIntake() {
	q.closed.Store(true)
}

// Closed reports whether intake has been stopped.
func (q *Bounded[T]) Closed() bool { return q.closed.Load() }
