// Package ufifo provides the bounded, multi-producer/single-consumer FIFO
// queue used by the transfer pipe's command queue (spec §4.1, §4.7).
//
// It wraps code.hybscloud.com/lfq's MPSC queue rather than hand-rolling a
// second lock-free structure: lfq already implements exactly the FAA-based
// MPSC algorithm the "Event Aggregation (MPSC)" pattern in its own
// documentation describes (multiple producers, single consumer, bounded
// capacity rounded to a power of two), which is precisely the shape spec
// §4.7 needs for a transfer manager's command queue.
package ufifo

import "code.hybscloud.com/lfq"

// Queue is a bounded MPSC FIFO of *T. Ordering is FIFO across all
// producers: spec §8's transfer-ordering law depends on this.
type Queue[T any] struct {
	q *lfq.MPSC[T]
}

// New returns a queue with capacity rounded up to the next power of two
// by lfq (minimum 2).
func New[T any](capacity int) *Queue[T] {
	return &Queue[T]{q: lfq.NewMPSC[T](capacity)}
}

// Push enqueues v, returning accepted=false if the queue is full (spec
// §4.1: "push rejects when full; the caller must then free the element
// itself").
func (q *Queue[T]) Push(v *T) (accepted bool) {
	err := q.q.Enqueue(v)
	return err == nil
}

// Pop dequeues the oldest element, if any.
func (q *Queue[T]) Pop() (v T, ok bool) {
	v, err := q.q.Dequeue()
	if err != nil {
		var zero T
		return zero, false
	}
	return v, true
}

// Drain marks the queue as no longer accepting new producers for the
// purposes of graceful shutdown, letting Pop drain remaining items without
// lfq's livelock-prevention threshold blocking it. The transfer manager's
// Detach does not call it.
func (q *Queue[T]) Drain() {
	if d, ok := any(q.q).(interface{ Drain() }); ok {
		d.Drain()
	}
}
