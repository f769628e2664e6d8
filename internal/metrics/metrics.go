// Package metrics defines the observer interface internal packages report
// through, kept separate from the root package's concrete Metrics type to
// avoid a circular import (the root package re-exports internal/upipe,
// internal/uref, etc., so those packages cannot import it back).
//
// Grounded on the teacher's internal/interfaces.Observer, which exists for
// exactly this reason ("separate from the public interfaces to avoid
// circular imports between the main package and internal packages").
package metrics

// Observer collects operational counters from the pipe runtime. Methods
// must be safe to call concurrently: ObserveInput/ObserveControl run on
// whatever event-loop goroutine is dispatching the pipe.
type Observer interface {
	ObserveAlloc(bytes uint64, latencyNs uint64, success bool)
	ObserveInput(bytes uint64, latencyNs uint64, success bool)
	ObserveControl(latencyNs uint64, success bool)
	ObserveQueueDepth(depth uint32)
}

// NoOpObserver discards every observation; it's the default so pipes never
// need a nil check before reporting.
type NoOpObserver struct{}

func (NoOpObserver) ObserveAlloc(uint64, uint64, bool) {}
func (NoOpObserver) ObserveInput(uint64, uint64, bool) {}
func (NoOpObserver) ObserveControl(uint64, bool)       {}
func (NoOpObserver) ObserveQueueDepth(uint32)          {}

var _ Observer = NoOpObserver{}
