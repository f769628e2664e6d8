// Package upump provides the event-loop abstraction pipes schedule work
// on: idler, file-descriptor, and timer watchers dispatched by a single
// cooperative loop (spec §5 — "within one loop, pipes never run in
// parallel"). The reference implementation is grounded on the teacher's
// internal/queue.Runner.ioLoop: one goroutine, pinned to an OS thread via
// runtime.LockOSThread and optionally golang.org/x/sys/unix.SchedSetaffinity,
// drives every watcher callback.
package upump

import (
	"context"
	"time"
)

// FDMode selects which readiness condition a file-descriptor watcher
// reacts to.
type FDMode int

const (
	FDRead FDMode = 1 << iota
	FDWrite
)

// Watcher is a handle returned by one of Mgr's Alloc* methods. A freshly
// allocated watcher is inactive; Start arms it, Stop disarms it without
// releasing its resources, Free releases it permanently.
type Watcher interface {
	Start() error
	Stop() error
	Free()
}

// Mgr is an event loop. Implementations must guarantee that every watcher
// callback registered against the same Mgr runs on the same goroutine,
// never concurrently with another callback from that Mgr (spec §5).
type Mgr interface {
	AllocIdler(cb func()) (Watcher, error)
	AllocFD(fd int, mode FDMode, cb func(FDMode)) (Watcher, error)
	AllocTimer(period time.Duration, cb func()) (Watcher, error)
	Run(ctx context.Context) error
}
