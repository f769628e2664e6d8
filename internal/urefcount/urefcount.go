// Package urefcount provides the atomic reference counter shared by ubuf,
// uref, and pipe/manager lifetimes.
package urefcount

import "sync/atomic"

// RefCount is an atomic reference counter. The zero value is not usable;
// construct with New.
type RefCount struct {
	n atomic.Int32
}

// New returns a RefCount initialized to the given count (normally 1).
func New(initial int32) *RefCount {
	r := &RefCount{}
	r.n.Store(initial)
	return r
}

// Use increments the count. Callers must already hold a reference.
func (r *RefCount) Use() {
	r.n.Add(1)
}

// Release decrements the count and reports whether this was the last
// reference. Once Release returns true, the guarded object must not be
// accessed again by the releasing goroutine (spec §4.2).
func (r *RefCount) Release() (last bool) {
	return r.n.Add(-1) == 0
}

// Single reports whether exactly one reference is outstanding. Buffer
// managers use this to gate write access (copy-on-write, spec §4.3).
func (r *RefCount) Single() bool {
	return r.n.Load() == 1
}

// Count returns the current reference count, mainly for tests and debug
// assertions.
func (r *RefCount) Count() int32 {
	return r.n.Load()
}

// Reset sets the count back to 1 without synchronization. Valid only when
// the object is provably quiescent — e.g. immediately after popping a
// fresh handle from a pool, before any reference has escaped to another
// goroutine (spec §4.2).
func (r *RefCount) Reset() {
	r.n.Store(1)
}
