// Package avdeal serializes access to a single non-reentrant external
// library behind one process-wide token (spec §4.8). There is no teacher
// analogue — the teacher's queue.Runner owns its io_uring instance
// exclusively, with nothing else in the process competing for it — so this
// is written fresh, directly off spec §4.8/§9: a single atomic.Bool token,
// no timeout or backoff (spec §9 Open Questions: left unresolved,
// matching the original source).
package avdeal

import (
	"sync/atomic"

	"github.com/upipe/upipe-go/internal/upump"
)

// Deal is the single-slot token. The zero value is ready to use.
type Deal struct {
	taken atomic.Bool
}

// Grab attempts to take the token, reporting success. A caller that fails
// must arrange to retry later (typically via an idler watcher) rather than
// block — there is no queueing and no fairness guarantee.
func (d *Deal) Grab() bool {
	return d.taken.CompareAndSwap(false, true)
}

// Yield releases the token. next, if non-nil, is stopped after the token
// is released so a waiting idler doesn't spin observing its own release
// as a spurious opportunity to grab before other waiters get a chance to
// poll.
func (d *Deal) Yield(next upump.Watcher) {
	d.taken.Store(false)
	if next != nil {
		_ = next.Stop()
	}
}

// Abort releases the token without having done any work, e.g. when a
// split source's probe fails while holding the deal, and stops the
// idler watcher that was polling Grab on its behalf.
func (d *Deal) Abort(w upump.Watcher) {
	d.taken.Store(false)
	if w != nil {
		_ = w.Stop()
		w.Free()
	}
}
