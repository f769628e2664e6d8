package upump

import (
	"context"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// watcherKind distinguishes the three watcher flavors a GoMgr schedules.
type watcherKind int

const (
	kindIdler watcherKind = iota
	kindFD
	kindTimer
)

type watcher struct {
	mgr    *GoMgr
	kind   watcherKind
	active bool
	freed  bool

	idlerCB func()

	fd     int
	mode   FDMode
	fdCB   func(FDMode)

	period  time.Duration
	next    time.Time
	timerCB func()
}

func (w *watcher) Start() error {
	w.mgr.mu.Lock()
	defer w.mgr.mu.Unlock()
	if w.freed {
		return nil
	}
	w.active = true
	if w.kind == kindTimer {
		w.next = w.mgr.now().Add(w.period)
	}
	return nil
}

func (w *watcher) Stop() error {
	w.mgr.mu.Lock()
	defer w.mgr.mu.Unlock()
	w.active = false
	return nil
}

func (w *watcher) Free() {
	w.mgr.mu.Lock()
	defer w.mgr.mu.Unlock()
	w.active = false
	w.freed = true
}

// GoMgr is the reference upump.Mgr: a single dispatch goroutine running
// Run drives every watcher registered against it. File-descriptor
// readiness is polled with unix.Poll once per loop iteration rather than
// spawning a goroutine per fd, preserving the single-dispatch-thread
// guarantee without needing a netpoller-backed abstraction underneath.
type GoMgr struct {
	mu          sync.Mutex
	watchers    []*watcher
	affinity    []int
	nowOverride func() time.Time

	idleTimeout time.Duration
}

// Option configures a GoMgr at construction time.
type Option func(*GoMgr)

// WithCPUAffinity pins the dispatch goroutine to the given OS CPU set, the
// same way the teacher's queue.Runner.ioLoop calls
// unix.SchedSetaffinity(0, &cpuSet) before entering its completion loop.
func WithCPUAffinity(cpus ...int) Option {
	return func(m *GoMgr) { m.affinity = cpus }
}

// NewGoMgr returns an idle event loop; call its Alloc* methods to register
// watchers, then Run to start dispatching.
func NewGoMgr(opts ...Option) *GoMgr {
	m := &GoMgr{idleTimeout: 200 * time.Millisecond}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *GoMgr) now() time.Time {
	if m.nowOverride != nil {
		return m.nowOverride()
	}
	return time.Now()
}

func (m *GoMgr) AllocIdler(cb func()) (Watcher, error) {
	w := &watcher{mgr: m, kind: kindIdler, idlerCB: cb}
	m.mu.Lock()
	m.watchers = append(m.watchers, w)
	m.mu.Unlock()
	return w, nil
}

func (m *GoMgr) AllocFD(fd int, mode FDMode, cb func(FDMode)) (Watcher, error) {
	w := &watcher{mgr: m, kind: kindFD, fd: fd, mode: mode, fdCB: cb}
	m.mu.Lock()
	m.watchers = append(m.watchers, w)
	m.mu.Unlock()
	return w, nil
}

func (m *GoMgr) AllocTimer(period time.Duration, cb func()) (Watcher, error) {
	w := &watcher{mgr: m, kind: kindTimer, period: period, timerCB: cb}
	m.mu.Lock()
	m.watchers = append(m.watchers, w)
	m.mu.Unlock()
	return w, nil
}

// Run pins the calling goroutine to its OS thread (spec §5 thread
// affinity) and dispatches watcher callbacks until ctx is done.
func (m *GoMgr) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if len(m.affinity) > 0 {
		var set unix.CPUSet
		set.Zero()
		for _, cpu := range m.affinity {
			set.Set(cpu)
		}
		_ = unix.SchedSetaffinity(0, &set)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ranIdler := m.runIdlers()
		pollFDs := m.activeFDs()
		timeout := m.nextTimeout(ranIdler)

		if len(pollFDs) > 0 {
			n, err := unix.Poll(pollFDs, timeout)
			if err != nil && err != unix.EINTR {
				return err
			}
			if n > 0 {
				m.dispatchFDs(pollFDs)
			}
		} else if timeout > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(timeout) * time.Millisecond):
			}
		}

		m.fireTimers()
	}
}

func (m *GoMgr) runIdlers() bool {
	m.mu.Lock()
	idlers := make([]*watcher, 0, len(m.watchers))
	for _, w := range m.watchers {
		if w.active && w.kind == kindIdler {
			idlers = append(idlers, w)
		}
	}
	m.mu.Unlock()

	for _, w := range idlers {
		w.idlerCB()
	}
	return len(idlers) > 0
}

func (m *GoMgr) activeFDs() []unix.PollFd {
	m.mu.Lock()
	defer m.mu.Unlock()
	var fds []unix.PollFd
	for _, w := range m.watchers {
		if !w.active || w.kind != kindFD {
			continue
		}
		var events int16
		if w.mode&FDRead != 0 {
			events |= unix.POLLIN
		}
		if w.mode&FDWrite != 0 {
			events |= unix.POLLOUT
		}
		fds = append(fds, unix.PollFd{Fd: int32(w.fd), Events: events})
	}
	return fds
}

func (m *GoMgr) dispatchFDs(polled []unix.PollFd) {
	m.mu.Lock()
	byFD := make(map[int32]*watcher, len(polled))
	for _, w := range m.watchers {
		if w.active && w.kind == kindFD {
			byFD[int32(w.fd)] = w
		}
	}
	m.mu.Unlock()

	for _, pfd := range polled {
		if pfd.Revents == 0 {
			continue
		}
		w, ok := byFD[pfd.Fd]
		if !ok {
			continue
		}
		var mode FDMode
		if pfd.Revents&unix.POLLIN != 0 {
			mode |= FDRead
		}
		if pfd.Revents&unix.POLLOUT != 0 {
			mode |= FDWrite
		}
		if mode != 0 {
			w.fdCB(mode)
		}
	}
}

// nextTimeout returns the poll/sleep budget in milliseconds: 0 if an
// idler just ran (keep the loop hot), otherwise the time until the
// nearest due timer, capped at idleTimeout so Run still notices ctx
// cancellation when nothing is scheduled.
func (m *GoMgr) nextTimeout(ranIdler bool) int {
	if ranIdler {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	best := m.idleTimeout
	found := false
	for _, w := range m.watchers {
		if !w.active || w.kind != kindTimer {
			continue
		}
		if d := w.next.Sub(now); !found || d < best {
			best = d
			found = true
		}
	}
	if best < 0 {
		best = 0
	}
	if best > m.idleTimeout {
		best = m.idleTimeout
	}
	return int(best.Milliseconds())
}

func (m *GoMgr) fireTimers() {
	now := m.now()
	m.mu.Lock()
	var due []*watcher
	for _, w := range m.watchers {
		if w.active && w.kind == kindTimer && !now.Before(w.next) {
			w.next = now.Add(w.period)
			due = append(due, w)
		}
	}
	m.mu.Unlock()

	for _, w := range due {
		w.timerCB()
	}
}

var _ Mgr = (*GoMgr)(nil)
