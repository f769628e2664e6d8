// Package xfer implements the cross-thread transfer pipe (spec §4.7): a
// proxy that marshals control verbs, and the final release, onto the
// event loop that actually owns a pipe. Grounded on the teacher's
// internal/queue.Runner.ioLoop draining completions in a dedicated
// per-queue loop — here a single idler watcher drains the transfer FIFO
// on the destination thread instead of draining io_uring completions.
package xfer

import (
	"sync/atomic"

	"github.com/upipe/upipe-go/internal/metrics"
	"github.com/upipe/upipe-go/internal/ufifo"
	"github.com/upipe/upipe-go/internal/upipe"
	"github.com/upipe/upipe-go/internal/uref"
	"github.com/upipe/upipe-go/internal/upump"
)

// SigXfer is the transfer manager's FOURCC-style signature (spec §6:
// "transfer manager's signature is 'xfer'").
var SigXfer = upipe.Sig('x', 'f', 'e', 'r')

// CmdOp distinguishes the command kinds a transfer manager ships across
// threads.
type CmdOp int

const (
	CmdControl CmdOp = iota
	CmdRelease
	cmdStop // internal terminal marker injected by Detach
)

// Command is one marshaled verb: either a Control passthrough or the
// final Release of Target.
type Command struct {
	Op        CmdOp
	Target    upipe.Pipe
	ControlOp upipe.ControlOp
	Args      []any
}

type phase int32

const (
	phaseUnattached phase = iota
	phaseAttached
	phaseDetached
)

// Mgr owns the bounded MPSC command queue and, once attached, the watcher
// draining it on the destination thread (spec §4.7: "Unattached ->
// Attached -> Detached", each transition one-way).
type Mgr struct {
	fifo     *ufifo.Queue[Command]
	phase    atomic.Int32
	watcher  upump.Watcher
	depth    atomic.Int32
	observer metrics.Observer
}

// New returns an unattached transfer manager with a command queue of the
// given depth.
func New(depth int) *Mgr {
	return &Mgr{fifo: ufifo.New[Command](depth), observer: metrics.NoOpObserver{}}
}

// SetObserver installs the metrics observer queue-depth samples report
// through.
func (m *Mgr) SetObserver(o metrics.Observer) {
	if o == nil {
		o = metrics.NoOpObserver{}
	}
	m.observer = o
}

func (m *Mgr) Signature() uint32 { return SigXfer }
func (m *Mgr) MgrUse()           {}
func (m *Mgr) MgrRelease()       {}

// Attach installs a watcher on pumpMgr that drains the FIFO every time it
// is scheduled; the caller must invoke Attach from the thread that owns
// pumpMgr (spec §4.7: "attach(upump_mgr) must be called on T").
func (m *Mgr) Attach(pumpMgr upump.Mgr) error {
	if !m.phase.CompareAndSwap(int32(phaseUnattached), int32(phaseAttached)) {
		return upipe.ErrWrongState
	}
	w, err := pumpMgr.AllocIdler(m.drainOne)
	if err != nil {
		return err
	}
	m.watcher = w
	return w.Start()
}

// Detach is thread-safe: it poisons further submissions immediately and
// injects a terminal command so the watcher on T observes it, stops
// itself, and is freed. Reattach after Detach always fails.
func (m *Mgr) Detach() error {
	if !m.phase.CompareAndSwap(int32(phaseAttached), int32(phaseDetached)) {
		return upipe.ErrWrongState
	}
	m.fifo.Push(&Command{Op: cmdStop})
	return nil
}

func (m *Mgr) submit(c Command) error {
	if phase(m.phase.Load()) != phaseAttached {
		return upipe.ErrNotAttached
	}
	c.Target.Use() // bumped on enqueue; dropped once the command applies (spec §4.7 ordering)
	if !m.fifo.Push(&c) {
		c.Target.Release()
		return upipe.ErrBadArg
	}
	m.observer.ObserveQueueDepth(uint32(m.depth.Add(1)))
	return nil
}

// drainOne runs on the destination thread's dispatch goroutine (invoked
// as an idler callback): it applies every command currently queued, in
// FIFO order, stopping and freeing its own watcher if it observes the
// terminal command injected by Detach.
func (m *Mgr) drainOne() {
	for {
		c, ok := m.fifo.Pop()
		if !ok {
			return
		}
		if c.Op == cmdStop {
			if m.watcher != nil {
				m.watcher.Stop()
				m.watcher.Free()
			}
			return
		}
		switch c.Op {
		case CmdRelease:
			c.Target.Release() // the submitter's intended release
			c.Target.Release() // drop the enqueue-time bump
			m.observer.ObserveQueueDepth(uint32(m.depth.Add(-1)))
		case CmdControl:
			c.Target.Control(c.ControlOp, c.Args...)
			c.Target.Release() // drop the enqueue-time bump
			m.observer.ObserveQueueDepth(uint32(m.depth.Add(-1)))
		}
	}
}

// proxy is the local stand-in returned by Alloc: its Control/Release
// translate into enqueued commands targeting remote, which is never
// touched on the submitter's thread again (spec §4.7).
type proxy struct {
	mgr    *Mgr
	remote upipe.Pipe
	probe  upipe.Probe
}

func (p *proxy) Input(r *uref.Ref, hint upump.Mgr) {
	// Transfer carries control, not data (spec §5): a proxy has nothing
	// meaningful to do with an input record.
}

func (p *proxy) Control(op upipe.ControlOp, args ...any) (bool, error) {
	err := p.mgr.submit(Command{Op: CmdControl, Target: p.remote, ControlOp: op, Args: args})
	return err == nil, err
}

func (p *proxy) Use() {}

func (p *proxy) Release() {
	p.mgr.submit(Command{Op: CmdRelease, Target: p.remote})
}

// Alloc returns a local proxy Pipe for remote. probe is unused by the
// proxy itself (the proxy never throws events of its own) but is kept for
// API symmetry with every other pipe manager's alloc signature.
func (m *Mgr) Alloc(probe upipe.Probe, remote upipe.Pipe) (upipe.Pipe, error) {
	if phase(m.phase.Load()) == phaseDetached {
		return nil, upipe.ErrNotAttached
	}
	return &proxy{mgr: m, remote: remote, probe: probe}, nil
}

var _ upipe.Manager = (*Mgr)(nil)
var _ upipe.Pipe = (*proxy)(nil)
