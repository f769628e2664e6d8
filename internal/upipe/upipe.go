// Package upipe implements the pipe runtime: polymorphic processing nodes
// dispatched through manager vtables (spec §4.6, §9 "polymorphism without
// inheritance" — manual vtables become Go interfaces here), a probe chain
// for upstream event delivery, split outputs for demultiplexing sources,
// and the cross-thread transfer pipe (package upipe/xfer).
//
// Grounded on the teacher's internal/ctrl.Controller (typed control verbs
// dispatched against a signature-checked backend) and
// internal/queue.Runner's state machine (processRequests/handleCompletion
// as an explicit enum-driven loop, the same shape split.go's state machine
// takes).
package upipe

import (
	"time"

	"github.com/upipe/upipe-go/internal/logging"
	"github.com/upipe/upipe-go/internal/metrics"
	"github.com/upipe/upipe-go/internal/uref"
	"github.com/upipe/upipe-go/internal/upump"
	"github.com/upipe/upipe-go/internal/urefcount"
)

// ControlOp is a control-channel opcode (spec §4.6, §6). Core opcodes are
// small integers; manager-private opcodes must start at 0x8000 and are
// only meaningful when guarded by the issuing manager's Signature().
type ControlOp int

const (
	OpGetOutput ControlOp = iota
	OpSetOutput
	OpGetURefMgr
	OpSetURefMgr
	OpGetUbufMgr
	OpSetUbufMgr
	OpGetUpumpMgr
	OpSetUpumpMgr
	OpGetUclock
	OpSetUclock
	OpGetFlowDef
	OpSetFlowDef
)

// PrivateOpBase is the first opcode value a manager may use for its own
// control verbs (spec §4.6: "manager-specific opcodes are guarded by a
// 32-bit signature").
const PrivateOpBase ControlOp = 0x8000

// Event is an upstream notification thrown through a pipe's probe chain
// (spec §6).
type Event int

const (
	EventReady Event = iota
	EventDead
	EventAllocError
	EventUpumpError
	EventReadEnd
	EventNeedURefMgr
	EventNeedUpumpMgr
	EventNeedUbufMgr
	EventSourceEnd
	EventSplitAddFlow
	EventSplitDelFlow
)

func (e Event) String() string {
	switch e {
	case EventReady:
		return "READY"
	case EventDead:
		return "DEAD"
	case EventAllocError:
		return "ALLOC_ERROR"
	case EventUpumpError:
		return "UPUMP_ERROR"
	case EventReadEnd:
		return "READ_END"
	case EventNeedURefMgr:
		return "NEED_UREF_MGR"
	case EventNeedUpumpMgr:
		return "NEED_UPUMP_MGR"
	case EventNeedUbufMgr:
		return "NEED_UBUF_MGR"
	case EventSourceEnd:
		return "SOURCE_END"
	case EventSplitAddFlow:
		return "SPLIT_ADD_FLOW"
	case EventSplitDelFlow:
		return "SPLIT_DEL_FLOW"
	default:
		return "EVENT(?)"
	}
}

// Outcome is a probe's verdict on an event it was offered.
type Outcome int

const (
	Handled Outcome = iota
	Forward
)

// Pipe is the contract every pipe type implements (spec §4.6).
type Pipe interface {
	Input(r *uref.Ref, hint upump.Mgr)
	Control(op ControlOp, args ...any) (bool, error)
	Use()
	Release()
}

// Manager is the contract every pipe manager implements.
type Manager interface {
	Signature() uint32
	MgrUse()
	MgrRelease()
}

// Sig builds a FOURCC-style 32-bit manager signature, the Go equivalent of
// the source's packed 4-character tags (spec §6).
func Sig(a, b, c, d byte) uint32 {
	return uint32(a)<<24 | uint32(b)<<16 | uint32(c)<<8 | uint32(d)
}

// Probe reacts to events thrown by a pipe, returning Handled to stop
// propagation or Forward to let the parent probe see it too (spec §4.6,
// §9: "Chain probes via an explicit parent link"). Probes are immutable
// once attached.
type Probe interface {
	OnEvent(p Pipe, ev Event, args ...any) Outcome
}

// Throw offers ev to probe and walks up its Parent chain (if probe is a
// *ChainProbe) until one link returns Handled or the chain is exhausted.
// Pipes call Throw instead of walking the chain themselves.
func Throw(probe Probe, p Pipe, ev Event, args ...any) {
	for probe != nil {
		if probe.OnEvent(p, ev, args...) == Handled {
			return
		}
		cp, ok := probe.(*ChainProbe)
		if !ok {
			return
		}
		probe = cp.Parent
	}
}

// ChainProbe is a Probe with an explicit upward link, the concrete shape
// spec §9 asks for ("Chain probes via an explicit parent link").
type ChainProbe struct {
	Parent  Probe
	Handler func(p Pipe, ev Event, args ...any) Outcome
}

func (c *ChainProbe) OnEvent(p Pipe, ev Event, args ...any) Outcome {
	if c.Handler != nil {
		return c.Handler(p, ev, args...)
	}
	return Forward
}

// RootProbe is the default probe at the root of every chain: it never
// forwards (there is nothing above it) and logs every event it sees to
// internal/logging, exactly as spec §7 mandates ("the default probe at
// the root logs to standard error").
type RootProbe struct {
	Logger *logging.Logger
}

// NewRootProbe returns a RootProbe logging through logger, or the package
// default logger if logger is nil.
func NewRootProbe(logger *logging.Logger) *RootProbe {
	if logger == nil {
		logger = logging.Default()
	}
	return &RootProbe{Logger: logger}
}

func (r *RootProbe) OnEvent(p Pipe, ev Event, args ...any) Outcome {
	if ev == EventAllocError || ev == EventUpumpError {
		r.Logger.Error("pipe event", "event", ev.String(), "args", args)
	} else {
		r.Logger.Info("pipe event", "event", ev.String(), "args", args)
	}
	return Handled
}

// BasePipe is embeddable scaffolding every concrete pipe type builds on:
// refcounted lifetime, probe chain head, and the common uref/upump/ubuf
// manager slots every pipe's control opcodes expose (spec §4.6 core
// opcodes).
type BasePipe struct {
	rc    *urefcount.RefCount
	probe Probe

	output  Pipe
	flowDef string

	urefMgr  *uref.Manager
	upumpMgr upump.Mgr
	ubufMgr  any
	uclock   any

	observer metrics.Observer
}

// NewBasePipe returns scaffolding with refcount 1, the given probe chain
// head, and a no-op metrics observer (call SetObserver to report through
// one instead).
func NewBasePipe(probe Probe) BasePipe {
	return BasePipe{rc: urefcount.New(1), probe: probe, observer: metrics.NoOpObserver{}}
}

// SetObserver installs the metrics observer this pipe reports Input/Control
// activity through.
func (b *BasePipe) SetObserver(o metrics.Observer) {
	if o == nil {
		o = metrics.NoOpObserver{}
	}
	b.observer = o
}

// Observer returns the currently installed metrics observer, never nil.
func (b *BasePipe) Observer() metrics.Observer { return b.observer }

// ObserveInput records an Input call's byte count, latency and outcome
// through the installed observer (spec §9, DESIGN.md: pipes report through
// this rather than reimplementing timing at every call site).
func (b *BasePipe) ObserveInput(bytes uint64, latencyNs uint64, success bool) {
	b.observer.ObserveInput(bytes, latencyNs, success)
}

// ObserveControl records a Control call's latency and outcome.
func (b *BasePipe) ObserveControl(latencyNs uint64, success bool) {
	b.observer.ObserveControl(latencyNs, success)
}

// TimeControl runs fn, recording its latency and (ok && err==nil) as
// success through the installed observer. Concrete pipes wrap their
// Control body in this instead of timing it by hand.
func (b *BasePipe) TimeControl(fn func() (bool, error)) (bool, error) {
	start := time.Now()
	ok, err := fn()
	b.ObserveControl(uint64(time.Since(start).Nanoseconds()), ok && err == nil)
	return ok, err
}

// Probe returns this pipe's probe chain head, for callers (like SplitMgr)
// that need to throw events through it on the pipe's behalf.
func (b *BasePipe) Probe() Probe { return b.probe }

// Output returns the pipe currently wired as this pipe's output.
func (b *BasePipe) Output() Pipe { return b.output }

// UbufMgr returns the buffer manager last stored via OpSetUbufMgr, or nil
// if none has been supplied yet. Pipes that need to ask upstream for one
// (EventNeedUbufMgr) check this before throwing.
func (b *BasePipe) UbufMgr() any { return b.ubufMgr }

func (b *BasePipe) Use() { b.rc.Use() }

// Release is the zero-teardown default: concrete pipe types that hold
// sub-resources (buffer/uref managers, a sharded store, ...) must
// override Release to call ReleaseSelf instead of relying on this.
func (b *BasePipe) Release() {}

// ReleaseSelf drops one reference and, if it was the last one, tears the
// pipe down: EventDead is thrown through the probe chain before free
// runs (spec decision: probe delivery always precedes resource release,
// never the reverse, so a probe can still inspect a dying pipe). free may
// be nil for a pipe with nothing to release beyond its own refcount.
func (b *BasePipe) ReleaseSelf(self Pipe, free func()) {
	if !b.rc.Release() {
		return
	}
	b.Throw(self, EventDead)
	if free != nil {
		free()
	}
}

// Throw offers ev to this pipe's probe chain. self must be the concrete
// pipe embedding this BasePipe, since probes receive the Pipe, not the
// BasePipe.
func (b *BasePipe) Throw(self Pipe, ev Event, args ...any) {
	Throw(b.probe, self, ev, args...)
}

// HandleCoreControl implements the core GET/SET opcodes shared by every
// pipe type (OUTPUT, FLOW_DEF, UREF_MGR, UPUMP_MGR, UBUF_MGR, UCLOCK). Its
// third result reports whether op was one of them; concrete pipes call
// this first and fall through to their own opcodes when it is false.
func (b *BasePipe) HandleCoreControl(op ControlOp, args ...any) (bool, error, bool) {
	switch op {
	case OpGetOutput:
		if len(args) != 1 {
			return false, ErrBadArg, true
		}
		if out, ok := args[0].(*Pipe); ok {
			*out = b.output
			return true, nil, true
		}
		return false, ErrBadArg, true
	case OpSetOutput:
		if len(args) != 1 {
			return false, ErrBadArg, true
		}
		out, _ := args[0].(Pipe)
		b.output = out
		return true, nil, true
	case OpGetFlowDef:
		if len(args) != 1 {
			return false, ErrBadArg, true
		}
		if out, ok := args[0].(*string); ok {
			*out = b.flowDef
			return true, nil, true
		}
		return false, ErrBadArg, true
	case OpSetFlowDef:
		if len(args) != 1 {
			return false, ErrBadArg, true
		}
		fd, _ := args[0].(string)
		b.flowDef = fd
		return true, nil, true
	case OpGetURefMgr:
		if len(args) != 1 {
			return false, ErrBadArg, true
		}
		if out, ok := args[0].(**uref.Manager); ok {
			*out = b.urefMgr
			return true, nil, true
		}
		return false, ErrBadArg, true
	case OpSetURefMgr:
		if len(args) != 1 {
			return false, ErrBadArg, true
		}
		mgr, _ := args[0].(*uref.Manager)
		b.urefMgr = mgr
		return true, nil, true
	case OpGetUpumpMgr:
		if len(args) != 1 {
			return false, ErrBadArg, true
		}
		if out, ok := args[0].(*upump.Mgr); ok {
			*out = b.upumpMgr
			return true, nil, true
		}
		return false, ErrBadArg, true
	case OpSetUpumpMgr:
		if len(args) != 1 {
			return false, ErrBadArg, true
		}
		pump, _ := args[0].(upump.Mgr)
		b.upumpMgr = pump
		return true, nil, true
	case OpGetUbufMgr:
		if len(args) != 1 {
			return false, ErrBadArg, true
		}
		if out, ok := args[0].(*any); ok {
			*out = b.ubufMgr
			return true, nil, true
		}
		return false, ErrBadArg, true
	case OpSetUbufMgr:
		if len(args) != 1 {
			return false, ErrBadArg, true
		}
		b.ubufMgr = args[0]
		return true, nil, true
	case OpGetUclock:
		if len(args) != 1 {
			return false, ErrBadArg, true
		}
		if out, ok := args[0].(*any); ok {
			*out = b.uclock
			return true, nil, true
		}
		return false, ErrBadArg, true
	case OpSetUclock:
		if len(args) != 1 {
			return false, ErrBadArg, true
		}
		b.uclock = args[0]
		return true, nil, true
	default:
		return false, nil, false
	}
}
