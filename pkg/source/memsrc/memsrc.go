// Package memsrc implements an example source pipe: a SplitMgr-driven
// reader over a sharded in-memory record log addressed by a mem://<name>
// URL, the "thin wrapper over an external library" adapter category
// SPEC_FULL.md §9 calls for.
//
// Grounded on the teacher's backend/mem.go sharded-RWMutex store (kept as
// pkg/memstore, shared with pkg/sink/memsink), repurposed from raw block
// I/O (ReadAt/WriteAt over a byte region) into a fixed-capacity log of
// length-framed records; and on internal/upipe.SplitMgr for the
// NEED_UREF_MGR -> NEED_UPUMP_MGR -> NEED_URL -> PROBING -> RUNNING
// lifecycle every split-style source drives, here with exactly one
// implicit stream since memsrc never demultiplexes.
package memsrc

import (
	"strings"
	"time"

	"github.com/upipe/upipe-go/internal/avdeal"
	"github.com/upipe/upipe-go/internal/ubuf"
	"github.com/upipe/upipe-go/internal/upipe"
	"github.com/upipe/upipe-go/internal/upump"
	"github.com/upipe/upipe-go/internal/uref"
	"github.com/upipe/upipe-go/pkg/memstore"
)

// Signature is memsrc's FOURCC-style manager signature.
var Signature = upipe.Sig('m', 's', 'r', 'c')

// Manager-private control opcodes (SPEC_FULL.md §8: GET/SET_URI
// supplemented as first-class opcodes on SplitMgr-based sources, since
// the NEED_URL state needs somewhere to carry the URL).
const (
	OpGetURI upipe.ControlOp = upipe.PrivateOpBase + iota
	OpSetURI
	// OpGetTime/OpSetTime mirror the original avformat source's
	// GET/SET_TIME opcodes, left unspecified by spec §9 Open Questions;
	// both always return ErrUnsupported here rather than guessing at
	// semantics.
	OpGetTime
	OpSetTime
)

// Src is a single-output source pipe reading length-framed records out
// of a Store named by a mem://<name> URL.
type Src struct {
	upipe.BasePipe
	split *upipe.SplitMgr

	registry *memstore.Registry
	flowDef  string
	url      string

	urefMgr *uref.Manager
	pumpMgr upump.Mgr

	store *memstore.Store
	pos   int

	emitWatcher upump.Watcher
}

// New returns a source in the INIT lifecycle state.
func New(probe upipe.Probe, registry *memstore.Registry, flowDef string) *Src {
	return &Src{
		BasePipe: upipe.NewBasePipe(probe),
		split:    upipe.NewSplitMgr(&avdeal.Deal{}),
		registry: registry,
		flowDef:  flowDef,
	}
}

func (s *Src) Signature() uint32 { return Signature }
func (s *Src) MgrUse()           {}
func (s *Src) MgrRelease()       {}

// Start moves INIT -> NEED_UREF_MGR, throwing EventNeedURefMgr through the
// probe chain so whatever wired this source up knows to call
// Control(OpSetURefMgr) or ProvideURefMgr directly.
func (s *Src) Start() error { return s.split.Start(s, s.BasePipe.Probe()) }

// State returns the source's current lifecycle stage.
func (s *Src) State() upipe.SplitState { return s.split.State() }

// ProvideURefMgr moves NEED_UREF_MGR -> NEED_UPUMP_MGR, throwing
// EventNeedUpumpMgr on entry.
func (s *Src) ProvideURefMgr(mgr *uref.Manager) error {
	if err := s.split.ProvideURefMgr(s, s.BasePipe.Probe(), mgr); err != nil {
		return err
	}
	s.urefMgr = mgr
	return nil
}

// ProvideUpumpMgr moves NEED_UPUMP_MGR -> NEED_URL.
func (s *Src) ProvideUpumpMgr(pump upump.Mgr) error {
	if err := s.split.ProvideUpumpMgr(pump); err != nil {
		return err
	}
	s.pumpMgr = pump
	return nil
}

// ProvideURL moves NEED_URL -> PROBING. Call ProbeURL afterward to resolve
// the URL and finish the transition into RUNNING.
func (s *Src) ProvideURL(url string) error {
	if err := s.split.ProvideURL(url); err != nil {
		return err
	}
	s.url = url
	return nil
}

// ProbeURL resolves the mem:// URL provided to ProvideURL against the
// registry. On success it registers the implicit single stream,
// transitions PROBING -> RUNNING, and starts the idler watcher that
// emits records to the pipe's output. On failure the source falls back
// to INIT via FailProbe and no watcher is installed.
func (s *Src) ProbeURL(self upipe.Pipe) error {
	return s.split.BeginProbe(s.pumpMgr, func() {
		name := strings.TrimPrefix(s.url, "mem://")
		store, ok := s.registry.Lookup(name)
		if !ok {
			s.split.FailProbe()
			return
		}
		s.store = store
		if err := s.split.FinishProbe(self, s.BasePipe.Probe(), map[uint64]upipe.Pipe{0: nil}); err != nil {
			s.split.FailProbe()
			return
		}
		s.startEmitting(self)
	})
}

func (s *Src) startEmitting(self upipe.Pipe) {
	w, err := s.pumpMgr.AllocIdler(func() { s.emitNext(self) })
	if err != nil {
		s.Throw(self, upipe.EventUpumpError, err)
		return
	}
	s.emitWatcher = w
	if err := w.Start(); err != nil {
		s.Throw(self, upipe.EventUpumpError, err)
	}
}

// emitNext delivers the next record, if any, to the output pipe;
// reaching the end of the store throws EventSourceEnd and stops the
// watcher (spec §4.6: sources announce their own exhaustion).
func (s *Src) emitNext(self upipe.Pipe) {
	start := time.Now()
	record, ok := s.store.Get(s.pos)
	if !ok {
		s.emitWatcher.Stop()
		s.Throw(self, upipe.EventSourceEnd)
		return
	}
	s.pos++

	r, err := s.urefMgr.Alloc(s.flowDef, len(record))
	if err != nil {
		s.Throw(self, upipe.EventAllocError, err)
		s.ObserveInput(0, uint64(time.Since(start).Nanoseconds()), false)
		return
	}
	if len(record) > 0 {
		blk := r.Buf.(*ubuf.BlockBuf)
		dst, err := s.urefMgr.Blocks().Write(blk, 0, len(record))
		if err != nil {
			s.Throw(self, upipe.EventAllocError, err)
			s.ObserveInput(0, uint64(time.Since(start).Nanoseconds()), false)
			return
		}
		copy(dst, record)
		s.urefMgr.Blocks().Unmap(blk, 0)
	}
	out := s.Output()
	if out != nil {
		out.Input(r, s.pumpMgr)
	}
	s.ObserveInput(uint64(len(record)), uint64(time.Since(start).Nanoseconds()), true)
}

// Input is unused: memsrc has no upstream (spec: a source's Input is
// never called by the runtime).
func (s *Src) Input(r *uref.Ref, hint upump.Mgr) {}

func (s *Src) Control(op upipe.ControlOp, args ...any) (bool, error) {
	return s.TimeControl(func() (bool, error) { return s.control(op, args...) })
}

func (s *Src) control(op upipe.ControlOp, args ...any) (bool, error) {
	// These core opcodes drive SplitMgr's state machine, so they're
	// intercepted here rather than left to HandleCoreControl's generic
	// storage — routing them through ProvideURefMgr/ProvideUpumpMgr keeps
	// BasePipe's notion of the manager and SplitMgr's in sync.
	switch op {
	case upipe.OpGetURefMgr:
		if len(args) != 1 {
			return false, upipe.ErrBadArg
		}
		out, ok := args[0].(**uref.Manager)
		if !ok {
			return false, upipe.ErrBadArg
		}
		*out = s.urefMgr
		return true, nil
	case upipe.OpSetURefMgr:
		if len(args) != 1 {
			return false, upipe.ErrBadArg
		}
		mgr, ok := args[0].(*uref.Manager)
		if !ok {
			return false, upipe.ErrBadArg
		}
		return true, s.ProvideURefMgr(mgr)
	case upipe.OpGetUpumpMgr:
		if len(args) != 1 {
			return false, upipe.ErrBadArg
		}
		out, ok := args[0].(*upump.Mgr)
		if !ok {
			return false, upipe.ErrBadArg
		}
		*out = s.pumpMgr
		return true, nil
	case upipe.OpSetUpumpMgr:
		if len(args) != 1 {
			return false, upipe.ErrBadArg
		}
		pump, ok := args[0].(upump.Mgr)
		if !ok {
			return false, upipe.ErrBadArg
		}
		return true, s.ProvideUpumpMgr(pump)
	}
	if ok, err, matched := s.HandleCoreControl(op, args...); matched {
		return ok, err
	}
	switch op {
	case OpGetURI:
		if len(args) != 1 {
			return false, upipe.ErrBadArg
		}
		out, ok := args[0].(*string)
		if !ok {
			return false, upipe.ErrBadArg
		}
		*out = s.url
		return true, nil
	case OpSetURI:
		if len(args) != 1 {
			return false, upipe.ErrBadArg
		}
		url, ok := args[0].(string)
		if !ok {
			return false, upipe.ErrBadArg
		}
		return true, s.ProvideURL(url)
	case OpGetTime, OpSetTime:
		return false, upipe.ErrUnsupported
	default:
		return false, upipe.ErrBadArg
	}
}

// Release tears the source down: stops the emit watcher (if any) and
// releases it through BasePipe's EventDead-before-free ordering.
func (s *Src) Release() {
	s.ReleaseSelf(s, func() {
		if s.emitWatcher != nil {
			s.emitWatcher.Stop()
			s.emitWatcher.Free()
		}
	})
}

var _ upipe.Pipe = (*Src)(nil)
var _ upipe.Manager = (*Src)(nil)
