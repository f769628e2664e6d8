// Public re-exports of the runtime's stable external interface (spec §6:
// "External Interfaces... these are stable"). internal/upipe,
// internal/uref, internal/ubuf, internal/udict and internal/upump hold the
// actual implementations; nothing outside this module can import an
// internal/ package directly, so anything meant to be part of the
// module's API surface needs a type alias or factory wrapper here.
//
// Grounded on the teacher's constants.go, which re-exports
// internal/constants the same way ("Re-export constants for public
// API").
package upipe

import (
	"github.com/upipe/upipe-go/internal/logging"
	"github.com/upipe/upipe-go/internal/ubuf"
	"github.com/upipe/upipe-go/internal/udict"
	"github.com/upipe/upipe-go/internal/umem"
	iupipe "github.com/upipe/upipe-go/internal/upipe"
	"github.com/upipe/upipe-go/internal/upipe/xfer"
	"github.com/upipe/upipe-go/internal/upump"
	"github.com/upipe/upipe-go/internal/uref"
)

// Pipe is the contract every pipe type implements (spec §4.6).
type Pipe = iupipe.Pipe

// Manager is the contract every pipe manager implements.
type Manager = iupipe.Manager

// Probe reacts to events thrown by a pipe (spec §4.6, §9).
type Probe = iupipe.Probe

// ChainProbe is a Probe with an explicit upward link.
type ChainProbe = iupipe.ChainProbe

// RootProbe is the default probe at the root of every chain.
type RootProbe = iupipe.RootProbe

// ControlOp is a control-channel opcode (spec §4.6, §6).
type ControlOp = iupipe.ControlOp

// Event is an upstream notification thrown through a pipe's probe chain
// (spec §6).
type Event = iupipe.Event

// Outcome is a probe's verdict on an event it was offered.
type Outcome = iupipe.Outcome

// Core control opcodes, re-exported so a caller outside this module can
// issue Control calls without reaching into internal/upipe.
const (
	OpGetOutput   = iupipe.OpGetOutput
	OpSetOutput   = iupipe.OpSetOutput
	OpGetURefMgr  = iupipe.OpGetURefMgr
	OpSetURefMgr  = iupipe.OpSetURefMgr
	OpGetUbufMgr  = iupipe.OpGetUbufMgr
	OpSetUbufMgr  = iupipe.OpSetUbufMgr
	OpGetUpumpMgr = iupipe.OpGetUpumpMgr
	OpSetUpumpMgr = iupipe.OpSetUpumpMgr
	OpGetUclock   = iupipe.OpGetUclock
	OpSetUclock   = iupipe.OpSetUclock
	OpGetFlowDef  = iupipe.OpGetFlowDef
	OpSetFlowDef  = iupipe.OpSetFlowDef

	PrivateOpBase = iupipe.PrivateOpBase
)

// Event codes, re-exported for the same reason as the control opcodes.
const (
	EventReady        = iupipe.EventReady
	EventDead         = iupipe.EventDead
	EventAllocError   = iupipe.EventAllocError
	EventUpumpError   = iupipe.EventUpumpError
	EventReadEnd      = iupipe.EventReadEnd
	EventNeedURefMgr  = iupipe.EventNeedURefMgr
	EventNeedUpumpMgr = iupipe.EventNeedUpumpMgr
	EventNeedUbufMgr  = iupipe.EventNeedUbufMgr
	EventSourceEnd    = iupipe.EventSourceEnd
	EventSplitAddFlow = iupipe.EventSplitAddFlow
	EventSplitDelFlow = iupipe.EventSplitDelFlow

	Handled = iupipe.Handled
	Forward = iupipe.Forward
)

// BasePipe is embeddable scaffolding every concrete pipe type builds on:
// refcounted lifetime, probe chain head, and the common core-opcode
// manager slots (spec §4.6).
type BasePipe = iupipe.BasePipe

// NewBasePipe returns scaffolding with refcount 1 and the given probe
// chain head.
func NewBasePipe(probe Probe) BasePipe { return iupipe.NewBasePipe(probe) }

// Sig builds a FOURCC-style 32-bit manager signature (spec §6).
func Sig(a, b, c, d byte) uint32 { return iupipe.Sig(a, b, c, d) }

// Throw offers ev to probe and walks its parent chain until one link
// handles it or the chain is exhausted.
func Throw(probe Probe, p Pipe, ev Event, args ...any) { iupipe.Throw(probe, p, ev, args...) }

// NewRootProbe returns a RootProbe logging through logger, or the package
// default logger if logger is nil.
func NewRootProbe(logger *logging.Logger) *RootProbe { return iupipe.NewRootProbe(logger) }

// Ref is one record flowing between pipes: a typed attribute dictionary
// plus an optional payload buffer plus a flow-definition string.
type Ref = uref.Ref

// URefManager allocates and releases Refs (aliased from internal/uref to
// avoid a name collision with this package's own Manager interface).
type URefManager = uref.Manager

// NewURefManager returns a uref manager built on the given dict/block/
// picture managers.
func NewURefManager(dicts *udict.Manager, blocks *ubuf.BlockMgr, pics *ubuf.PicMgr, poolDepth int) *URefManager {
	return uref.NewManager(dicts, blocks, pics, poolDepth)
}

// Dict is a typed attribute dictionary (spec §7, §8).
type Dict = udict.Dict

// DictManager pools Dicts.
type DictManager = udict.Manager

// NewDictManager returns a dict manager with the given pool depth and
// maximum per-dict attribute count.
func NewDictManager(poolDepth, maxSize int) *DictManager { return udict.NewManager(poolDepth, maxSize) }

// BlockBuf is a single contiguous block buffer.
type BlockBuf = ubuf.BlockBuf

// BlockMgr allocates block buffers.
type BlockMgr = ubuf.BlockMgr

// NewBlockMgr returns a block buffer manager.
func NewBlockMgr(alloc umem.Allocator, poolDepth, prepend, appendMargin int) *BlockMgr {
	return ubuf.NewBlockMgr(alloc, poolDepth, prepend, appendMargin)
}

// PicBuf is a single picture buffer.
type PicBuf = ubuf.PicBuf

// PicMgr allocates picture buffers for a fixed plane layout.
type PicMgr = ubuf.PicMgr

// PlaneLayout describes one plane of a picture format.
type PlaneLayout = ubuf.PlaneLayout

// NewPicMgr returns a picture buffer manager with no planes configured.
func NewPicMgr(alloc umem.Allocator, poolDepth, macropixel, hprepend, happend, vprepend, vappend, align, alignHMOffset int) *PicMgr {
	return ubuf.NewPicMgr(alloc, poolDepth, macropixel, hprepend, happend, vprepend, vappend, align, alignHMOffset)
}

// HeapAllocator is the default umem.Allocator, backed by make([]byte, n).
type HeapAllocator = umem.HeapAllocator

// NewHeapAllocator returns a HeapAllocator.
func NewHeapAllocator() *HeapAllocator { return umem.NewHeapAllocator() }

// UpumpMgr dispatches watchers on an event loop.
type UpumpMgr = upump.Mgr

// Watcher is a single registered event source.
type Watcher = upump.Watcher

// GoMgr is the reference Mgr implementation: one dispatch loop that runs
// idlers, polls fd watchers with unix.Poll and fires due timers.
type GoMgr = upump.GoMgr

// NewGoMgr returns a GoMgr.
func NewGoMgr(opts ...upump.Option) *GoMgr { return upump.NewGoMgr(opts...) }

// XferMgr is the cross-thread transfer manager (spec §4.7).
type XferMgr = xfer.Mgr

// NewXferMgr returns an unattached transfer manager with a command queue
// of the given depth.
func NewXferMgr(depth int) *XferMgr { return xfer.New(depth) }
