// Package memsink implements an example sink pipe: it writes the buffer
// payload of each uref it receives into a pkg/memstore.Store, the mirror
// image of pkg/source/memsrc's reader. Together the two exercise a full
// source -> (optionally transfer) -> sink graph, as cmd/upipe-cat does.
package memsink

import (
	"time"

	"github.com/upipe/upipe-go/internal/ubuf"
	"github.com/upipe/upipe-go/internal/upipe"
	"github.com/upipe/upipe-go/internal/upump"
	"github.com/upipe/upipe-go/internal/uref"
	"github.com/upipe/upipe-go/pkg/memstore"
)

// Signature is memsink's FOURCC-style manager signature.
var Signature = upipe.Sig('m', 's', 'n', 'k')

// Sink is a single-input pipe that copies every record's buffer payload
// into store, in arrival order.
type Sink struct {
	upipe.BasePipe

	store            *memstore.Store
	urefMgr          *uref.Manager
	pos              int
	requestedUbufMgr bool
}

// New returns a sink pipe writing into store, releasing each uref through
// urefMgr once its payload has been copied.
func New(probe upipe.Probe, store *memstore.Store, urefMgr *uref.Manager) *Sink {
	return &Sink{BasePipe: upipe.NewBasePipe(probe), store: store, urefMgr: urefMgr}
}

func (s *Sink) Signature() uint32 { return Signature }
func (s *Sink) MgrUse()           {}
func (s *Sink) MgrRelease()       {}

// Input copies r's buffer payload into the next store slot in arrival
// order and releases r. A control-only uref (nil Buf) is accepted as a
// zero-length record, matching memsrc's own length-framed log.
func (s *Sink) Input(r *uref.Ref, hint upump.Mgr) {
	start := time.Now()
	if !s.requestedUbufMgr {
		s.requestedUbufMgr = true
		if s.UbufMgr() == nil {
			s.Throw(s, upipe.EventNeedUbufMgr)
		}
	}
	payload := []byte{}
	if blk, ok := r.Buf.(*ubuf.BlockBuf); ok {
		size := blk.Size()
		if size > 0 {
			view, err := s.urefMgr.Blocks().Read(blk, 0, size)
			if err != nil {
				s.Throw(s, upipe.EventUpumpError, err)
				s.urefMgr.Free(r)
				s.ObserveInput(0, uint64(time.Since(start).Nanoseconds()), false)
				return
			}
			payload = append([]byte(nil), view...)
			s.urefMgr.Blocks().Unmap(blk, 0)
		}
	}
	s.store.Put(s.pos, payload)
	s.pos++
	s.urefMgr.Free(r)
	s.ObserveInput(uint64(len(payload)), uint64(time.Since(start).Nanoseconds()), true)
}

// Control handles the core opcodes through HandleCoreControl; a sink has
// no private opcodes of its own, so any other opcode fails with ErrBadArg.
func (s *Sink) Control(op upipe.ControlOp, args ...any) (bool, error) {
	return s.TimeControl(func() (bool, error) {
		if ok, err, matched := s.HandleCoreControl(op, args...); matched {
			return ok, err
		}
		return false, upipe.ErrBadArg
	})
}

// Release tears the sink down (no sub-resources beyond its refcount).
func (s *Sink) Release() {
	s.ReleaseSelf(s, nil)
}

var _ upipe.Pipe = (*Sink)(nil)
var _ upipe.Manager = (*Sink)(nil)
