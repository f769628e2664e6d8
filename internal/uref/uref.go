// Package uref implements the record type that flows between pipes: an
// attribute dictionary plus an optional buffer plus a flow-definition
// string (spec §4.5). Pooled the same way internal/udict pools Dicts,
// since a uref is hot-path-allocated at the same rate as the buffers it
// carries.
package uref

import (
	"time"

	"github.com/upipe/upipe-go/internal/metrics"
	"github.com/upipe/upipe-go/internal/ubuf"
	"github.com/upipe/upipe-go/internal/udict"
	"github.com/upipe/upipe-go/internal/ulifo"
)

// Ref is one record: a typed attribute dictionary, an optional payload
// buffer, and the flow-definition string describing that payload's
// format. Control urefs (spec §4.5 "alloc_control") carry a nil Buf.
type Ref struct {
	Dict    *udict.Dict
	Buf     ubuf.Buf
	FlowDef string
}

// Manager allocates and releases Refs, dispatching buffer ownership to
// whichever concrete ubuf manager matches the payload's concrete type.
type Manager struct {
	dicts    *udict.Manager
	blocks   *ubuf.BlockMgr
	pics     *ubuf.PicMgr
	pool     *ulifo.Pool[*Ref]
	observer metrics.Observer
}

// NewManager returns a Manager built on the given dict/block/picture
// managers. Either of blocks or pics may be nil if the pipeline never
// allocates that kind of payload.
func NewManager(dicts *udict.Manager, blocks *ubuf.BlockMgr, pics *ubuf.PicMgr, poolDepth int) *Manager {
	return &Manager{dicts: dicts, blocks: blocks, pics: pics, pool: ulifo.New[*Ref](poolDepth), observer: metrics.NoOpObserver{}}
}

// SetObserver installs the metrics observer Alloc/AllocPicture report
// through.
func (m *Manager) SetObserver(o metrics.Observer) {
	if o == nil {
		o = metrics.NoOpObserver{}
	}
	m.observer = o
}

// Blocks returns the block buffer manager backing this uref manager, or
// nil if it was constructed without one. Pipes that need to write payload
// bytes into a freshly allocated uref (sources, most filters) go through
// this rather than reimplementing block allocation.
func (m *Manager) Blocks() *ubuf.BlockMgr { return m.blocks }

// Pictures returns the picture buffer manager backing this uref manager,
// or nil if it was constructed without one.
func (m *Manager) Pictures() *ubuf.PicMgr { return m.pics }

func (m *Manager) newRef() *Ref {
	if r, ok := m.pool.Pop(); ok {
		return r
	}
	return &Ref{}
}

// AllocControl returns a uref carrying only a dictionary, no payload
// (spec §4.5): used for control messages like flow-definition announces.
func (m *Manager) AllocControl(flowDef string) *Ref {
	r := m.newRef()
	r.Dict = m.dicts.Alloc()
	r.Buf = nil
	r.FlowDef = flowDef
	r.Dict.SetFlowDef(flowDef)
	return r
}

// Alloc returns a uref wrapping a freshly allocated block buffer of size
// octets, with flow-definition flowDef.
func (m *Manager) Alloc(flowDef string, size int) (*Ref, error) {
	start := time.Now()
	buf, err := m.blocks.Alloc(size)
	if err != nil {
		m.observer.ObserveAlloc(0, uint64(time.Since(start).Nanoseconds()), false)
		return nil, err
	}
	r := m.newRef()
	r.Dict = m.dicts.Alloc()
	r.Buf = buf
	r.FlowDef = flowDef
	r.Dict.SetFlowDef(flowDef)
	m.observer.ObserveAlloc(uint64(size), uint64(time.Since(start).Nanoseconds()), true)
	return r, nil
}

// AllocPicture returns a uref wrapping a freshly allocated picture buffer.
// flow is an optional flow-definition dict (carrying k.hsize/k.vsize)
// validated against hsize/vsize before allocating; pass nil to skip
// validation.
func (m *Manager) AllocPicture(flowDef string, flow *udict.Dict, hsize, vsize int) (*Ref, error) {
	start := time.Now()
	buf, err := m.pics.AllocFlow(flow, hsize, vsize)
	if err != nil {
		m.observer.ObserveAlloc(0, uint64(time.Since(start).Nanoseconds()), false)
		return nil, err
	}
	r := m.newRef()
	r.Dict = m.dicts.Alloc()
	r.Buf = buf
	r.FlowDef = flowDef
	r.Dict.SetFlowDef(flowDef)
	m.observer.ObserveAlloc(uint64(hsize*vsize), uint64(time.Since(start).Nanoseconds()), true)
	return r, nil
}

// Dup returns a new Ref with a cloned dictionary and a duplicated (shared,
// copy-on-write) buffer — releasing the dup never affects r.
func (m *Manager) Dup(r *Ref) *Ref {
	n := m.newRef()
	n.Dict = r.Dict.Clone()
	n.FlowDef = r.FlowDef
	switch b := r.Buf.(type) {
	case nil:
		n.Buf = nil
	case *ubuf.BlockBuf:
		n.Buf = m.blocks.Dup(b)
	case *ubuf.PicBuf:
		n.Buf = m.pics.Dup(b)
	}
	return n
}

// Free releases r's dictionary and buffer and returns the header to the
// pool.
func (m *Manager) Free(r *Ref) {
	if r == nil {
		return
	}
	m.dicts.Free(r.Dict)
	switch b := r.Buf.(type) {
	case *ubuf.BlockBuf:
		m.blocks.Free(b)
	case *ubuf.PicBuf:
		m.pics.Free(b)
	}
	*r = Ref{}
	m.pool.Push(r)
}
