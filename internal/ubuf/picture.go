// Picture buffers: a set of planar, chroma-subsampled planes packed into
// one shared allocation. Grounded on the teacher's internal/queue pool's
// size-bucketing discipline for the pool side, and on the page-rounding
// arithmetic in the teacher's ioLoop's mmap'd queue setup for the
// alignment math (generalized here from page-size rounding to
// macropixel/alignment rounding per spec §4.4).
package ubuf

import (
	"sync/atomic"

	"github.com/upipe/upipe-go/internal/udict"
	"github.com/upipe/upipe-go/internal/ulifo"
	"github.com/upipe/upipe-go/internal/umem"
)

// PlaneLayout describes one plane of a picture format: its chroma
// subsampling, in the horizontal (hsub) and vertical (vsub) directions,
// and its macropixel size in octets.
type PlaneLayout struct {
	Chroma         string
	HSub, VSub     int
	MacropixelSize int
}

// PicMgr allocates picture buffers for a fixed plane layout. AddPlane may
// only be called while no picture buffers from this manager are alive
// (spec §4.4: "reconfiguring planes is only valid while the manager holds
// no live buffers").
type PicMgr struct {
	alloc          umem.Allocator
	headerPool     *ulifo.Pool[*PicBuf]
	planes         []PlaneLayout
	macropixel     int
	hprepend, happend int
	vprepend, vappend int
	align          int
	alignHMOffset  int
	live           atomic.Int32
}

// NewPicMgr returns a manager with no planes configured; call AddPlane to
// build up the format before the first Alloc.
func NewPicMgr(alloc umem.Allocator, poolDepth, macropixel, hprepend, happend, vprepend, vappend, align, alignHMOffset int) *PicMgr {
	return &PicMgr{
		alloc:         alloc,
		headerPool:    ulifo.New[*PicBuf](poolDepth),
		macropixel:    macropixel,
		hprepend:      hprepend,
		happend:       happend,
		vprepend:      vprepend,
		vappend:       vappend,
		align:         align,
		alignHMOffset: alignHMOffset,
	}
}

// AddPlane appends a plane to the format. Fails with ErrBadArg if buffers
// allocated from this manager are still alive.
func (mgr *PicMgr) AddPlane(l PlaneLayout) error {
	if mgr.live.Load() != 0 {
		return ErrBadArg
	}
	mgr.planes = append(mgr.planes, l)
	return nil
}

// picPlane is one plane's placement within the shared allocation.
type picPlane struct {
	base   int // offset within the shared region of row 0 (including prepend margins)
	stride int
	rows   int // allocated rows, (vsize+vprepend+vappend)/vsub
}

// PicBuf is a single picture buffer: a shared allocation plus the
// currently visible window into it (which Resize may shrink/grow within
// the allocated margins).
type PicBuf struct {
	shared *sharedRegion
	layout []PlaneLayout
	planes []picPlane

	hmprepend, hmappend int // margins in the layout's macropixel units, copied at Alloc time;
	vprepend, vappend   int // Resize keeps hmappend/vappend equal to the room left past the window

	hsize, vsize int // currently declared (visible) extents
	horigin      int // horizontal origin, relative to the allocated prepend margin
	vorigin      int
}

func alignedBase(cursor, align, alignHMOffset, macropixelSize int) int {
	if align <= 1 {
		return cursor
	}
	target := alignHMOffset * macropixelSize
	desired := (align - (target % align)) % align
	if rem := cursor % align; rem != desired {
		cursor += (desired - rem + align) % align
	}
	return cursor
}

// Alloc returns a buffer declaring hsize x vsize visible pixels, laid out
// per the manager's configured planes/margins/alignment.
func (mgr *PicMgr) Alloc(hsize, vsize int) (*PicBuf, error) {
	if len(mgr.planes) == 0 {
		return nil, ErrBadArg
	}
	if mgr.macropixel <= 0 {
		return nil, ErrBadArg
	}
	if hsize%mgr.macropixel != 0 || hsize < 0 || vsize < 0 {
		return nil, ErrBadArg
	}

	planes := make([]picPlane, len(mgr.planes))
	cursor := 0
	for i, l := range mgr.planes {
		width := (hsize + mgr.hprepend + mgr.happend) / l.HSub
		stride := width * l.MacropixelSize
		rows := (vsize + mgr.vprepend + mgr.vappend) / l.VSub
		base := alignedBase(cursor, mgr.align, mgr.alignHMOffset, l.MacropixelSize)
		planes[i] = picPlane{base: base, stride: stride, rows: rows}
		cursor = base + stride*rows
	}
	// Slack for the alignment of the very first plane plus rounding.
	total := cursor + mgr.align

	shared, err := newShared(mgr.alloc, total)
	if err != nil {
		return nil, err
	}

	b := mgr.newHeader()
	b.shared = shared
	b.layout = append([]PlaneLayout(nil), mgr.planes...)
	b.planes = planes
	b.hmprepend = mgr.hprepend
	b.hmappend = mgr.happend
	b.vprepend = mgr.vprepend
	b.vappend = mgr.vappend
	b.hsize = hsize
	b.vsize = vsize
	b.horigin = mgr.hprepend
	b.vorigin = mgr.vprepend
	mgr.live.Add(1)
	return b, nil
}

// AllocFlow is Alloc with additional validation against a flow-declared
// picture format (k.hsize/k.vsize, uref_pic_flow.h): when flow carries
// either attribute, it must be macropixel-aligned and match the hsize/
// vsize the caller is asking Alloc for exactly — a flow declaring an
// extent Alloc's own argument doesn't honor is a caller bug, not
// something to silently allow. flow may be nil to skip validation
// entirely, equivalent to calling Alloc directly.
func (mgr *PicMgr) AllocFlow(flow *udict.Dict, hsize, vsize int) (*PicBuf, error) {
	if flow != nil {
		if declared, err := flow.GetHSize(); err == nil {
			if declared%uint64(mgr.macropixel) != 0 || declared != uint64(hsize) {
				return nil, ErrBadArg
			}
		}
		if declared, err := flow.GetVSize(); err == nil && declared != uint64(vsize) {
			return nil, ErrBadArg
		}
	}
	return mgr.Alloc(hsize, vsize)
}

func (mgr *PicMgr) newHeader() *PicBuf {
	if b, ok := mgr.headerPool.Pop(); ok {
		return b
	}
	return &PicBuf{}
}

// Free releases buf's reference to its shared allocation.
func (mgr *PicMgr) Free(buf *PicBuf) {
	buf.shared.release()
	mgr.live.Add(-1)
	*buf = PicBuf{}
	mgr.headerPool.Push(buf)
}

// Dup returns a new handle sharing buf's allocation and current visible
// window.
func (mgr *PicMgr) Dup(buf *PicBuf) *PicBuf {
	buf.shared.use()
	n := mgr.newHeader()
	*n = *buf
	n.layout = append([]PlaneLayout(nil), buf.layout...)
	n.planes = append([]picPlane(nil), buf.planes...)
	mgr.live.Add(1)
	return n
}

func (buf *PicBuf) planeIndex(name string) int {
	for i, l := range buf.layout {
		if l.Chroma == name {
			return i
		}
	}
	return -1
}

// PlaneView is a zero-copy, row-major view into one plane.
type PlaneView struct {
	Rows   [][]byte
	Stride int
}

func (mgr *PicMgr) mapPlane(buf *PicBuf, name string, hoffset, voffset, hsize, vsize int, write bool) (*PlaneView, error) {
	if hsize < 0 || vsize < 0 || hoffset < 0 || voffset < 0 {
		return nil, ErrBadArg
	}
	idx := buf.planeIndex(name)
	if idx < 0 {
		return nil, ErrBadArg
	}
	l := buf.layout[idx]
	if hoffset%mgr.macropixelAlign(l) != 0 {
		return nil, ErrBadArg
	}
	if hoffset+hsize > buf.hsize || voffset+vsize > buf.vsize {
		return nil, ErrOutOfRange
	}
	if write && !buf.shared.rc.Single() {
		return nil, ErrNotSingle
	}
	p := buf.planes[idx]
	rowBytes := hsize / l.HSub * l.MacropixelSize
	rows := make([][]byte, vsize/l.VSub)
	data := buf.shared.region.Data
	for r := range rows {
		rowOff := p.base + (buf.vorigin+voffset)/l.VSub*p.stride + (buf.horigin+hoffset)/l.HSub*l.MacropixelSize
		rows[r] = data[rowOff+r*p.stride : rowOff+r*p.stride+rowBytes]
	}
	buf.shared.readers.Add(1)
	return &PlaneView{Rows: rows, Stride: p.stride}, nil
}

func (mgr *PicMgr) macropixelAlign(l PlaneLayout) int {
	if l.HSub <= 0 {
		return 1
	}
	return l.HSub
}

// ReadPlane returns a read-only view of the given plane's sub-rectangle.
func (mgr *PicMgr) ReadPlane(buf *PicBuf, name string, hoffset, voffset, hsize, vsize int) (*PlaneView, error) {
	return mgr.mapPlane(buf, name, hoffset, voffset, hsize, vsize, false)
}

// WritePlane returns a mutable view, failing with ErrNotSingle unless buf's
// allocation is uniquely owned.
func (mgr *PicMgr) WritePlane(buf *PicBuf, name string, hoffset, voffset, hsize, vsize int) (*PlaneView, error) {
	return mgr.mapPlane(buf, name, hoffset, voffset, hsize, vsize, true)
}

// UnmapPlane balances a prior ReadPlane/WritePlane call.
func (mgr *PicMgr) UnmapPlane(buf *PicBuf, name string) {
	buf.shared.readers.Add(-1)
}

// Resize shifts the buffer's visible window by (hskip, vskip) and sets new
// visible extents, staying within the margins reserved at Alloc.
func (mgr *PicMgr) Resize(buf *PicBuf, hskip, vskip, newHSize, newVSize int) error {
	newOrigin := buf.horigin + hskip
	newVOrigin := buf.vorigin + vskip
	if newOrigin < 0 || newVOrigin < 0 || newHSize < 0 || newVSize < 0 {
		return ErrOutOfRange
	}
	hlimit := buf.horigin + buf.hsize + buf.hmappend
	vlimit := buf.vorigin + buf.vsize + buf.vappend
	if newOrigin+newHSize > hlimit {
		return ErrOutOfRange
	}
	if newVOrigin+newVSize > vlimit {
		return ErrOutOfRange
	}
	buf.horigin = newOrigin
	buf.vorigin = newVOrigin
	buf.hsize = newHSize
	buf.vsize = newVSize
	buf.hmappend = hlimit - newOrigin - newHSize
	buf.vappend = vlimit - newVOrigin - newVSize
	return nil
}
