// Block buffers: a segment over a shared octet region, chained into a
// logical sequence by a next pointer. Grounded on
// other_examples/e8875d42_Jille-throughputbuffer's dataChunk chain (a
// refcounted list of byte slices accumulated by Write and shared
// copy-on-write by Clone), adapted here from a sequential io.ReadWriter
// into a random-access, sliceable buffer with a cached locator (spec §4.3).
package ubuf

import (
	"github.com/upipe/upipe-go/internal/ulifo"
	"github.com/upipe/upipe-go/internal/umem"
)

// Buf is the marker interface shared by BlockBuf and PicBuf, letting
// internal/uref hold either kind of buffer without knowing which manager
// owns it (spec §5.6: a uref carries "an optional ubuf.Buf").
type Buf interface {
	isUbuf()
}

func (*BlockBuf) isUbuf() {}
func (*PicBuf) isUbuf()   {}

// BlockBuf is one segment of a block buffer chain. Only the head segment's
// totalSize/cachedBuf/cachedOffset fields are meaningful; tail segments
// carry zero there.
type BlockBuf struct {
	shared *sharedRegion
	offset int
	size   int
	next   *BlockBuf

	totalSize    int
	cachedBuf    *BlockBuf
	cachedOffset int
}

// Size returns the total number of bytes spanned by the chain rooted at
// this head.
func (b *BlockBuf) Size() int { return b.totalSize }

// BlockMgr allocates and manipulates block buffers. One BlockMgr owns one
// header pool and one allocator; prepend/append reserve margin octets on
// either side of every freshly allocated segment for later zero-copy
// Resize, the way the teacher's queue.Runner reserves header room ahead of
// the data buffer it hands to the kernel.
type BlockMgr struct {
	alloc      umem.Allocator
	headerPool *ulifo.Pool[*BlockBuf]
	prepend    int
	append     int
}

// NewBlockMgr returns a manager backed by alloc, pooling up to poolDepth
// segment headers, reserving prepend/append octets of margin on Alloc.
func NewBlockMgr(alloc umem.Allocator, poolDepth, prepend, appendMargin int) *BlockMgr {
	return &BlockMgr{
		alloc:      alloc,
		headerPool: ulifo.New[*BlockBuf](poolDepth),
		prepend:    prepend,
		append:     appendMargin,
	}
}

func (mgr *BlockMgr) newHeader() *BlockBuf {
	if b, ok := mgr.headerPool.Pop(); ok {
		return b
	}
	return &BlockBuf{}
}

func (mgr *BlockMgr) releaseHeader(b *BlockBuf) {
	*b = BlockBuf{}
	mgr.headerPool.Push(b)
}

// Alloc returns a single-segment buffer of size octets, with prepend/append
// margin reserved but not part of the visible size.
func (mgr *BlockMgr) Alloc(size int) (*BlockBuf, error) {
	if size < 0 {
		return nil, ErrBadArg
	}
	shared, err := newShared(mgr.alloc, mgr.prepend+size+mgr.append)
	if err != nil {
		return nil, err
	}
	b := mgr.newHeader()
	b.shared = shared
	b.offset = mgr.prepend
	b.size = size
	b.next = nil
	b.totalSize = size
	b.cachedBuf = b
	b.cachedOffset = 0
	return b, nil
}

// Free releases every segment in the chain rooted at buf, dropping the
// manager's reference to each segment's shared region.
func (mgr *BlockMgr) Free(buf *BlockBuf) {
	for seg := buf; seg != nil; {
		next := seg.next
		seg.shared.release()
		mgr.releaseHeader(seg)
		seg = next
	}
}

func (mgr *BlockMgr) dupChain(seg *BlockBuf) *BlockBuf {
	if seg == nil {
		return nil
	}
	n := mgr.newHeader()
	seg.shared.use()
	n.shared = seg.shared
	n.offset = seg.offset
	n.size = seg.size
	n.next = mgr.dupChain(seg.next)
	return n
}

// Dup returns a new chain sharing every segment's underlying region with
// buf (spec §4.3: duplication clones segment chain heads, recursively
// duplicating tail pointers; the shared region refcount is what's bumped,
// not the bytes).
func (mgr *BlockMgr) Dup(buf *BlockBuf) *BlockBuf {
	n := mgr.dupChain(buf)
	n.totalSize = buf.totalSize
	n.cachedBuf = n
	n.cachedOffset = 0
	return n
}

// locate walks (or resumes from the cached locator on) the chain rooted at
// head to find the segment and within-segment offset holding byte offset.
func (mgr *BlockMgr) locate(head *BlockBuf, offset int) (*BlockBuf, int, error) {
	if offset < 0 || offset > head.totalSize {
		return nil, 0, ErrOutOfRange
	}
	seg := head
	remaining := offset
	if head.cachedBuf != nil && offset >= head.cachedOffset {
		seg = head.cachedBuf
		remaining = offset - head.cachedOffset
	}
	base := offset - remaining
	for seg != nil {
		if remaining < seg.size || (remaining == 0 && seg.size == 0) {
			head.cachedBuf = seg
			head.cachedOffset = base
			return seg, remaining, nil
		}
		remaining -= seg.size
		base += seg.size
		seg = seg.next
	}
	if remaining == 0 {
		// offset == totalSize: valid for a zero-length read/splice at EOF.
		return nil, 0, nil
	}
	return nil, 0, ErrOutOfRange
}

// Read returns a read-only view of up to size bytes starting at offset.
// The returned slice may be shorter than size when the span crosses a
// segment boundary; callers needing a contiguous span of arbitrary length
// should Merge first. Every Read must be paired with Unmap.
func (mgr *BlockMgr) Read(buf *BlockBuf, offset, size int) ([]byte, error) {
	if offset < 0 || size < 0 {
		return nil, ErrBadArg
	}
	if offset+size > buf.totalSize {
		return nil, ErrOutOfRange
	}
	if size == 0 {
		return nil, nil
	}
	seg, local, err := mgr.locate(buf, offset)
	if err != nil {
		return nil, err
	}
	n := size
	if avail := seg.size - local; n > avail {
		n = avail
	}
	seg.shared.readers.Add(1)
	return seg.shared.region.Data[seg.offset+local : seg.offset+local+n], nil
}

// Write returns a mutable view like Read, but fails with ErrNotSingle
// unless the target segment's shared region is uniquely owned (spec §4.3:
// copy-on-write — Dup shares the region, so a caller holding a shared
// buffer gets an exclusive copy with Merge, which copies into a fresh
// allocation, before writing).
func (mgr *BlockMgr) Write(buf *BlockBuf, offset, size int) ([]byte, error) {
	if offset < 0 || size < 0 {
		return nil, ErrBadArg
	}
	if offset+size > buf.totalSize {
		return nil, ErrOutOfRange
	}
	if size == 0 {
		return nil, nil
	}
	seg, local, err := mgr.locate(buf, offset)
	if err != nil {
		return nil, err
	}
	if !seg.shared.rc.Single() {
		return nil, ErrNotSingle
	}
	n := size
	if avail := seg.size - local; n > avail {
		n = avail
	}
	seg.shared.readers.Add(1)
	return seg.shared.region.Data[seg.offset+local : seg.offset+local+n], nil
}

// Unmap balances a prior Read or Write at the same offset.
func (mgr *BlockMgr) Unmap(buf *BlockBuf, offset int) error {
	seg, _, err := mgr.locate(buf, offset)
	if err != nil {
		return err
	}
	if seg == nil {
		return nil
	}
	seg.shared.readers.Add(-1)
	return nil
}

func (mgr *BlockMgr) spliceChain(seg *BlockBuf, local, remaining int) (*BlockBuf, error) {
	if remaining == 0 {
		return nil, nil
	}
	n := mgr.newHeader()
	seg.shared.use()
	n.shared = seg.shared
	n.offset = seg.offset + local
	take := seg.size - local
	if take > remaining {
		take = remaining
	}
	n.size = take
	remaining -= take
	if remaining > 0 {
		if seg.next == nil {
			seg.shared.release()
			mgr.releaseHeader(n)
			return nil, ErrOutOfRange
		}
		tail, err := mgr.spliceChain(seg.next, 0, remaining)
		if err != nil {
			seg.shared.release()
			mgr.releaseHeader(n)
			return nil, err
		}
		n.next = tail
	}
	return n, nil
}

// Splice returns a new chain sharing memory with buf's [offset, offset+size)
// range, spanning as many segments as needed.
func (mgr *BlockMgr) Splice(buf *BlockBuf, offset, size int) (*BlockBuf, error) {
	if offset < 0 || size < 0 || offset+size > buf.totalSize {
		return nil, ErrOutOfRange
	}
	if size == 0 {
		return mgr.Alloc(0)
	}
	seg, local, err := mgr.locate(buf, offset)
	if err != nil {
		return nil, err
	}
	head, err := mgr.spliceChain(seg, local, size)
	if err != nil {
		return nil, err
	}
	head.totalSize = size
	head.cachedBuf = head
	head.cachedOffset = 0
	return head, nil
}

// Resize adjusts the head segment's visible window in place: prependSkip
// drops (if positive) or reclaims (if negative, growing into the margin
// reserved at Alloc) octets from the front; appendSkip does the same at
// the tail. newSize becomes the chain's reported total size. Only valid
// on an unchained (single-segment) buffer — the common case immediately
// after Alloc.
func (mgr *BlockMgr) Resize(buf *BlockBuf, prependSkip, appendSkip, newSize int) error {
	newOffset := buf.offset + prependSkip
	newHeadSize := buf.size - prependSkip - appendSkip
	if newOffset < 0 || newHeadSize < 0 || newSize < 0 {
		return ErrOutOfRange
	}
	if newOffset+newHeadSize > len(buf.shared.region.Data) {
		return ErrOutOfRange
	}
	buf.offset = newOffset
	buf.size = newHeadSize
	buf.totalSize = newSize
	buf.cachedBuf = buf
	buf.cachedOffset = 0
	return nil
}

// Append concatenates tail onto the end of buf's chain, consuming tail's
// ownership (the caller must not use tail independently afterwards).
func (mgr *BlockMgr) Append(buf, tail *BlockBuf) error {
	if buf == nil || tail == nil {
		return ErrBadArg
	}
	last := buf
	for last.next != nil {
		last = last.next
	}
	last.next = tail
	buf.totalSize += tail.totalSize
	return nil
}

// Merge flattens a (possibly multi-segment) chain into one freshly
// allocated, contiguous buffer. Grounded on
// original_source/include/upipe/ubuf_block_common.h's merge operation
// (spec §8): used by pipes that need a single contiguous span — e.g.
// handing a coded frame to an external decoder that doesn't do scatter-
// gather input.
func (mgr *BlockMgr) Merge(buf *BlockBuf) (*BlockBuf, error) {
	out, err := mgr.Alloc(buf.totalSize)
	if err != nil {
		return nil, err
	}
	off := 0
	for seg := buf; seg != nil; seg = seg.next {
		copy(out.shared.region.Data[out.offset+off:], seg.shared.region.Data[seg.offset:seg.offset+seg.size])
		off += seg.size
	}
	return out, nil
}
