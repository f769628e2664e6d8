package ubuf

import (
	"fmt"
	"sync/atomic"

	"github.com/upipe/upipe-go/internal/umem"
	"github.com/upipe/upipe-go/internal/urefcount"
)

// sharedRegion is the octet region underlying one or more block/picture
// segments. Several ubuf handles may point at the same sharedRegion; rc
// tracks how many, and readers is a debug-only assert counter that every
// Read/ReadPlane must pair with an Unmap/UnmapPlane (spec §4.3).
type sharedRegion struct {
	region  *umem.Region
	alloc   umem.Allocator
	rc      *urefcount.RefCount
	readers atomic.Int32
}

func newShared(alloc umem.Allocator, size int) (*sharedRegion, error) {
	r, err := alloc.Alloc(size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAlloc, err)
	}
	return &sharedRegion{region: r, alloc: alloc, rc: urefcount.New(1)}, nil
}

func (s *sharedRegion) use() { s.rc.Use() }

// release drops one reference, freeing the underlying region once the last
// reference is gone. Asserts (panics) if a reader/writer is still mapped —
// callers forgetting to Unmap before the last Free is a programming error,
// not a runtime condition to recover from.
func (s *sharedRegion) release() {
	if s.rc.Release() {
		if n := s.readers.Load(); n != 0 {
			panic(fmt.Sprintf("ubuf: shared region freed with %d outstanding map(s)", n))
		}
		s.alloc.Free(s.region)
	}
}
