package ubuf

import (
	"testing"

	"github.com/upipe/upipe-go/internal/udict"
	"github.com/upipe/upipe-go/internal/umem"
)

func newYV12Mgr(t *testing.T) *PicMgr {
	t.Helper()
	mgr := NewPicMgr(umem.NewHeapAllocator(), 4, 1, 8, 8, 2, 2, 16, 0)
	if err := mgr.AddPlane(PlaneLayout{Chroma: "y", HSub: 1, VSub: 1, MacropixelSize: 1}); err != nil {
		t.Fatalf("AddPlane y: %v", err)
	}
	if err := mgr.AddPlane(PlaneLayout{Chroma: "u", HSub: 2, VSub: 2, MacropixelSize: 1}); err != nil {
		t.Fatalf("AddPlane u: %v", err)
	}
	if err := mgr.AddPlane(PlaneLayout{Chroma: "v", HSub: 2, VSub: 2, MacropixelSize: 1}); err != nil {
		t.Fatalf("AddPlane v: %v", err)
	}
	return mgr
}

// TestPictureAllocStrideAndAlignment mirrors spec §8 scenario 2: alloc a
// YV12-shaped buffer with 8-pixel horizontal and 2-pixel vertical margins
// and a 16-byte alignment requirement, and check every plane's stride
// satisfies the subsampled-width law and every plane base is 16-aligned.
func TestPictureAllocStrideAndAlignment(t *testing.T) {
	mgr := newYV12Mgr(t)
	buf, err := mgr.Alloc(64, 32)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	defer mgr.Free(buf)

	wantStride := map[string]int{"y": 80, "u": 40, "v": 40}
	for i, l := range buf.layout {
		p := buf.planes[i]
		if p.stride < wantStride[l.Chroma] {
			t.Fatalf("plane %s stride=%d, want >= %d", l.Chroma, p.stride, wantStride[l.Chroma])
		}
		if p.base%16 != 0 {
			t.Fatalf("plane %s base=%d not 16-aligned", l.Chroma, p.base)
		}
	}
}

func TestPictureAllocFlowValidatesDeclaredSize(t *testing.T) {
	mgr := newYV12Mgr(t)

	flow := udict.NewManager(4, 16).Alloc()
	flow.SetHSize(64)
	flow.SetVSize(32)

	buf, err := mgr.AllocFlow(flow, 64, 32)
	if err != nil {
		t.Fatalf("AllocFlow matching declared size: %v", err)
	}
	mgr.Free(buf)

	if _, err := mgr.AllocFlow(flow, 48, 32); err != ErrBadArg {
		t.Fatalf("AllocFlow with hsize != flow-declared k.hsize: err=%v, want ErrBadArg", err)
	}
	if _, err := mgr.AllocFlow(flow, 64, 16); err != ErrBadArg {
		t.Fatalf("AllocFlow with vsize != flow-declared k.vsize: err=%v, want ErrBadArg", err)
	}
	skipBuf, err := mgr.AllocFlow(nil, 64, 32)
	if err != nil {
		t.Fatalf("AllocFlow with nil flow should skip validation: %v", err)
	}
	mgr.Free(skipBuf)
}

func TestPictureAddPlaneRejectedWhileLive(t *testing.T) {
	mgr := newYV12Mgr(t)
	buf, _ := mgr.Alloc(16, 16)
	defer mgr.Free(buf)

	if err := mgr.AddPlane(PlaneLayout{Chroma: "alpha", HSub: 1, VSub: 1, MacropixelSize: 1}); err != ErrBadArg {
		t.Fatalf("err=%v, want ErrBadArg while a buffer is live", err)
	}
}

func TestPictureWriteReadPlaneRoundTrip(t *testing.T) {
	mgr := newYV12Mgr(t)
	buf, err := mgr.Alloc(16, 8)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	defer mgr.Free(buf)

	w, err := mgr.WritePlane(buf, "y", 0, 0, 16, 8)
	if err != nil {
		t.Fatalf("WritePlane: %v", err)
	}
	for y, row := range w.Rows {
		for x := range row {
			row[x] = byte((x + y) % 251)
		}
	}
	mgr.UnmapPlane(buf, "y")

	r, err := mgr.ReadPlane(buf, "y", 0, 0, 16, 8)
	if err != nil {
		t.Fatalf("ReadPlane: %v", err)
	}
	for y, row := range r.Rows {
		for x, v := range row {
			if want := byte((x + y) % 251); v != want {
				t.Fatalf("pixel (%d,%d)=%d, want %d", x, y, v, want)
			}
		}
	}
	mgr.UnmapPlane(buf, "y")
}

func TestPictureWritePlaneRequiresSingle(t *testing.T) {
	mgr := newYV12Mgr(t)
	buf, _ := mgr.Alloc(16, 8)
	dup := mgr.Dup(buf)
	defer mgr.Free(buf)
	defer mgr.Free(dup)

	if _, err := mgr.WritePlane(buf, "y", 0, 0, 16, 8); err != ErrNotSingle {
		t.Fatalf("err=%v, want ErrNotSingle while dup is alive", err)
	}
}

func TestPictureResizeWithinMargins(t *testing.T) {
	mgr := newYV12Mgr(t)
	buf, _ := mgr.Alloc(16, 8)
	defer mgr.Free(buf)

	if err := mgr.Resize(buf, -4, -2, 20, 10); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if buf.hsize != 20 || buf.vsize != 10 {
		t.Fatalf("hsize=%d vsize=%d, want 20,10", buf.hsize, buf.vsize)
	}

	if err := mgr.Resize(buf, -100, 0, 20, 10); err != ErrOutOfRange {
		t.Fatalf("err=%v, want ErrOutOfRange past margin", err)
	}
}
