package umem

import "testing"

func TestHeapAllocatorAllocZeroed(t *testing.T) {
	a := NewHeapAllocator()
	r, err := a.Alloc(16)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if len(r.Data) != 16 {
		t.Fatalf("len=%d, want 16", len(r.Data))
	}
	for i, b := range r.Data {
		if b != 0 {
			t.Fatalf("byte %d not zeroed: %d", i, b)
		}
	}
}

func TestHeapAllocatorNegativeSize(t *testing.T) {
	a := NewHeapAllocator()
	if _, err := a.Alloc(-1); err == nil {
		t.Fatal("expected error for negative size")
	}
}

func TestHeapAllocatorFreeNil(t *testing.T) {
	a := NewHeapAllocator()
	a.Free(nil) // must not panic
}
