package ulifo

import (
	"sync"
	"testing"
)

func TestPushPopOrderIsLIFO(t *testing.T) {
	p := New[int](4)
	for _, v := range []int{1, 2, 3} {
		if !p.Push(v) {
			t.Fatalf("Push(%d) rejected unexpectedly", v)
		}
	}
	for _, want := range []int{3, 2, 1} {
		got, ok := p.Pop()
		if !ok || got != want {
			t.Fatalf("Pop()=%d,%v want %d,true", got, ok, want)
		}
	}
	if _, ok := p.Pop(); ok {
		t.Fatal("expected empty pool")
	}
}

func TestPushRejectsWhenFull(t *testing.T) {
	p := New[int](2)
	if !p.Push(1) || !p.Push(2) {
		t.Fatal("expected first two pushes to succeed")
	}
	if p.Push(3) {
		t.Fatal("expected push to be rejected once at capacity")
	}
	if p.Len() != 2 {
		t.Fatalf("Len()=%d, want 2", p.Len())
	}
}

func TestPoolCapSurvivesConcurrentAllocFree(t *testing.T) {
	const depth = 8
	p := New[int](depth)
	for i := 0; i < depth; i++ {
		p.Push(i)
	}

	const n = 64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if v, ok := p.Pop(); ok {
				p.Push(v)
			}
		}()
	}
	wg.Wait()

	if p.Len() > depth {
		t.Fatalf("Len()=%d exceeds capacity %d", p.Len(), depth)
	}
}

func TestPopEmptyPool(t *testing.T) {
	p := New[string](1)
	if _, ok := p.Pop(); ok {
		t.Fatal("expected empty pool to report ok=false")
	}
}
