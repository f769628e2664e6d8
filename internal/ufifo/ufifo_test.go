package ufifo

import (
	"sync"
	"testing"
)

func TestPushPopFIFOOrder(t *testing.T) {
	q := New[int](8)
	for _, v := range []int{1, 2, 3} {
		v := v
		if !q.Push(&v) {
			t.Fatalf("Push(%d) rejected unexpectedly", v)
		}
	}
	for _, want := range []int{1, 2, 3} {
		got, ok := q.Pop()
		if !ok || got != want {
			t.Fatalf("Pop()=%d,%v want %d,true", got, ok, want)
		}
	}
}

func TestPopEmptyQueue(t *testing.T) {
	q := New[string](4)
	if _, ok := q.Pop(); ok {
		t.Fatal("expected empty queue to report ok=false")
	}
}

// TestMultiProducerSingleConsumerPreservesPerProducerOrder exercises the
// ordering guarantee spec §8 requires: any two submissions from the same
// producer thread are observed by the consumer in the order they were
// enqueued.
func TestMultiProducerSingleConsumerPreservesPerProducerOrder(t *testing.T) {
	const producers = 4
	const perProducer = 200
	q := New[int](1024)

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		p := p
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				v := p*perProducer + i
				for !q.Push(&v) {
					// queue momentarily full, retry
				}
			}
		}()
	}
	wg.Wait()

	lastSeen := make([]int, producers)
	for i := range lastSeen {
		lastSeen[i] = -1
	}
	for i := 0; i < producers*perProducer; i++ {
		var v int
		var ok bool
		for !ok {
			v, ok = q.Pop()
		}
		p := v / perProducer
		idx := v % perProducer
		if idx <= lastSeen[p] {
			t.Fatalf("producer %d: out-of-order delivery, got idx %d after %d", p, idx, lastSeen[p])
		}
		lastSeen[p] = idx
	}
}
