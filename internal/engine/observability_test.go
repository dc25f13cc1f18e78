package engine

import (
	"sync"
	"testing"
	"time"
)

func TestAsyncNodeLatencyObserver_DeliversInOrder(t *testing.T) {
	spy := &spyLatencyObserver{}
	o := NewAsyncNodeLatencyObserver(spy, 16)

	o.ObserveNodeLatency("a", time.Millisecond)
	o.ObserveNodeLatency("b", 2*time.Millisecond)
	o.Close()

	if len(spy.nodes) != 2 || spy.nodes[0] != "a" || spy.nodes[1] != "b" {
		t.Fatalf("unexpected delivery: %#v", spy.nodes)
	}
}

func TestAsyncNodeLatencyObserver_DropsWhenFullInsteadOfBlocking(t *testing.T) {
	block := make(chan struct{})
	slow := &blockingObserver{release: block}
	o := NewAsyncNodeLatencyObserver(slow, 1)

	// First event occupies the drain goroutine, second fills the buffer,
	// the rest must be dropped without blocking this goroutine.
	for i := 0; i < 10; i++ {
		o.ObserveNodeLatency("n", time.Microsecond)
	}
	close(block)
	o.Close()

	if o.Dropped() == 0 {
		t.Fatalf("expected drops with a full buffer")
	}
}

func TestAsyncNodeLatencyObserver_ObserveAfterCloseCounts(t *testing.T) {
	o := NewAsyncNodeLatencyObserver(&spyLatencyObserver{}, 4)
	o.Close()
	o.ObserveNodeLatency("late", time.Microsecond)

	if o.Dropped() != 1 {
		t.Fatalf("expected post-close event to be counted as dropped, got %d", o.Dropped())
	}
}

func TestAsyncNodeLatencyObserver_CloseIsIdempotentAndConcurrent(t *testing.T) {
	o := NewAsyncNodeLatencyObserver(&spyLatencyObserver{}, 4)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.Close()
		}()
	}
	wg.Wait()
}

type blockingObserver struct {
	release chan struct{}
}

func (b *blockingObserver) ObserveNodeLatency(string, time.Duration) {
	<-b.release
}
