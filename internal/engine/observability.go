package engine

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

type NodeLatencyObserver interface {
	ObserveNodeLatency(nodeID string, duration time.Duration)
}

// NodeLatencyLogger writes one line per visited node. Useful in dev; wrap
// it in an AsyncNodeLatencyObserver before putting it on a hot path.
type NodeLatencyLogger struct {
	logger *log.Logger
}

func NewNodeLatencyLogger(logger *log.Logger) *NodeLatencyLogger {
	return &NodeLatencyLogger{logger: logger}
}

func (l *NodeLatencyLogger) ObserveNodeLatency(nodeID string, duration time.Duration) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Printf("eval_node_latency node=%s duration_ms=%.3f", nodeID, float64(duration.Microseconds())/1000.0)
}

// AsyncNodeLatencyObserver decouples observation from evaluation latency:
// events go through a bounded buffer to a single drain goroutine, and are
// dropped (counted) rather than ever blocking an evaluation.
type AsyncNodeLatencyObserver struct {
	next    NodeLatencyObserver
	events  chan nodeLatencyEvent
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	dropped atomic.Uint64
}

type nodeLatencyEvent struct {
	nodeID   string
	duration time.Duration
}

func NewAsyncNodeLatencyObserver(next NodeLatencyObserver, buffer int) *AsyncNodeLatencyObserver {
	if buffer <= 0 {
		buffer = 1
	}

	o := &AsyncNodeLatencyObserver{
		next:   next,
		events: make(chan nodeLatencyEvent, buffer),
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for ev := range o.events {
			if o.next != nil {
				o.next.ObserveNodeLatency(ev.nodeID, ev.duration)
			}
		}
	}()

	return o
}

func (o *AsyncNodeLatencyObserver) ObserveNodeLatency(nodeID string, duration time.Duration) {
	if o == nil {
		return
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		o.dropped.Add(1)
		return
	}
	select {
	case o.events <- nodeLatencyEvent{nodeID: nodeID, duration: duration}:
	default:
		o.dropped.Add(1)
	}
}

// Dropped reports how many events were discarded due to a full buffer or
// a closed observer.
func (o *AsyncNodeLatencyObserver) Dropped() uint64 {
	if o == nil {
		return 0
	}
	return o.dropped.Load()
}

// Close drains outstanding events and stops the goroutine. Safe to call
// more than once.
func (o *AsyncNodeLatencyObserver) Close() {
	if o == nil {
		return
	}
	o.once.Do(func() {
		o.mu.Lock()
		o.closed = true
		close(o.events)
		o.mu.Unlock()
		o.wg.Wait()
	})
}
