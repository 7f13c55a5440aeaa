package sink

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/livefeed/internal/activity"
	"github.com/gyaneshwarpardhi/livefeed/internal/metrics"
)

const publishTimeout = 5 * time.Second

// Dispatcher fans admitted items out to every registered sink on a bounded
// worker pool. Submitting never blocks the caller.
type Dispatcher struct {
	reg    *Registry
	pool   *workerPool[activity.Item]
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts workers goroutines draining a queue of queueDepth items.
func NewDispatcher(ctx context.Context, reg *Registry, workers, queueDepth int, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{reg: reg, logger: logger}
	d.pool = newWorkerPool(ctx, workers, queueDepth, d.publish)
	return d
}

// Submit enqueues it for publishing. Returns false if the queue is full or
// the dispatcher is drained.
func (d *Dispatcher) Submit(it activity.Item) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed || !d.pool.Submit(it) {
		metrics.SinkDropped.Inc()
		return false
	}
	metrics.SinkQueueUtilization.Set(d.utilization())
	return true
}

// QueueUtilization returns queue used / capacity (0–1).
func (d *Dispatcher) QueueUtilization() float64 {
	u := d.utilization()
	metrics.SinkQueueUtilization.Set(u)
	return u
}

func (d *Dispatcher) utilization() float64 {
	if d.pool.QueueCap() == 0 {
		return 0
	}
	return float64(d.pool.QueueLen()) / float64(d.pool.QueueCap())
}

// Drain stops accepting items and waits for queued ones to be published.
func (d *Dispatcher) Drain() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.pool.Drain()
}

func (d *Dispatcher) publish(ctx context.Context, it activity.Item) {
	for _, s := range d.reg.All() {
		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		err := s.Publish(pctx, it)
		cancel()
		if err != nil {
			metrics.SinkPublishes.WithLabelValues(s.Name(), "error").Inc()
			d.logger.Warn("sink publish failed", "sink", s.Name(), "item", it.ID, "err", err)
			continue
		}
		metrics.SinkPublishes.WithLabelValues(s.Name(), "success").Inc()
	}
}
