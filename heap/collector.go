package heap

import (
	"sync"
	"sync/atomic"
	"time"
)

// ---------------------------------------------------------------------------
// Collector: periodic background collection for an EpochGC
// ---------------------------------------------------------------------------

// CollectorStats holds statistics from the collector's sweep loop.
type CollectorStats struct {
	Sweeps    uint64
	Reclaimed uint64
	Pending   int
	LastPause time.Duration
	MaxPause  time.Duration
	Timestamp time.Time
}

// Collector periodically runs TryCollect against an EpochGC from a
// dedicated low-priority goroutine, so mutators never have to collect
// on their own hot paths. It records per-sweep pause times; TryCollect
// is designed to stay well under a millisecond even with a heavy
// deferred-free backlog.
type Collector struct {
	gc       *EpochGC
	interval time.Duration
	stop     chan struct{}
	stopped  chan struct{}
	mu       sync.Mutex // protects start/stop lifecycle

	sweepCount atomic.Uint64
	reclaimed  atomic.Uint64
	lastPause  atomic.Int64 // nanoseconds
	maxPause   atomic.Int64 // nanoseconds
}

// DefaultCollectInterval is the default sweep interval.
const DefaultCollectInterval = 10 * time.Millisecond

// NewCollector creates a Collector for the given engine with the
// specified sweep interval. Use DefaultCollectInterval for the
// default.
func NewCollector(gc *EpochGC, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = DefaultCollectInterval
	}
	return &Collector{
		gc:       gc,
		interval: interval,
	}
}

// Start begins the sweep goroutine. Safe to call multiple times; only
// one sweep loop will run.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stop != nil {
		return // already running
	}

	c.stop = make(chan struct{})
	c.stopped = make(chan struct{})

	// Capture channels locally so the goroutine never reads c.stop /
	// c.stopped after Stop has nilled them out.
	stopCh := c.stop
	stoppedCh := c.stopped
	go c.loop(stopCh, stoppedCh)
}

// Stop halts the sweep goroutine and waits for it to finish. Safe to
// call multiple times or on a collector that was never started.
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stop == nil {
		return
	}

	close(c.stop)
	<-c.stopped
	c.stop = nil
	c.stopped = nil
}

func (c *Collector) loop(stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Sweep runs one collection pass immediately, recording its pause
// time. Usable directly by tests and by callers that want collection
// on demand rather than on a timer.
func (c *Collector) Sweep() int {
	start := time.Now()
	freed := c.gc.TryCollect()
	pause := time.Since(start)

	c.sweepCount.Add(1)
	c.reclaimed.Add(uint64(freed))
	c.lastPause.Store(int64(pause))
	for {
		cur := c.maxPause.Load()
		if int64(pause) <= cur || c.maxPause.CompareAndSwap(cur, int64(pause)) {
			break
		}
	}
	return freed
}

// Stats returns a snapshot of the collector's counters.
func (c *Collector) Stats() CollectorStats {
	return CollectorStats{
		Sweeps:    c.sweepCount.Load(),
		Reclaimed: c.reclaimed.Load(),
		Pending:   c.gc.PendingCount(),
		LastPause: time.Duration(c.lastPause.Load()),
		MaxPause:  time.Duration(c.maxPause.Load()),
		Timestamp: time.Now(),
	}
}
