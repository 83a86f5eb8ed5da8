package fiber

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks runtime statistics. Collection is opt-in (WithMetrics) to
// keep the scheduler's hot paths free of bookkeeping when nobody is looking.
//
// Counters use atomics and the latency buffer takes a mutex, so snapshots may
// be read from any goroutine while the loop runs.
type Metrics struct {
	Spawned     atomic.Int64
	Exited      atomic.Int64
	Recycled    atomic.Int64
	Interrupted atomic.Int64
	Passes      atomic.Int64
	PollWaits   atomic.Int64

	// RunLatency samples the wall time of each fiber run slice, from the
	// scheduler handing control over until the fiber yields back.
	RunLatency latencyStats
}

func newMetrics() *Metrics {
	return &Metrics{}
}

// MetricsSnapshot is a point-in-time copy of the runtime metrics, safe to
// retain and compare.
type MetricsSnapshot struct {
	Spawned     int64
	Exited      int64
	Recycled    int64
	Interrupted int64
	Passes      int64
	PollWaits   int64

	RunLatency LatencySnapshot
}

func (m *Metrics) snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Spawned:     m.Spawned.Load(),
		Exited:      m.Exited.Load(),
		Recycled:    m.Recycled.Load(),
		Interrupted: m.Interrupted.Load(),
		Passes:      m.Passes.Load(),
		PollWaits:   m.PollWaits.Load(),
		RunLatency:  m.RunLatency.sample(),
	}
}

// latencySampleSize is the rolling buffer length used for percentile
// computation.
const latencySampleSize = 1000

// latencyStats keeps a rolling buffer of duration samples and derives
// percentiles on demand.
type latencyStats struct {
	mu    sync.Mutex
	idx   int
	count int
	sum   time.Duration
	buf   [latencySampleSize]time.Duration
}

func (l *latencyStats) observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count >= latencySampleSize {
		l.sum -= l.buf[l.idx]
	}
	l.buf[l.idx] = d
	l.sum += d
	l.idx++
	if l.idx >= latencySampleSize {
		l.idx = 0
	}
	if l.count < latencySampleSize {
		l.count++
	}
}

// LatencySnapshot holds percentiles computed over the rolling sample buffer.
type LatencySnapshot struct {
	Count int
	P50   time.Duration
	P90   time.Duration
	P99   time.Duration
	Max   time.Duration
	Mean  time.Duration
}

// sample sorts a copy of the buffer; with the buffer capped at 1000 entries
// this costs on the order of 100 microseconds, fine for periodic reads.
func (l *latencyStats) sample() LatencySnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count == 0 {
		return LatencySnapshot{}
	}
	sorted := make([]time.Duration, l.count)
	copy(sorted, l.buf[:l.count])
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j] < sorted[i] {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}
	return LatencySnapshot{
		Count: l.count,
		P50:   sorted[pctIndex(l.count, 50)],
		P90:   sorted[pctIndex(l.count, 90)],
		P99:   sorted[pctIndex(l.count, 99)],
		Max:   sorted[l.count-1],
		Mean:  l.sum / time.Duration(l.count),
	}
}

func pctIndex(n, p int) int {
	i := (p * n) / 100
	if i >= n {
		return n - 1
	}
	return i
}
