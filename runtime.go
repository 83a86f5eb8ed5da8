package fiber

import (
	"sync/atomic"

	"github.com/joeycumines/logiface"
)

const (
	pageSize = 4096

	minStackPages = 2
	maxStackPages = 2048
	defStackPages = 8

	defaultStackSize = defStackPages * pageSize
)

func clampStackSize(bytes int) int {
	pages := (bytes + pageSize - 1) / pageSize
	if pages < minStackPages {
		pages = minStackPages
	}
	if pages > maxStackPages {
		pages = maxStackPages
	}
	return pages * pageSize
}

// Runtime owns everything the fiber scheduler needs: the FCB table, the free
// pool, the sleep queue, the readiness poller, and the tick source. One
// Runtime hosts one scheduler loop; all fibers spawned on it share one
// logical thread of control, so fibers never need locks to share state.
//
// Apart from Shutdown, ShuttingDown, and the timing reads, Runtime methods
// must be called either before Loop starts or from a fiber running on this
// Runtime.
type Runtime struct {
	log *logiface.Logger[logiface.Event]

	clock  clock
	poller poller
	sleepq *sleepQueue

	fibers []*Fiber
	free   []*Fiber

	current *Fiber
	yield   chan struct{}

	nextID    int64
	stackSize int

	metrics *Metrics

	looping  atomic.Bool
	shutting atomic.Bool
	closed   atomic.Bool
}

// New initializes a runtime: tick source anchored, poller and wake fd open,
// empty FCB table. The caller must eventually Close it.
func New(opts ...Option) (*Runtime, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	r := &Runtime{
		log:       cfg.logger,
		sleepq:    newSleepQueue(),
		yield:     make(chan struct{}),
		stackSize: cfg.stackSize,
	}
	if cfg.metrics {
		r.metrics = newMetrics()
	}
	r.clock.init()
	if err := r.poller.init(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Close releases the runtime: terminates the goroutines of dormant fibers,
// closes the poller and its wake fd, and drops the FCB table. Live fibers
// that never honored an interrupt are abandoned (cooperative cancellation
// cannot unwind them) and counted in the warning this logs. Idempotent.
func (r *Runtime) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	var live int
	for _, f := range r.fibers {
		if f.state == StateDormant && f.id == -1 {
			r.destroy(f)
		} else {
			live++
		}
	}
	if live > 0 {
		r.log.Warning().Int("fibers", live).Log("closing runtime with live fibers")
	}
	r.fibers = nil
	r.free = nil
	return r.poller.close()
}

// destroy terminates a dormant fiber's goroutine.
func (r *Runtime) destroy(f *Fiber) {
	if f.destroyed {
		return
	}
	f.destroyed = true
	close(f.resume)
}

// Me returns the calling fiber, or nil when called off-fiber (including from
// the scheduler itself).
func (r *Runtime) Me() *Fiber { return r.current }

// SetStackSize replaces the advisory default stack size (clamped to [2
// pages, 2048 pages], page-rounded) and returns the previous value.
func (r *Runtime) SetStackSize(bytes int) int {
	old := r.stackSize
	r.stackSize = clampStackSize(bytes)
	return old
}

// StackSize returns the advisory default stack size in bytes.
func (r *Runtime) StackSize() int { return r.stackSize }

// alloc produces a ready-to-assign FCB: recycled from the free pool when one
// is available, freshly backed by a new goroutine otherwise.
func (r *Runtime) alloc() *Fiber {
	if n := len(r.free); n > 0 {
		f := r.free[n-1]
		r.free[n-1] = nil
		r.free = r.free[:n-1]
		return f
	}
	f := &Fiber{
		rt:     r,
		id:     -1,
		resume: make(chan struct{}),
	}
	f.pd.fd = -1
	r.fibers = append(r.fibers, f)
	go f.main()
	return f
}

// reclaim returns an exited FCB to the free pool. Skipped while the
// anti-recycle count is held; DecABAC retries it on release.
func (r *Runtime) reclaim(f *Fiber) {
	if f.abac != 0 {
		return
	}
	r.free = append(r.free, f)
	if r.metrics != nil {
		r.metrics.Recycled.Add(1)
	}
}

// NewFiber allocates and initializes a fiber without scheduling it. Use Run
// to schedule it later; Spawn combines both.
func (r *Runtime) NewFiber(name string, entry Entry, args ...any) *Fiber {
	f := r.alloc()
	r.nextID++
	f.id = r.nextID
	f.name = truncName(name)
	f.entry = entry
	f.args = args
	f.state = StateDormant
	f.rc = 0
	f.waitRC = 0
	f.prio = false
	f.cld = nil
	f.pd = pollerData{fd: -1}
	return f
}

// Run schedules a fiber produced by NewFiber. The next scheduler pass runs
// it.
func (r *Runtime) Run(f *Fiber) error {
	if f == nil || f.entry == nil || f.id == -1 {
		return ErrDeadFiber
	}
	if f.state != StateDormant {
		return ErrDeadFiber
	}
	f.rc = 0
	f.state = StateSetResume
	r.sleepq.insert(f, ResumeNow, f.prio)
	return nil
}

// Spawn creates a fiber and schedules it for the next scheduler pass.
func (r *Runtime) Spawn(name string, entry Entry, args ...any) *Fiber {
	f := r.NewFiber(name, entry, args...)
	_ = r.Run(f)
	if r.metrics != nil {
		r.metrics.Spawned.Add(1)
	}
	r.log.Debug().Int64("id", f.id).Str("name", f.name).Log("fiber spawned")
	return f
}

// GC removes truly-free FCBs from the table (terminating their goroutines),
// compacts it, and rebuilds the free pool. Returns the number of FCBs
// reclaimed.
func (r *Runtime) GC() int {
	removed := 0
	kept := r.fibers[:0]
	for _, f := range r.fibers {
		if f.state == StateDormant && f.id == -1 && f.abac == 0 {
			r.destroy(f)
			removed++
			continue
		}
		kept = append(kept, f)
	}
	// Reallocate so the dropped tail is collectible even at low churn.
	r.fibers = append(make([]*Fiber, 0, len(kept)), kept...)
	r.free = r.free[:0]
	r.log.Debug().Int("removed", removed).Int("kept", len(kept)).Log("fcb table compacted")
	return removed
}

// LiveFibers returns the number of FCBs in the table that are not free.
func (r *Runtime) LiveFibers() int {
	n := 0
	for _, f := range r.fibers {
		if !(f.state == StateDormant && f.id == -1) {
			n++
		}
	}
	return n
}

// FreeFibers returns the size of the free pool.
func (r *Runtime) FreeFibers() int { return len(r.free) }

// DumpAll logs a snapshot of every non-free fiber.
func (r *Runtime) DumpAll() {
	for _, f := range r.fibers {
		if f.state == StateDormant && f.id == -1 {
			continue
		}
		f.Dump()
	}
}

// Shutdown requests loop termination. It is safe to call from any goroutine:
// it only sets a flag and nudges the poller's wake fd. The loop interrupts
// every remaining parked fiber (including forever-waiters) before returning.
func (r *Runtime) Shutdown() {
	if r.shutting.Swap(true) {
		return
	}
	if r.looping.Load() {
		_ = r.poller.wakeup()
	}
}

// ShuttingDown reports whether Shutdown has been requested.
func (r *Runtime) ShuttingDown() bool {
	return r.shutting.Load()
}

// Metrics returns a snapshot of the runtime metrics, or a zero snapshot if
// metrics were not enabled.
func (r *Runtime) Metrics() MetricsSnapshot {
	if r.metrics == nil {
		return MetricsSnapshot{}
	}
	return r.metrics.snapshot()
}
