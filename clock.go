package fiber

import (
	"sync/atomic"
	"time"
)

// Tick sentinels. Ticks are nanoseconds since the runtime's anchor, offset by
// tickBase so real deadlines can never collide with the sentinels.
const (
	// ticksUndefined marks a fiber that is not in the sleep queue.
	ticksUndefined uint64 = 0
	// ResumeNow is the smallest positive deadline: the fiber runs at the very
	// next scheduler pass.
	ResumeNow uint64 = 1
	// Forever never expires on its own; only an interrupt unparks the fiber.
	Forever uint64 = ^uint64(0)

	tickBase uint64 = 2
)

// clock is the runtime's monotonic tick source. The cached value is refreshed
// by the scheduler after every poller return (the fast path); precise reads go
// back to the monotonic clock. time.Since uses the monotonic reading, so the
// source is strictly non-decreasing for the life of the runtime.
//
// The anchor idiom follows the tick timing of the event loop this package
// grew out of: an anchor captured once at construction plus an elapsed offset
// stored atomically so foreign goroutines can read a coherent "now".
type clock struct {
	anchor time.Time
	cached atomic.Uint64
}

func (c *clock) init() {
	c.anchor = time.Now()
	c.cached.Store(c.precise())
}

// precise re-reads the monotonic clock.
func (c *clock) precise() uint64 {
	return uint64(time.Since(c.anchor)) + tickBase
}

// refresh updates the cached tick value; called once per scheduler pass.
func (c *clock) refresh() uint64 {
	now := c.precise()
	c.cached.Store(now)
	return now
}

// now returns the cached tick value (fast path).
func (c *clock) now() uint64 {
	return c.cached.Load()
}

// MsecToTicks converts a relative millisecond count to ticks.
func MsecToTicks(msec uint64) uint64 {
	return msec * uint64(time.Millisecond)
}

// UsecToTicks converts a relative microsecond count to ticks.
func UsecToTicks(usec uint64) uint64 {
	return usec * uint64(time.Microsecond)
}

// TicksToSec converts a tick count to seconds.
func TicksToSec(ticks uint64) float64 {
	return float64(ticks) / float64(time.Second)
}

// TicksDiffToSec converts a signed tick difference to seconds.
func TicksDiffToSec(diff int64) float64 {
	return float64(diff) / float64(time.Second)
}

// NowTicks returns the tick value cached by the scheduler on its last pass.
// Outside a running loop it reflects the most recent refresh.
func (r *Runtime) NowTicks() uint64 {
	return r.clock.now()
}

// NowTicksPrecise re-reads the monotonic clock.
func (r *Runtime) NowTicksPrecise() uint64 {
	return r.clock.precise()
}

// NowNsec returns the cached monotonic time in nanoseconds. Ticks are
// nanoseconds, so this is NowTicks under a name that matches its unit.
func (r *Runtime) NowNsec() uint64 {
	return r.clock.now()
}

// NowNsecPrecise re-reads the monotonic clock in nanoseconds.
func (r *Runtime) NowNsecPrecise() uint64 {
	return r.clock.precise()
}

// absTicks converts a relative tick count to an absolute deadline, saturating
// at Forever.
func (r *Runtime) absTicks(rel uint64) uint64 {
	now := r.clock.now()
	if rel > Forever-now {
		return Forever
	}
	d := now + rel
	if d < ResumeNow+1 {
		d = ResumeNow + 1
	}
	return d
}

// absMsec converts a relative millisecond count to an absolute deadline.
func (r *Runtime) absMsec(msec uint64) uint64 {
	return r.absTicks(MsecToTicks(msec))
}
