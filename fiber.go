package fiber

import "fmt"

// maxNameLen is the longest fiber name retained; longer names are truncated.
const maxNameLen = 7

// Entry is a fiber body. The returned value becomes the fiber's exit code,
// delivered to joiners; it must be non-negative to stay clear of the library
// return-code band.
type Entry func(args ...any) int

// State is a fiber's scheduling state.
type State uint8

const (
	// StateDormant marks a recycled or never-activated fiber.
	StateDormant State = iota
	// StateResumed marks the fiber the scheduler last switched onto.
	StateResumed
	// StateRead parks a fiber until its fd is readable.
	StateRead
	// StateWrite parks a fiber until its fd is writable.
	StateWrite
	// StateOtherPoller parks a fiber on a composite poller wait (either
	// direction, or an fs event).
	StateOtherPoller
	// StateSleep parks a fiber until a deadline.
	StateSleep
	// StateSetResume marks a fiber already scheduled to run at the next pass.
	StateSetResume
	// StateSetInterrupt marks a fiber scheduled to observe an interrupt.
	StateSetInterrupt
	// StateSignalSubscribe parks a fiber on a Signal slot.
	StateSignalSubscribe
	// StateJoin parks a fiber on another fiber's exit.
	StateJoin
	// StateJoinInterrupted parks a fiber joining a target it just interrupted.
	StateJoinInterrupted
	// StateCondWait parks a fiber on a condition variable.
	StateCondWait
	// StateWaitFor parks a fiber on a spawned child's exit, with a deadline.
	StateWaitFor
	// StatePeek parks a fiber on another fiber's exit, with a deadline.
	StatePeek
)

// resumable reports whether an external agent may initiate this fiber's
// resumption.
func (s State) resumable() bool {
	switch s {
	case StateRead, StateWrite, StateOtherPoller, StateSleep,
		StateSetResume, StateSetInterrupt, StateSignalSubscribe,
		StateJoin, StateJoinInterrupted, StateCondWait, StateWaitFor, StatePeek:
		return true
	}
	return false
}

// waitsOnObject reports whether a deadline expiry in this state means the
// wait itself timed out, as opposed to an ordinary sleep ending.
func (s State) waitsOnObject() bool {
	switch s {
	case StateSignalSubscribe, StateJoin, StateJoinInterrupted,
		StateCondWait, StateWaitFor, StatePeek:
		return true
	}
	return false
}

func (s State) String() string {
	switch s {
	case StateDormant:
		return "Dormant"
	case StateResumed:
		return "Resumed"
	case StateRead:
		return "Read"
	case StateWrite:
		return "Write"
	case StateOtherPoller:
		return "OtherPoller"
	case StateSleep:
		return "Sleep"
	case StateSetResume:
		return "SetResume"
	case StateSetInterrupt:
		return "SetInterrupt"
	case StateSignalSubscribe:
		return "SignalSubscribe"
	case StateJoin:
		return "Join"
	case StateJoinInterrupted:
		return "JoinInterrupted"
	case StateCondWait:
		return "CondWait"
	case StateWaitFor:
		return "WaitFor"
	case StatePeek:
		return "Peek"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(s))
	}
}

// pollerData is a fiber's poller registration record: which directions are
// registered, which fired (composite waits accumulate before resuming), and
// the fd they refer to. Lookup state, not ownership.
type pollerData struct {
	fd         int
	registered IOEvents
	fired      IOEvents
}

// Fiber is a fiber control block. Application code treats it as an opaque
// reference; all fields are owned by the runtime and mutated only while the
// runtime's single logical thread of control is in the right place.
//
// A Fiber is backed by a goroutine that rendezvouses with the scheduler over
// the resume channel; the goroutine (and thus its stack) is retained across
// recycles, the analogue of stack reuse in the free pool.
type Fiber struct {
	rt *Runtime

	id   int64 // -1 while dormant/recycled
	gen  uint64
	name string

	entry Entry
	args  []any

	state State
	rc    int
	abac  int // nonzero pins the FCB against recycling
	prio  bool

	// sleep queue membership
	expire    uint64
	sleepNode *sleepNode
	sleepPrev *Fiber
	sleepNext *Fiber

	// wait queue membership
	hostingWaitq *waitQueue
	waitPrev     *Fiber
	waitNext     *Fiber

	// fibers awaiting this fiber's exit
	waitq waitQueue

	// result copied out of an exiting target before its FCB can recycle
	waitRC int

	pd pollerData

	cld any // opaque fiber-local data

	resume    chan struct{}
	destroyed bool
}

// main is the fiber goroutine. It waits for the scheduler's handoff, runs the
// entry, and parks again so the FCB (and this goroutine) can be reassigned.
func (f *Fiber) main() {
	for {
		if _, ok := <-f.resume; !ok || f.destroyed {
			return
		}
		rc := 0
		if f.entry != nil {
			rc = f.entry(f.args...)
		}
		f.rc = rc
		// No transition out of StateResumed: the scheduler takes this as
		// "entry returned" and finalizes the fiber.
		f.state = StateResumed
		f.rt.yield <- struct{}{}
	}
}

// ID returns the fiber's id, or -1 if it is dormant.
func (f *Fiber) ID() int64 { return f.id }

// Name returns the fiber's short label.
func (f *Fiber) Name() string { return f.name }

// SetName relabels the fiber; the result is truncated to seven characters.
func (f *Fiber) SetName(format string, args ...any) {
	f.name = truncName(fmt.Sprintf(format, args...))
}

func truncName(s string) string {
	if len(s) > maxNameLen {
		return s[:maxNameLen]
	}
	return s
}

// State returns the fiber's scheduling state.
func (f *Fiber) State() State { return f.state }

// IsDead reports whether the fiber has exited or was never activated.
func (f *Fiber) IsDead() bool {
	return f == nil || f.id == -1 || f.entry == nil
}

// IsRunnable reports whether the fiber is in a resumable state.
func (f *Fiber) IsRunnable() bool {
	return f != nil && !f.IsDead() && f.state.resumable()
}

// SetRetval writes the fiber's rc slot in place and returns the old value.
// Commonly called by a fiber right before it returns.
func (f *Fiber) SetRetval(rc int) int {
	old := f.rc
	f.rc = rc
	return old
}

// GetRetval reads the fiber's rc slot.
func (f *Fiber) GetRetval() int { return f.rc }

// SetCLD installs opaque fiber-local data, returning the previous value.
func (f *Fiber) SetCLD(v any) any {
	old := f.cld
	f.cld = v
	return old
}

// GetCLD returns the fiber-local data.
func (f *Fiber) GetCLD() any { return f.cld }

// SetPrio steers the fiber to the front of same-deadline buckets on
// subsequent enqueues. It reorders ties only, never distinct deadlines.
func (f *Fiber) SetPrio(high bool) { f.prio = high }

// IncABAC pins the fiber against recycling; pairs with DecABAC. Used around
// callbacks that may outlive the fiber's entry return.
func (f *Fiber) IncABAC() { f.abac++ }

// DecABAC releases one recycling pin. When the count reaches zero on an
// already-exited fiber, the FCB is reclaimed into the free pool.
func (f *Fiber) DecABAC() {
	if f.abac > 0 {
		f.abac--
	}
	if f.abac == 0 && f.state == StateDormant && f.id == -1 {
		f.rt.reclaim(f)
	}
}

// Dump emits a structured snapshot of the fiber through the runtime's logger.
func (f *Fiber) Dump() {
	f.rt.log.Info().
		Int64("id", f.id).
		Str("name", f.name).
		Stringer("state", f.state).
		Int("rc", f.rc).
		Int("abac", f.abac).
		Uint64("expire", f.expire).
		Bool("on_waitq", f.hostingWaitq != nil).
		Int("waiters", f.waitq.size).
		Log("fiber dump")
}
