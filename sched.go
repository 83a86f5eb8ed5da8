package fiber

import (
	"fmt"
	"math"
	"time"
)

// Loop runs the scheduler on the calling goroutine until nothing can ever
// run again: the sleep queue is empty and no fiber is armed on the poller.
// Exactly one of the scheduler and one fiber executes at any instant, so all
// runtime state is single-threaded despite the goroutine backing.
//
// Loop returns early only on a poller failure. After Shutdown it interrupts
// every parked fiber each pass until the queues drain.
func (r *Runtime) Loop() error {
	if r.closed.Load() {
		return ErrClosed
	}
	if r.looping.Swap(true) {
		return ErrRunning
	}
	defer r.looping.Store(false)
	r.log.Debug().Log("scheduler loop starting")
	for {
		now := r.clock.refresh()
		r.sift(now)
		if r.shutting.Load() {
			r.interruptAll()
			if r.sleepq.len() == 0 && r.poller.armed() == 0 {
				break
			}
			continue
		}
		if r.sleepq.len() == 0 && r.poller.armed() == 0 {
			break
		}
		if r.metrics != nil {
			r.metrics.PollWaits.Add(1)
		}
		if err := r.poller.wait(r.pollTimeout()); err != nil {
			r.log.Err().Err(err).Log("poller wait failed")
			return err
		}
	}
	r.log.Debug().Log("scheduler loop finished")
	return nil
}

// sift runs every fiber whose deadline has arrived, including entries
// scheduled at ResumeNow during this same pass. A deadline expiry on an
// object wait (join, peek, cond, signal, wait-for) is a timeout: the fiber is
// detached from the object's queue and resumed with RCTimedOut.
func (r *Runtime) sift(now uint64) {
	if r.metrics != nil {
		r.metrics.Passes.Add(1)
	}
	for {
		node := r.sleepq.min()
		if node == nil || node.key > now {
			return
		}
		f := r.sleepq.popFront()
		if f.state.waitsOnObject() {
			f.rc = RCTimedOut
			detach(f)
		}
		r.switchTo(f)
	}
}

// switchTo hands control to f and blocks until f yields back. On return, f
// either re-parked itself in a resumable state or its entry returned, in
// which case the fiber is finalized here.
func (r *Runtime) switchTo(f *Fiber) {
	var t0 uint64
	if r.metrics != nil {
		t0 = r.clock.precise()
	}
	f.state = StateResumed
	r.current = f
	f.resume <- struct{}{}
	<-r.yield
	r.current = nil
	if r.metrics != nil {
		r.metrics.RunLatency.observe(time.Duration(r.clock.precise() - t0))
	}
	if f.state == StateResumed {
		r.finalize(f)
		return
	}
	if !f.state.resumable() {
		panic(fmt.Sprintf("fiber: %d/%q yielded in unschedulable state %v", f.id, f.name, f.state))
	}
}

// switchBack yields from the calling fiber to the scheduler and blocks until
// the scheduler resumes this fiber. The caller must have recorded a
// resumable state on f first.
func (r *Runtime) switchBack(f *Fiber) {
	r.yield <- struct{}{}
	<-f.resume
}

// park records the wait state and yields; the resumption rc tells the caller
// how the wait ended.
func (r *Runtime) park(f *Fiber, s State) int {
	f.state = s
	r.switchBack(f)
	return f.rc
}

// scheduleResume places f at the front of the run order (the ResumeNow
// bucket), moving it from any later deadline it currently holds. Idempotent;
// f.rc is left for the caller to set.
func (r *Runtime) scheduleResume(f *Fiber) {
	if r.sleepq.contains(f) {
		if f.expire == ResumeNow {
			return
		}
		r.sleepq.remove(f)
	}
	f.state = StateSetResume
	r.sleepq.insert(f, ResumeNow, f.prio)
}

// finalize retires a fiber whose entry returned: waiters receive its exit
// code and are scheduled, any poller registration is withdrawn, and the FCB
// is scrubbed (id -1, generation bumped) and returned to the free pool
// unless an anti-recycle pin holds it.
func (r *Runtime) finalize(f *Fiber) {
	rc := f.rc
	for {
		w := f.waitq.dequeueHead()
		if w == nil {
			break
		}
		w.waitRC = rc
		w.rc = 0
		r.scheduleResume(w)
	}
	r.poller.clearEvent(f)
	r.log.Debug().
		Int64("id", f.id).
		Str("name", f.name).
		Int("rc", rc).
		Log("fiber exited")
	f.entry = nil
	f.args = nil
	f.id = -1
	f.gen++
	f.name = ""
	f.cld = nil
	f.state = StateDormant
	f.pd = pollerData{fd: -1}
	if r.metrics != nil {
		r.metrics.Exited.Add(1)
	}
	r.reclaim(f)
}

// SetInterrupt unparks f with RCUserInterrupted at the next pass, withdrawing
// it from whatever it waits on (deadline, fd, wait queue). A dead or running
// fiber is left alone; interrupting twice before the fiber runs is the same
// as interrupting once.
func (r *Runtime) SetInterrupt(f *Fiber) {
	if f == nil || f.IsDead() || f == r.current {
		return
	}
	if !f.state.resumable() {
		return
	}
	r.sleepq.remove(f)
	r.poller.clearEvent(f)
	detach(f)
	f.rc = RCUserInterrupted
	f.state = StateSetInterrupt
	r.sleepq.insert(f, ResumeNow, f.prio)
	if r.metrics != nil {
		r.metrics.Interrupted.Add(1)
	}
}

// interruptAll is the shutdown sweep: every parked fiber is scheduled to
// observe an interrupt. Fibers that re-park are swept again next pass.
func (r *Runtime) interruptAll() {
	for _, f := range r.fibers {
		if f.IsDead() || f == r.current {
			continue
		}
		if f.state == StateSetResume || f.state == StateSetInterrupt {
			continue
		}
		r.SetInterrupt(f)
	}
}

// deliverEvent is the poller's upcall for a ready (fd, direction). A
// single-direction waiter is switched to immediately, its registration
// withdrawn first (level-triggered readiness would otherwise re-fire). A
// composite waiter accumulates the fired direction and is scheduled; it owns
// withdrawing its own registrations on wake.
func (r *Runtime) deliverEvent(f *Fiber, dir IOEvents, pollErr bool) {
	if f == nil {
		return
	}
	switch f.state {
	case StateRead:
		if dir&(EventRead|EventVnode) == 0 {
			r.logEventMismatch(f, dir)
			return
		}
	case StateWrite:
		if dir&EventWrite == 0 {
			r.logEventMismatch(f, dir)
			return
		}
	case StateOtherPoller:
		f.pd.fired |= dir
		if pollErr {
			f.rc = RCPoller
		} else {
			f.rc = 0
		}
		r.scheduleResume(f)
		return
	case StateSetResume:
		// Second direction of a composite wait landing in the same poller
		// batch; the fiber is already scheduled, so just accumulate.
		if f.pd.registered&dir == 0 {
			r.logEventMismatch(f, dir)
			return
		}
		f.pd.fired |= dir
		if pollErr {
			f.rc = RCPoller
		}
		return
	default:
		r.logEventMismatch(f, dir)
		return
	}
	r.poller.clearEvent(f)
	if pollErr {
		f.rc = RCPoller
	} else {
		f.rc = 0
	}
	r.switchTo(f)
}

func (r *Runtime) logEventMismatch(f *Fiber, dir IOEvents) {
	r.log.Warning().
		Int64("id", f.id).
		Str("name", f.name).
		Stringer("state", f.state).
		Stringer("fired", dir).
		Int("fd", f.pd.fd).
		Log("dropping poller event that does not match the fiber's wait")
}

// pollTimeout derives the poller wait from the earliest deadline: -1 (block)
// when only unbounded waits remain, 0 when work is already due, otherwise
// the gap rounded up to a whole millisecond so a deadline is never slept
// past.
func (r *Runtime) pollTimeout() int {
	node := r.sleepq.min()
	if node == nil || node.key == Forever {
		return -1
	}
	now := r.clock.now()
	if node.key <= now {
		return 0
	}
	ms := (node.key - now + uint64(time.Millisecond) - 1) / uint64(time.Millisecond)
	if ms > math.MaxInt32 {
		ms = math.MaxInt32
	}
	return int(ms)
}

// sleepAbs parks the calling fiber until the absolute deadline. Returns the
// resumption rc: RCOK on expiry, RCUserInterrupted if interrupted first.
func (r *Runtime) sleepAbs(deadline uint64) int {
	f := r.current
	if f == nil {
		return RCJoinFailure
	}
	f.rc = 0
	r.sleepq.insert(f, deadline, f.prio)
	return r.park(f, StateSleep)
}

// Sleep parks the calling fiber for msec milliseconds. Returns nil on expiry
// or ErrUserInterrupted. Must be called from a fiber.
func (r *Runtime) Sleep(msec uint64) error {
	if r.current == nil {
		return ErrNotFiber
	}
	return RCError(r.sleepAbs(r.absMsec(msec)))
}

// SleepUsec parks the calling fiber for usec microseconds.
func (r *Runtime) SleepUsec(usec uint64) error {
	if r.current == nil {
		return ErrNotFiber
	}
	return RCError(r.sleepAbs(r.absTicks(UsecToTicks(usec))))
}

// SleepTicks parks the calling fiber for the given tick count; Forever parks
// it until an interrupt.
func (r *Runtime) SleepTicks(ticks uint64) error {
	if r.current == nil {
		return ErrNotFiber
	}
	if ticks == Forever {
		return RCError(r.sleepAbs(Forever))
	}
	return RCError(r.sleepAbs(r.absTicks(ticks)))
}

// Yield reschedules the calling fiber behind everything already due and
// hands control back to the scheduler.
func (r *Runtime) Yield() error {
	if r.current == nil {
		return ErrNotFiber
	}
	return RCError(r.sleepAbs(ResumeNow))
}

// GiveUp parks the calling fiber without rescheduling it anywhere: only an
// explicit SetInterrupt (or a primitive holding a reference) brings it back.
// With no other work left the loop exits and the fiber stays parked, so pair
// GiveUp with a mechanism that resumes it.
func (r *Runtime) GiveUp() error {
	f := r.current
	if f == nil {
		return ErrNotFiber
	}
	f.rc = 0
	return RCError(r.park(f, StateSleep))
}
