package fiber

// Join parks the calling fiber until target's entry returns, then reports the
// target's exit code. Joining a dead fiber (or yourself) fails immediately
// with ErrJoinFailure; an interrupt while parked returns ErrUserInterrupted.
// Multiple fibers may join the same target; all of them receive its exit
// code.
func (r *Runtime) Join(target *Fiber) (int, error) {
	me := r.current
	if me == nil {
		return 0, ErrNotFiber
	}
	if target == nil || target.IsDead() || target == me {
		return RCJoinFailure, ErrJoinFailure
	}
	me.rc = 0
	target.waitq.enqueue(me)
	if rc := r.park(me, StateJoin); rc != 0 {
		return rc, RCError(rc)
	}
	return me.waitRC, RCError(me.waitRC)
}

// Peek is Join with a deadline: it parks until target exits or msec
// milliseconds elapse, whichever first. On timeout it returns ErrTimedOut
// and target keeps running.
func (r *Runtime) Peek(target *Fiber, msec uint64) (int, error) {
	return r.PeekTicks(target, MsecToTicks(msec))
}

// PeekTicks is Peek with a tick deadline; Forever degrades to a plain join.
func (r *Runtime) PeekTicks(target *Fiber, ticks uint64) (int, error) {
	me := r.current
	if me == nil {
		return 0, ErrNotFiber
	}
	if target == nil || target.IsDead() || target == me {
		return RCJoinFailure, ErrJoinFailure
	}
	me.rc = 0
	target.waitq.enqueue(me)
	r.sleepq.insert(me, r.absTicks(ticks), me.prio)
	if rc := r.park(me, StatePeek); rc != 0 {
		return rc, RCError(rc)
	}
	return me.waitRC, RCError(me.waitRC)
}

// SetInterruptAndJoin interrupts target and parks until it exits. A dead
// target is a no-op. Returns ErrUserInterrupted if the caller is itself
// interrupted while waiting.
func (r *Runtime) SetInterruptAndJoin(target *Fiber) error {
	me := r.current
	if me == nil {
		return ErrNotFiber
	}
	if target == nil || target.IsDead() || target == me {
		return nil
	}
	r.SetInterrupt(target)
	me.rc = 0
	target.waitq.enqueue(me)
	if rc := r.park(me, StateJoinInterrupted); rc != 0 {
		return RCError(rc)
	}
	return nil
}

// SetInterruptAndJoinTimeout bounds SetInterruptAndJoin: if the interrupted
// target has not unwound within msec milliseconds, it returns ErrTimedOut
// with the target still live. Used to escalate stuck fibers.
func (r *Runtime) SetInterruptAndJoinTimeout(target *Fiber, msec uint64) error {
	return r.SetInterruptAndJoinTimeoutTicks(target, MsecToTicks(msec))
}

// SetInterruptAndJoinTimeoutTicks is SetInterruptAndJoinTimeout with a tick
// deadline.
func (r *Runtime) SetInterruptAndJoinTimeoutTicks(target *Fiber, ticks uint64) error {
	me := r.current
	if me == nil {
		return ErrNotFiber
	}
	if target == nil || target.IsDead() || target == me {
		return nil
	}
	r.SetInterrupt(target)
	me.rc = 0
	target.waitq.enqueue(me)
	r.sleepq.insert(me, r.absTicks(ticks), me.prio)
	if rc := r.park(me, StateJoinInterrupted); rc != 0 {
		return RCError(rc)
	}
	return nil
}

// WaitFor spawns a fiber and parks until it exits or msec milliseconds
// elapse. On completion it reports the child's exit code. On timeout (or if
// the caller is interrupted) the child is interrupted and the call returns
// ErrWaitTimeout (or the caller's interrupt error). The child is identified
// by id and generation, so a recycled FCB is never interrupted by mistake.
func (r *Runtime) WaitFor(msec uint64, name string, entry Entry, args ...any) (int, error) {
	return r.WaitForTicks(MsecToTicks(msec), name, entry, args...)
}

// WaitForTicks is WaitFor with a tick deadline.
func (r *Runtime) WaitForTicks(ticks uint64, name string, entry Entry, args ...any) (int, error) {
	me := r.current
	if me == nil {
		return 0, ErrNotFiber
	}
	child := r.Spawn(name, entry, args...)
	cid, cgen := child.id, child.gen
	me.rc = 0
	child.waitq.enqueue(me)
	r.sleepq.insert(me, r.absTicks(ticks), me.prio)
	rc := r.park(me, StateWaitFor)
	switch rc {
	case 0:
		return me.waitRC, RCError(me.waitRC)
	case RCTimedOut:
		if child.id == cid && child.gen == cgen {
			r.SetInterrupt(child)
		}
		return RCWaitTimeout, ErrWaitTimeout
	default:
		if child.id == cid && child.gen == cgen {
			r.SetInterrupt(child)
		}
		return rc, RCError(rc)
	}
}
