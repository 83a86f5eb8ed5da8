package fiber

// Cond is a condition variable: a wait queue with targeted wakeups. There is
// no associated lock; fibers never run concurrently, so the condition a
// waiter re-checks cannot change between the wakeup and the check.
type Cond struct {
	rt    *Runtime
	waitq waitQueue
}

// NewCond creates a condition variable bound to this runtime.
func (r *Runtime) NewCond() *Cond {
	return &Cond{rt: r}
}

// Wait parks the calling fiber until SignalOne/SignalAll or an interrupt.
func (c *Cond) Wait() error {
	return RCError(c.wait(ticksUndefined))
}

// WaitTicks is Wait with a deadline; ErrTimedOut if nothing arrives in time.
func (c *Cond) WaitTicks(ticks uint64) error {
	return RCError(c.wait(ticks))
}

func (c *Cond) wait(ticks uint64) int {
	me := c.rt.current
	if me == nil {
		return RCJoinFailure
	}
	me.rc = 0
	c.waitq.enqueue(me)
	if ticks != ticksUndefined {
		c.rt.sleepq.insert(me, c.rt.absTicks(ticks), me.prio)
	}
	return c.rt.park(me, StateCondWait)
}

// SignalOne schedules the oldest waiter, if any.
func (c *Cond) SignalOne() {
	if f := c.waitq.dequeueHead(); f != nil {
		f.rc = 0
		c.rt.scheduleResume(f)
	}
}

// SignalAll schedules every waiter, oldest first.
func (c *Cond) SignalAll() {
	for {
		f := c.waitq.dequeueHead()
		if f == nil {
			return
		}
		f.rc = 0
		c.rt.scheduleResume(f)
	}
}

// Waiters returns the number of parked fibers.
func (c *Cond) Waiters() int { return c.waitq.size }
