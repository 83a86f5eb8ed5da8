package fiber

// Signal is a single-slot rendezvous: at most one fiber is parked on it at a
// time, and a send resumes exactly that fiber. Sends with nobody subscribed
// are dropped silently, which makes Signal level-free: the sender never
// blocks and never accumulates state.
type Signal struct {
	rt    *Runtime
	owner *Fiber
}

// NewSignal creates a signal bound to this runtime.
func (r *Runtime) NewSignal() *Signal {
	return &Signal{rt: r}
}

// HasOwner reports whether a fiber is currently parked on the signal.
func (s *Signal) HasOwner() bool {
	return s.owner != nil && s.owner.state == StateSignalSubscribe
}

// Subscribe parks the calling fiber until Send, Error, or an interrupt.
// Returns nil on Send, the mapped sentinel otherwise.
func (s *Signal) Subscribe() error {
	return RCError(s.subscribe(ticksUndefined))
}

// SubscribeTicks is Subscribe with a deadline; ErrTimedOut if nothing arrives
// within ticks.
func (s *Signal) SubscribeTicks(ticks uint64) error {
	return RCError(s.subscribe(ticks))
}

// SubscribeMsec is Subscribe with a millisecond deadline.
func (s *Signal) SubscribeMsec(msec uint64) error {
	return RCError(s.subscribe(MsecToTicks(msec)))
}

func (s *Signal) subscribe(ticks uint64) int {
	me := s.rt.current
	if me == nil {
		return RCJoinFailure
	}
	s.owner = me
	me.rc = 0
	if ticks != ticksUndefined {
		s.rt.sleepq.insert(me, s.rt.absTicks(ticks), me.prio)
	}
	rc := s.rt.park(me, StateSignalSubscribe)
	if s.owner == me {
		s.owner = nil
	}
	return rc
}

// Send resumes the subscribed fiber with a zero rc. A send with no live
// subscriber is dropped.
func (s *Signal) Send() {
	s.deliver(0)
}

// Error resumes the subscribed fiber with a nonzero rc, making its Subscribe
// return the corresponding sentinel. Dropped if nobody is subscribed.
func (s *Signal) Error(rc int) {
	s.deliver(rc)
}

// ErrorAndJoin delivers rc like Error, then parks until the subscriber's
// entry returns. Used to tear down a peer and wait for it to unwind.
func (s *Signal) ErrorAndJoin(rc int) error {
	f := s.owner
	if f == nil || f.state != StateSignalSubscribe {
		return nil
	}
	s.deliver(rc)
	_, err := s.rt.Join(f)
	return err
}

func (s *Signal) deliver(rc int) {
	f := s.owner
	if f == nil || f.state != StateSignalSubscribe {
		return
	}
	s.owner = nil
	f.rc = rc
	s.rt.scheduleResume(f)
}
