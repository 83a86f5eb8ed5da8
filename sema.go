package fiber

// Sema is a counting semaphore over Cond. i is the number of available
// permits, 0 <= i <= n at all times.
type Sema struct {
	cond *Cond
	n    int
	i    int
}

// NewSema creates a semaphore with n permits, all available.
func (r *Runtime) NewSema(n int) *Sema {
	if n < 1 {
		n = 1
	}
	return &Sema{cond: r.NewCond(), n: n, i: n}
}

// Acquire takes a permit, parking while none is available. The availability
// check loops: a wakeup only means a permit was released, another fiber
// scheduled earlier may have taken it first.
func (s *Sema) Acquire() error {
	for s.i == 0 {
		if err := s.cond.Wait(); err != nil {
			return err
		}
	}
	s.i--
	return nil
}

// AcquireTicks is Acquire with a deadline; ErrTimedOut when no permit frees
// up in time.
func (s *Sema) AcquireTicks(ticks uint64) error {
	deadline := s.cond.rt.absTicks(ticks)
	for s.i == 0 {
		now := s.cond.rt.clock.now()
		if now >= deadline {
			return ErrTimedOut
		}
		if err := RCError(s.cond.wait(deadline - now)); err != nil {
			return err
		}
	}
	s.i--
	return nil
}

// TryAcquire takes a permit without parking; ErrTryAcquireFail when none is
// available.
func (s *Sema) TryAcquire() error {
	if s.i == 0 {
		return ErrTryAcquireFail
	}
	s.i--
	return nil
}

// Release returns a permit and schedules one waiter.
func (s *Sema) Release() {
	s.cond.SignalOne()
	if s.i < s.n {
		s.i++
	}
}

// Available returns the number of free permits.
func (s *Sema) Available() int { return s.i }

// InvertedSema tracks active holders so that a fiber can park until capacity
// frees up. Acquire and Release never park; Wait parks while all n slots are
// held.
type InvertedSema struct {
	cond *Cond
	n    int
	i    int
}

// NewInvertedSema creates an inverted semaphore with n slots, none held.
func (r *Runtime) NewInvertedSema(n int) *InvertedSema {
	if n < 1 {
		n = 1
	}
	return &InvertedSema{cond: r.NewCond(), n: n}
}

// Acquire marks a slot held. Signals one waiter so that anything parked on a
// state change re-checks the count.
func (s *InvertedSema) Acquire() {
	if s.i < s.n {
		s.i++
	}
	s.cond.SignalOne()
}

// Release frees a slot and schedules one waiter, which may now observe spare
// capacity.
func (s *InvertedSema) Release() {
	if s.i > 0 {
		s.i--
	}
	s.cond.SignalOne()
}

// Wait parks the calling fiber while every slot is held, returning once
// capacity is spare.
func (s *InvertedSema) Wait() error {
	for s.i >= s.n {
		if err := s.cond.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// Held returns the number of held slots.
func (s *InvertedSema) Held() int { return s.i }
