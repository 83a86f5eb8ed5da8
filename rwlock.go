package fiber

// RWLock is a reader-writer lock for fibers: many readers or one writer.
// Writers do not starve readers of each other, but there is no fairness
// machinery beyond the wait queue's FIFO order.
type RWLock struct {
	cond     *Cond
	nreaders int
	fwriter  bool
}

// NewRWLock creates a reader-writer lock bound to this runtime.
func (r *Runtime) NewRWLock() *RWLock {
	return &RWLock{cond: r.NewCond()}
}

// AcquireRead parks while a writer holds the lock, then registers a reader.
func (l *RWLock) AcquireRead() error {
	for l.fwriter {
		if err := l.cond.Wait(); err != nil {
			return err
		}
	}
	l.nreaders++
	return nil
}

// TryAcquireRead registers a reader without parking; ErrTryAcquireFail while
// a writer holds the lock.
func (l *RWLock) TryAcquireRead() error {
	if l.fwriter {
		return ErrTryAcquireFail
	}
	l.nreaders++
	return nil
}

// ReleaseRead drops a reader; the last one out schedules a waiter (a would-be
// writer, if any is parked).
func (l *RWLock) ReleaseRead() {
	if l.nreaders > 0 {
		l.nreaders--
	}
	if l.nreaders == 0 {
		l.cond.SignalOne()
	}
}

// AcquireWrite parks until the lock is completely free, then claims it.
func (l *RWLock) AcquireWrite() error {
	for l.fwriter || l.nreaders > 0 {
		if err := l.cond.Wait(); err != nil {
			return err
		}
	}
	l.fwriter = true
	return nil
}

// TryAcquireWrite claims the lock without parking; ErrTryAcquireFail unless
// completely free.
func (l *RWLock) TryAcquireWrite() error {
	if l.fwriter || l.nreaders > 0 {
		return ErrTryAcquireFail
	}
	l.fwriter = true
	return nil
}

// ReleaseWrite clears the writer and schedules every waiter: all parked
// readers may enter, or one parked writer will win the re-check.
func (l *RWLock) ReleaseWrite() {
	l.fwriter = false
	l.cond.SignalAll()
}

// Readers returns the number of active readers.
func (l *RWLock) Readers() int { return l.nreaders }

// HasWriter reports whether a writer holds the lock.
func (l *RWLock) HasWriter() bool { return l.fwriter }
