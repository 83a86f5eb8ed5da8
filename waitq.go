package fiber

// waitQueue is an insertion-ordered intrusive list of fibers parked on one
// event or object. The queue does not own its members; each member's
// hostingWaitq back-pointer records where it is parked.
type waitQueue struct {
	head *Fiber
	tail *Fiber
	size int
}

// enqueue links f at the tail. f must not already be on a wait queue.
func (q *waitQueue) enqueue(f *Fiber) {
	f.hostingWaitq = q
	f.waitPrev = q.tail
	f.waitNext = nil
	if q.tail != nil {
		q.tail.waitNext = f
	} else {
		q.head = f
	}
	q.tail = f
	q.size++
}

// remove unlinks f if it is parked here; a no-op otherwise.
func (q *waitQueue) remove(f *Fiber) {
	if f.hostingWaitq != q {
		return
	}
	if f.waitPrev != nil {
		f.waitPrev.waitNext = f.waitNext
	} else {
		q.head = f.waitNext
	}
	if f.waitNext != nil {
		f.waitNext.waitPrev = f.waitPrev
	} else {
		q.tail = f.waitPrev
	}
	f.waitPrev, f.waitNext = nil, nil
	f.hostingWaitq = nil
	q.size--
}

// dequeueHead unlinks and returns the oldest member, or nil.
func (q *waitQueue) dequeueHead() *Fiber {
	f := q.head
	if f != nil {
		q.remove(f)
	}
	return f
}

// detach unlinks f from whatever wait queue currently hosts it, if any.
func detach(f *Fiber) {
	if f.hostingWaitq != nil {
		f.hostingWaitq.remove(f)
	}
}
