package fiber

import "testing"

func testFiber(id int64) *Fiber {
	return &Fiber{id: id, pd: pollerData{fd: -1}, resume: make(chan struct{})}
}

func TestSleepQueueOrdering(t *testing.T) {
	q := newSleepQueue()
	a, b, c := testFiber(1), testFiber(2), testFiber(3)
	q.insert(a, 300, false)
	q.insert(b, 100, false)
	q.insert(c, 200, false)
	for i, want := range [...]*Fiber{b, c, a} {
		if got := q.popFront(); got != want {
			t.Fatalf("pop %d = fiber %d, want %d", i, got.id, want.id)
		}
	}
	if q.len() != 0 {
		t.Errorf("len = %d after drain", q.len())
	}
}

func TestSleepQueueBucketFIFO(t *testing.T) {
	q := newSleepQueue()
	a, b, c := testFiber(1), testFiber(2), testFiber(3)
	q.insert(a, 100, false)
	q.insert(b, 100, false)
	q.insert(c, 100, true) // front of the tie bucket
	if q.len() != 1 {
		t.Fatalf("len = %d, want 1 node for a shared deadline", q.len())
	}
	for i, want := range [...]*Fiber{c, a, b} {
		if got := q.popFront(); got != want {
			t.Fatalf("pop %d = fiber %d, want %d", i, got.id, want.id)
		}
	}
}

func TestSleepQueueRemove(t *testing.T) {
	q := newSleepQueue()
	a, b := testFiber(1), testFiber(2)
	q.insert(a, 100, false)
	q.insert(b, 100, false)
	q.remove(a)
	if a.sleepNode != nil || a.expire != ticksUndefined {
		t.Error("removed fiber keeps sleep queue state")
	}
	if !q.contains(b) || q.contains(a) {
		t.Error("contains disagrees after remove")
	}
	if got := q.popFront(); got != b {
		t.Fatalf("popFront = fiber %d, want 2", got.id)
	}
	// Removing a fiber the queue has no record of must be a no-op.
	q.remove(a)
	if q.len() != 0 {
		t.Errorf("len = %d, want 0", q.len())
	}
}

func TestSleepQueueMin(t *testing.T) {
	q := newSleepQueue()
	if q.min() != nil {
		t.Error("min of empty queue")
	}
	f := testFiber(1)
	q.insert(f, 42, false)
	if n := q.min(); n == nil || n.key != 42 {
		t.Errorf("min = %v", n)
	}
	q.remove(f)
	if q.min() != nil {
		t.Error("min after removing the only entry")
	}
}
