package fiber

import "container/heap"

// sleepQueue orders fibers by absolute deadline. It is the scheduler's one
// run structure: timed sleeps, wait deadlines, and "run at the next pass"
// (ResumeNow) all live here. Fibers sharing a deadline form a FIFO bucket on
// one node, so equal deadlines resume in insertion order unless a fiber's
// priority steers it to the bucket front.
//
// A min-heap of nodes (the shape of a timer heap) provides ordered access; a
// key map provides O(1) find-or-create on insert, and the intrusive bucket
// links give O(1) removal of a named fiber.
type sleepQueue struct {
	nodes map[uint64]*sleepNode
	h     sleepHeap
}

type sleepNode struct {
	key  uint64
	idx  int
	head *Fiber
	tail *Fiber
}

type sleepHeap []*sleepNode

func (h sleepHeap) Len() int           { return len(h) }
func (h sleepHeap) Less(i, j int) bool { return h[i].key < h[j].key }
func (h sleepHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].idx = i
	h[j].idx = j
}

func (h *sleepHeap) Push(x any) {
	n := x.(*sleepNode)
	n.idx = len(*h)
	*h = append(*h, n)
}

func (h *sleepHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}

func newSleepQueue() *sleepQueue {
	return &sleepQueue{nodes: make(map[uint64]*sleepNode)}
}

func (q *sleepQueue) len() int { return len(q.h) }

// insert places f at the deadline key; front selects the bucket front
// (priority tie-breaking), otherwise f lands at the back. f must not already
// be in the queue.
func (q *sleepQueue) insert(f *Fiber, key uint64, front bool) {
	node := q.nodes[key]
	if node == nil {
		node = &sleepNode{key: key}
		q.nodes[key] = node
		heap.Push(&q.h, node)
	}
	f.sleepNode = node
	f.expire = key
	if front {
		f.sleepPrev = nil
		f.sleepNext = node.head
		if node.head != nil {
			node.head.sleepPrev = f
		} else {
			node.tail = f
		}
		node.head = f
	} else {
		f.sleepPrev = node.tail
		f.sleepNext = nil
		if node.tail != nil {
			node.tail.sleepNext = f
		} else {
			node.head = f
		}
		node.tail = f
	}
}

// remove unlinks f from the queue; a no-op if the queue has no record of it.
// An emptied node is deleted from the heap and the key map.
func (q *sleepQueue) remove(f *Fiber) {
	node := f.sleepNode
	if node == nil {
		return
	}
	if f.sleepPrev != nil {
		f.sleepPrev.sleepNext = f.sleepNext
	} else {
		node.head = f.sleepNext
	}
	if f.sleepNext != nil {
		f.sleepNext.sleepPrev = f.sleepPrev
	} else {
		node.tail = f.sleepPrev
	}
	f.sleepPrev, f.sleepNext = nil, nil
	f.sleepNode = nil
	f.expire = ticksUndefined
	if node.head == nil {
		heap.Remove(&q.h, node.idx)
		delete(q.nodes, node.key)
	}
}

// min returns the node with the earliest deadline, or nil.
func (q *sleepQueue) min() *sleepNode {
	if len(q.h) == 0 {
		return nil
	}
	return q.h[0]
}

// popFront unlinks and returns the oldest fiber of the earliest node, or nil.
func (q *sleepQueue) popFront() *Fiber {
	node := q.min()
	if node == nil {
		return nil
	}
	f := node.head
	q.remove(f)
	return f
}

// contains reports whether f is present (as host or bucket member).
func (q *sleepQueue) contains(f *Fiber) bool {
	return f.sleepNode != nil
}
