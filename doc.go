// Package fiber is a single-threaded cooperative micro-thread runtime for
// Unix daemons. Thousands of fibers multiplex onto the one goroutine that
// calls Runtime.Loop: a fiber runs until it performs a blocking operation
// (sleep, I/O readiness, join, a synchronization primitive), at which point
// it parks and the scheduler picks the next due fiber off a time-ordered
// sleep queue or the readiness poller (epoll on Linux, kqueue on Darwin).
//
// Exactly one fiber (or the scheduler) executes at any instant, so fibers
// share state without locks. The price is cooperation: a fiber that never
// blocks starves the rest, and cancellation (SetInterrupt) is only observed
// at the target's next blocking call.
//
// Fibers are backed by goroutines whose stacks the Go runtime manages and
// grows on demand; control moves between the scheduler and a fiber by
// channel rendezvous, never concurrently. Exited fibers return to a free
// pool and are recycled, goroutine and all.
package fiber
