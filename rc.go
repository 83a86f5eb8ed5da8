package fiber

import "errors"

// Library return codes live in a tagged negative band so that they can never
// collide with application codes, which must be non-negative. The tag
// occupies the sign bit plus bit 30; IsLibraryRC checks for it.
const rcLibrary = -0x40000000

// Return codes delivered through a fiber's rc slot on resumption, or returned
// directly by try-variants. RCOK is the only code an application should ever
// observe after an undisturbed wait.
const (
	RCOK              = 0
	RCExited          = rcLibrary | 0x01 // fiber entry returned (internal)
	RCUserInterrupted = rcLibrary | 0x02 // delivered by SetInterrupt
	RCTimedOut        = rcLibrary | 0x03 // deadline expired during a wait
	RCSimultaneous    = rcLibrary | 0x04 // second registration on (fd, direction)
	RCPoller          = rcLibrary | 0x05 // kernel reported an error on the event
	RCJoinFailure     = rcLibrary | 0x06 // join target was not resumable
	RCWaitTimeout     = rcLibrary | 0x07 // returned (never stored) by timed waits
	RCTryAcquireFail  = rcLibrary | 0x08 // try-acquire found no capacity
	RCGenClosed       = rcLibrary | 0x09 // generator closed by its consumer
)

// IsLibraryRC reports whether rc is one of the library codes above, as
// opposed to an application-set return value.
func IsLibraryRC(rc int) bool {
	return rc&rcLibrary == rcLibrary
}

// Sentinel errors corresponding to the library return codes. Blocking APIs
// return these (possibly wrapped); match with errors.Is.
var (
	ErrUserInterrupted = errors.New("fiber: wait interrupted")
	ErrTimedOut        = errors.New("fiber: wait timed out")
	ErrSimultaneous    = errors.New("fiber: simultaneous wait on file descriptor")
	ErrPoller          = errors.New("fiber: poller reported an error")
	ErrJoinFailure     = errors.New("fiber: join on a non-resumable fiber")
	ErrWaitTimeout     = errors.New("fiber: wait-for timed out")
	ErrTryAcquireFail  = errors.New("fiber: try-acquire failed")
	ErrGenClosed       = errors.New("fiber: generator closed")
	ErrExited          = errors.New("fiber: fiber exited")
)

// Runtime lifecycle errors.
var (
	ErrRunning   = errors.New("fiber: scheduler loop is already running")
	ErrClosed    = errors.New("fiber: runtime has been closed")
	ErrNotFiber  = errors.New("fiber: blocking call from outside a fiber")
	ErrDeadFiber = errors.New("fiber: operation on a dead fiber")
)

// RCError maps a library return code to its sentinel error. Non-library codes
// (including RCOK) map to nil.
func RCError(rc int) error {
	switch rc {
	case RCExited:
		return ErrExited
	case RCUserInterrupted:
		return ErrUserInterrupted
	case RCTimedOut:
		return ErrTimedOut
	case RCSimultaneous:
		return ErrSimultaneous
	case RCPoller:
		return ErrPoller
	case RCJoinFailure:
		return ErrJoinFailure
	case RCWaitTimeout:
		return ErrWaitTimeout
	case RCTryAcquireFail:
		return ErrTryAcquireFail
	case RCGenClosed:
		return ErrGenClosed
	}
	return nil
}
