package fiber

import "errors"

// IOEvents is a bit set of poller directions and conditions. EventRead,
// EventWrite, and EventVnode double as registration directions; EventError
// and EventHangup only ever appear in delivered events.
type IOEvents uint32

const (
	// EventRead indicates (interest in) fd readability.
	EventRead IOEvents = 1 << iota
	// EventWrite indicates (interest in) fd writability.
	EventWrite
	// EventVnode indicates (interest in) a filesystem event on the fd's
	// vnode. Supported by the kqueue backend only.
	EventVnode
	// EventError indicates the kernel reported an error condition.
	EventError
	// EventHangup indicates the peer closed its end.
	EventHangup
)

func (e IOEvents) String() string {
	var buf []byte
	add := func(s string) {
		if len(buf) > 0 {
			buf = append(buf, '|')
		}
		buf = append(buf, s...)
	}
	if e&EventRead != 0 {
		add("read")
	}
	if e&EventWrite != 0 {
		add("write")
	}
	if e&EventVnode != 0 {
		add("vnode")
	}
	if e&EventError != 0 {
		add("error")
	}
	if e&EventHangup != 0 {
		add("hangup")
	}
	if len(buf) == 0 {
		return "none"
	}
	return string(buf)
}

// Poller registration errors.
var (
	ErrFDOutOfRange     = errors.New("fiber: fd out of range")
	ErrPollerClosed     = errors.New("fiber: poller closed")
	ErrVnodeUnsupported = errors.New("fiber: vnode events unsupported on this platform")
)

// The per-GOOS poller (poller_linux.go, poller_darwin.go) presents a single
// contract to the scheduler:
//
//   - register(fd, dir, f) installs f as the one waiter for (fd, dir); a
//     second registration on an occupied slot fails with ErrSimultaneous and
//     the offending fiber is not parked.
//   - cancel(fd, dir) withdraws interest; clearEvent(f) is the idempotent
//     per-fiber form that withdraws whatever f has registered.
//   - wait(timeoutMs) blocks up to timeoutMs (-1 = forever), then delivers
//     ready events to their fibers through Runtime.deliverEvent. EINTR is
//     swallowed and reported as an empty wait.
//   - armed() counts live user registrations, feeding the scheduler's
//     "anything left to wait for" decision.
//   - wakeup() is the only cross-goroutine entry point: it nudges a blocked
//     wait via the wake fd, which is permanently registered and never parked
//     on by a fiber.
