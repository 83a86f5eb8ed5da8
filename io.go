package fiber

import (
	"io"

	"golang.org/x/sys/unix"
)

// The I/O helpers park the calling fiber on the readiness poller and perform
// the non-blocking syscall once the kernel reports the fd ready. File
// descriptors must be in non-blocking mode (Socket and friends arrange
// this); the helpers never own or close a caller's fd.

// defaultWBufLen stands in for SO_SNDBUF on fds that are not sockets.
const defaultWBufLen = 4096

// WaitForRead parks the calling fiber until fd is readable.
func (r *Runtime) WaitForRead(fd int) error {
	return r.waitForIO(fd, EventRead, StateRead)
}

// WaitForWrite parks the calling fiber until fd is writable.
func (r *Runtime) WaitForWrite(fd int) error {
	return r.waitForIO(fd, EventWrite, StateWrite)
}

func (r *Runtime) waitForIO(fd int, dir IOEvents, st State) error {
	me := r.current
	if me == nil {
		return ErrNotFiber
	}
	me.rc = 0
	if err := r.poller.register(fd, dir, me); err != nil {
		if err == ErrSimultaneous {
			me.rc = RCSimultaneous
		}
		return err
	}
	if rc := r.park(me, st); rc != 0 {
		r.poller.clearEvent(me)
		return RCError(rc)
	}
	return nil
}

// WaitForEvents parks the calling fiber until any of the requested events
// fires on fd, reporting the accumulated set. Events defaults to read and
// write when zero. Unlike the single-direction waits, both directions may
// arrive in one poller batch and both are reported.
func (r *Runtime) WaitForEvents(fd int, events IOEvents) (IOEvents, error) {
	me := r.current
	if me == nil {
		return 0, ErrNotFiber
	}
	if events&(EventRead|EventWrite|EventVnode) == 0 {
		events = EventRead | EventWrite
	}
	me.rc = 0
	me.pd.fired = 0
	for _, dir := range [...]IOEvents{EventRead, EventWrite, EventVnode} {
		if events&dir == 0 {
			continue
		}
		if err := r.poller.register(fd, dir, me); err != nil {
			if err == ErrSimultaneous {
				me.rc = RCSimultaneous
			}
			r.poller.clearEvent(me)
			return 0, err
		}
	}
	rc := r.park(me, StateOtherPoller)
	r.poller.clearEvent(me)
	fired := me.pd.fired
	me.pd.fired = 0
	if rc != 0 {
		return fired, RCError(rc)
	}
	return fired, nil
}

// GetRBufLen parks until fd is readable and returns the byte count the
// kernel has buffered. Zero means EOF on stream fds.
func (r *Runtime) GetRBufLen(fd int) (int, error) {
	if err := r.WaitForRead(fd); err != nil {
		return -1, err
	}
	n, err := sysReadableBytes(fd)
	if err != nil {
		return -1, err
	}
	return n, nil
}

// GetWBufLen parks until fd is writable and returns the kernel send-buffer
// size, falling back to a fixed default on non-socket fds.
func (r *Runtime) GetWBufLen(fd int) (int, error) {
	if err := r.WaitForWrite(fd); err != nil {
		return -1, err
	}
	n, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF)
	if err != nil {
		return defaultWBufLen, nil
	}
	return n, nil
}

// Read parks until fd is readable and performs one read. Returns io.EOF on a
// zero-length read of a stream fd.
func (r *Runtime) Read(fd int, p []byte) (int, error) {
	for {
		if err := r.WaitForRead(fd); err != nil {
			return 0, err
		}
		n, err := unix.Read(fd, p)
		if err == unix.EAGAIN {
			continue
		}
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, io.EOF
		}
		return n, nil
	}
}

// ReadAll reads fd to EOF, parking between kernel buffers. The read size is
// requeried from the kernel each round, so a slow peer costs parks, not
// spins.
func (r *Runtime) ReadAll(fd int) ([]byte, error) {
	var out []byte
	for {
		avail, err := r.GetRBufLen(fd)
		if err != nil {
			return out, err
		}
		if avail == 0 {
			return out, nil
		}
		off := len(out)
		out = append(out, make([]byte, avail)...)
		n, err := unix.Read(fd, out[off:])
		if err == unix.EAGAIN {
			out = out[:off]
			continue
		}
		if err != nil {
			return out[:off], err
		}
		if n == 0 {
			return out[:off], nil
		}
		out = out[:off+n]
	}
}

// WriteAll writes all of p to fd, parking whenever the kernel buffer fills.
func (r *Runtime) WriteAll(fd int, p []byte) error {
	for len(p) > 0 {
		if err := r.WaitForWrite(fd); err != nil {
			return err
		}
		n, err := unix.Write(fd, p)
		if err == unix.EAGAIN {
			continue
		}
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// RecvFrom parks until fd is readable and receives one datagram.
func (r *Runtime) RecvFrom(fd int, p []byte, flags int) (int, unix.Sockaddr, error) {
	for {
		if err := r.WaitForRead(fd); err != nil {
			return 0, nil, err
		}
		n, from, err := unix.Recvfrom(fd, p, flags)
		if err == unix.EAGAIN {
			continue
		}
		if err != nil {
			return 0, nil, err
		}
		return n, from, nil
	}
}

// SendTo parks until fd is writable and sends one datagram.
func (r *Runtime) SendTo(fd int, p []byte, flags int, to unix.Sockaddr) error {
	for {
		if err := r.WaitForWrite(fd); err != nil {
			return err
		}
		err := unix.Sendto(fd, p, flags, to)
		if err == unix.EAGAIN {
			continue
		}
		return err
	}
}

// Accept parks until the listening fd is readable and accepts one
// connection; the returned fd is non-blocking and close-on-exec.
func (r *Runtime) Accept(fd int) (int, unix.Sockaddr, error) {
	for {
		if err := r.WaitForRead(fd); err != nil {
			return -1, nil, err
		}
		nfd, sa, err := sysAccept(fd)
		if err == unix.EAGAIN || err == unix.ECONNABORTED {
			continue
		}
		if err != nil {
			return -1, nil, err
		}
		return nfd, sa, nil
	}
}

// AcceptAll parks until the listening fd is readable, then drains the whole
// pending backlog, returning at least one connection.
func (r *Runtime) AcceptAll(fd int) ([]int, error) {
	nfd, _, err := r.Accept(fd)
	if err != nil {
		return nil, err
	}
	out := []int{nfd}
	for {
		nfd, _, err := sysAccept(fd)
		if err == unix.EAGAIN {
			return out, nil
		}
		if err == unix.ECONNABORTED {
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, nfd)
	}
}

// Connect starts a non-blocking connect on fd and parks until the kernel
// resolves it, reporting the socket-level error if the connect failed.
func (r *Runtime) Connect(fd int, sa unix.Sockaddr) error {
	err := unix.Connect(fd, sa)
	switch err {
	case nil:
		return nil
	case unix.EINPROGRESS, unix.EINTR:
	default:
		return err
	}
	if err := r.WaitForWrite(fd); err != nil {
		return err
	}
	soerr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if soerr != 0 {
		return unix.Errno(soerr)
	}
	return nil
}

// Socket creates a non-blocking, close-on-exec socket ready for the fiber
// I/O helpers.
func (r *Runtime) Socket(domain, typ, proto int) (int, error) {
	return sysSocket(domain, typ, proto)
}

// SocketBind creates a socket, sets SO_REUSEADDR, and binds it.
func (r *Runtime) SocketBind(domain, typ, proto int, sa unix.Sockaddr) (int, error) {
	fd, err := sysSocket(domain, typ, proto)
	if err != nil {
		return -1, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// SocketConnect creates a socket and connects it, parking until the connect
// resolves.
func (r *Runtime) SocketConnect(domain, typ, proto int, sa unix.Sockaddr) (int, error) {
	fd, err := sysSocket(domain, typ, proto)
	if err != nil {
		return -1, err
	}
	if err := r.Connect(fd, sa); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// Sendfile transfers up to count bytes from inFd to outFd in-kernel, parking
// whenever outFd's buffer fills. Returns the total transferred.
func (r *Runtime) Sendfile(outFd, inFd int, offset *int64, count int) (int, error) {
	total := 0
	for count > 0 {
		if err := r.WaitForWrite(outFd); err != nil {
			return total, err
		}
		n, err := unix.Sendfile(outFd, inFd, offset, count)
		if n > 0 {
			total += n
			count -= n
		}
		if err == unix.EAGAIN || err == unix.EINTR {
			continue
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
	}
	return total, nil
}
