//go:build linux

package fiber

import (
	"golang.org/x/sys/unix"
)

// fdWatcher records the (at most one) waiting fiber per direction of one fd,
// plus the epoll mask currently installed for it.
type fdWatcher struct {
	read  *Fiber
	write *Fiber
	mask  uint32
}

// poller is the epoll backend: level-triggered readiness with a table from
// fd to watcher. Registrations are installed eagerly with EPOLL_CTL_ADD/MOD
// and withdrawn on cancel; the wake eventfd is registered for the life of
// the poller and drained inline.
type poller struct {
	rt       *Runtime
	epfd     int
	watchers map[int]*fdWatcher
	armedN   int
	wakeFd   int
	wakeBuf  [8]byte
	eventBuf [256]unix.EpollEvent
	closed   bool
}

func (p *poller) init(rt *Runtime) error {
	p.rt = rt
	p.epfd = -1
	p.wakeFd = -1
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return err
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &ev); err != nil {
		_ = unix.Close(epfd)
		_ = unix.Close(wakeFd)
		return err
	}
	p.epfd = epfd
	p.wakeFd = wakeFd
	p.watchers = make(map[int]*fdWatcher)
	return nil
}

func (p *poller) close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	if p.wakeFd >= 0 {
		_ = unix.Close(p.wakeFd)
	}
	if p.epfd >= 0 {
		return unix.Close(p.epfd)
	}
	return nil
}

func (p *poller) armed() int { return p.armedN }

func dirToEpoll(dir IOEvents) uint32 {
	var mask uint32
	if dir&EventRead != 0 {
		mask |= unix.EPOLLIN
	}
	if dir&EventWrite != 0 {
		mask |= unix.EPOLLOUT
	}
	return mask
}

// register installs f as the waiter for (fd, dir). A second fiber on an
// occupied slot is refused with ErrSimultaneous without being parked.
func (p *poller) register(fd int, dir IOEvents, f *Fiber) error {
	if p.closed {
		return ErrPollerClosed
	}
	if fd < 0 {
		return ErrFDOutOfRange
	}
	if dir&EventVnode != 0 {
		return ErrVnodeUnsupported
	}
	w := p.watchers[fd]
	if w == nil {
		w = &fdWatcher{}
	}
	switch dir {
	case EventRead:
		if w.read != nil {
			return ErrSimultaneous
		}
	case EventWrite:
		if w.write != nil {
			return ErrSimultaneous
		}
	default:
		return ErrFDOutOfRange
	}

	newMask := w.mask | dirToEpoll(dir)
	ev := unix.EpollEvent{Events: newMask, Fd: int32(fd)}
	op := unix.EPOLL_CTL_MOD
	if w.mask == 0 {
		op = unix.EPOLL_CTL_ADD
	}
	if err := unix.EpollCtl(p.epfd, op, fd, &ev); err != nil {
		return err
	}

	if dir == EventRead {
		w.read = f
	} else {
		w.write = f
	}
	w.mask = newMask
	p.watchers[fd] = w
	f.pd.fd = fd
	f.pd.registered |= dir
	p.armedN++
	return nil
}

// cancel withdraws interest in (fd, dir); a no-op when nothing is registered.
func (p *poller) cancel(fd int, dir IOEvents) {
	w := p.watchers[fd]
	if w == nil {
		return
	}
	var f *Fiber
	switch dir {
	case EventRead:
		f = w.read
		w.read = nil
	case EventWrite:
		f = w.write
		w.write = nil
	}
	if f == nil {
		return
	}
	f.pd.registered &^= dir
	p.armedN--

	newMask := w.mask &^ dirToEpoll(dir)
	if p.closed {
		// fds die with the epoll instance; just drop the bookkeeping.
		delete(p.watchers, fd)
		return
	}
	if newMask == 0 {
		_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
		delete(p.watchers, fd)
		return
	}
	ev := unix.EpollEvent{Events: newMask, Fd: int32(fd)}
	_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
	w.mask = newMask
}

// clearEvent withdraws whatever f has registered; idempotent.
func (p *poller) clearEvent(f *Fiber) {
	if f.pd.registered == 0 {
		return
	}
	fd := f.pd.fd
	if f.pd.registered&EventRead != 0 {
		p.cancel(fd, EventRead)
	}
	if f.pd.registered&EventWrite != 0 {
		p.cancel(fd, EventWrite)
	}
	f.pd.registered = 0
}

// wakeup nudges a blocked wait. Safe to call from any goroutine.
func (p *poller) wakeup() error {
	var one uint64 = 1
	buf := [8]byte{}
	buf[0] = byte(one)
	_, err := unix.Write(p.wakeFd, buf[:])
	return err
}

func (p *poller) drainWake() {
	for {
		if _, err := unix.Read(p.wakeFd, p.wakeBuf[:]); err != nil {
			return
		}
	}
}

// wait blocks up to timeoutMs (-1 = forever) and delivers ready events.
// EINTR is swallowed; any other wait failure is fatal to the scheduler.
func (p *poller) wait(timeoutMs int) error {
	if p.closed {
		return ErrPollerClosed
	}
	n, err := unix.EpollWait(p.epfd, p.eventBuf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Fd)
		events := p.eventBuf[i].Events
		if fd == p.wakeFd {
			p.drainWake()
			continue
		}
		pollErr := events&unix.EPOLLERR != 0
		hup := events&unix.EPOLLHUP != 0

		// Re-lookup per delivery: a directly resumed fiber may have changed
		// the registrations for this fd before we deliver the second
		// direction.
		if events&unix.EPOLLIN != 0 || hup || pollErr {
			if w := p.watchers[fd]; w != nil && w.read != nil {
				p.rt.deliverEvent(w.read, EventRead, pollErr)
			}
		}
		if events&unix.EPOLLOUT != 0 || hup || pollErr {
			if w := p.watchers[fd]; w != nil && w.write != nil {
				p.rt.deliverEvent(w.write, EventWrite, pollErr)
			}
		}
	}
	return nil
}
