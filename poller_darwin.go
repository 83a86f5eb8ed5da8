//go:build darwin

package fiber

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// kqWatcher records the (at most one) waiting fiber per kqueue filter of one
// fd.
type kqWatcher struct {
	read  *Fiber
	write *Fiber
	vnode *Fiber
}

// poller is the kqueue backend. Registrations and cancellations accumulate
// in a pending changelist which is submitted together with the event fetch in
// a single Kevent call, with the scheduler's computed timeout. Change errors
// come back as events flagged EV_ERROR and are delivered as poller failures.
type poller struct {
	rt        *Runtime
	kq        int
	watchers  map[int]*kqWatcher
	changes   []unix.Kevent_t
	armedN    int
	wakeFd    int
	wakeWr    int
	wakeBuf   [64]byte
	eventBuf  [256]unix.Kevent_t
	closed    bool
}

func (p *poller) init(rt *Runtime) error {
	p.rt = rt
	p.kq = -1
	p.wakeFd = -1
	p.wakeWr = -1
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	unix.CloseOnExec(kq)

	// Self-pipe for cross-goroutine wakeups.
	var fds [2]int
	if err := syscall.Pipe(fds[:]); err != nil {
		_ = unix.Close(kq)
		return err
	}
	for _, fd := range fds {
		syscall.CloseOnExec(fd)
		if err := syscall.SetNonblock(fd, true); err != nil {
			_ = unix.Close(kq)
			_ = unix.Close(fds[0])
			_ = unix.Close(fds[1])
			return err
		}
	}

	wake := unix.Kevent_t{
		Ident:  uint64(fds[0]),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
	}
	if _, err := unix.Kevent(kq, []unix.Kevent_t{wake}, nil, nil); err != nil {
		_ = unix.Close(kq)
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
		return err
	}

	p.kq = kq
	p.wakeFd = fds[0]
	p.wakeWr = fds[1]
	p.watchers = make(map[int]*kqWatcher)
	return nil
}

func (p *poller) close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	if p.wakeFd >= 0 {
		_ = unix.Close(p.wakeFd)
		_ = unix.Close(p.wakeWr)
	}
	if p.kq >= 0 {
		return unix.Close(p.kq)
	}
	return nil
}

func (p *poller) armed() int { return p.armedN }

func dirToFilter(dir IOEvents) int16 {
	switch dir {
	case EventRead:
		return unix.EVFILT_READ
	case EventWrite:
		return unix.EVFILT_WRITE
	case EventVnode:
		return unix.EVFILT_VNODE
	}
	return 0
}

func filterToDir(filter int16) IOEvents {
	switch filter {
	case unix.EVFILT_READ:
		return EventRead
	case unix.EVFILT_WRITE:
		return EventWrite
	case unix.EVFILT_VNODE:
		return EventVnode
	}
	return 0
}

func (w *kqWatcher) slot(dir IOEvents) **Fiber {
	switch dir {
	case EventRead:
		return &w.read
	case EventWrite:
		return &w.write
	case EventVnode:
		return &w.vnode
	}
	return nil
}

func (w *kqWatcher) empty() bool {
	return w.read == nil && w.write == nil && w.vnode == nil
}

// register queues an EV_ADD for (fd, dir) with f as the waiter. A second
// fiber on an occupied slot is refused with ErrSimultaneous without being
// parked.
func (p *poller) register(fd int, dir IOEvents, f *Fiber) error {
	if p.closed {
		return ErrPollerClosed
	}
	if fd < 0 {
		return ErrFDOutOfRange
	}
	w := p.watchers[fd]
	if w == nil {
		w = &kqWatcher{}
	}
	slot := w.slot(dir)
	if slot == nil {
		return ErrFDOutOfRange
	}
	if *slot != nil {
		return ErrSimultaneous
	}

	kev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: dirToFilter(dir),
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
	}
	if dir == EventVnode {
		kev.Flags |= unix.EV_CLEAR
		kev.Fflags = unix.NOTE_WRITE | unix.NOTE_EXTEND | unix.NOTE_ATTRIB |
			unix.NOTE_DELETE | unix.NOTE_RENAME
	}
	p.changes = append(p.changes, kev)

	*slot = f
	p.watchers[fd] = w
	f.pd.fd = fd
	f.pd.registered |= dir
	p.armedN++
	return nil
}

// cancel queues an EV_DELETE for (fd, dir); a no-op when nothing is
// registered. A pending, not-yet-submitted EV_ADD for the same slot is
// dropped from the changelist instead.
func (p *poller) cancel(fd int, dir IOEvents) {
	w := p.watchers[fd]
	if w == nil {
		return
	}
	slot := w.slot(dir)
	if slot == nil || *slot == nil {
		return
	}
	f := *slot
	*slot = nil
	f.pd.registered &^= dir
	p.armedN--
	if w.empty() {
		delete(p.watchers, fd)
	}

	filter := dirToFilter(dir)
	for i, kev := range p.changes {
		if int(kev.Ident) == fd && kev.Filter == filter && kev.Flags&unix.EV_ADD != 0 {
			p.changes = append(p.changes[:i], p.changes[i+1:]...)
			return
		}
	}
	if p.closed {
		return
	}
	p.changes = append(p.changes, unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: filter,
		Flags:  unix.EV_DELETE,
	})
}

// clearEvent withdraws whatever f has registered; idempotent.
func (p *poller) clearEvent(f *Fiber) {
	if f.pd.registered == 0 {
		return
	}
	fd := f.pd.fd
	for _, dir := range [...]IOEvents{EventRead, EventWrite, EventVnode} {
		if f.pd.registered&dir != 0 {
			p.cancel(fd, dir)
		}
	}
	f.pd.registered = 0
}

// wakeup nudges a blocked wait. Safe to call from any goroutine.
func (p *poller) wakeup() error {
	_, err := unix.Write(p.wakeWr, []byte{1})
	return err
}

func (p *poller) drainWake() {
	for {
		if _, err := unix.Read(p.wakeFd, p.wakeBuf[:]); err != nil {
			return
		}
	}
}

// wait submits the pending changelist and blocks up to timeoutMs (-1 =
// forever), then delivers ready events. EINTR is swallowed; the changelist is
// retried on the next pass in that case.
func (p *poller) wait(timeoutMs int) error {
	if p.closed {
		return ErrPollerClosed
	}
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeoutMs / 1000),
			Nsec: int64(timeoutMs%1000) * 1e6,
		}
	}
	changes := p.changes
	p.changes = p.changes[:0]
	n, err := unix.Kevent(p.kq, changes, p.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			p.changes = append(p.changes, changes...)
			return nil
		}
		return err
	}
	for i := 0; i < n; i++ {
		kev := &p.eventBuf[i]
		fd := int(kev.Ident)
		if fd == p.wakeFd {
			p.drainWake()
			continue
		}
		dir := filterToDir(kev.Filter)
		if dir == 0 {
			continue
		}
		w := p.watchers[fd]
		if w == nil {
			continue
		}
		slot := w.slot(dir)
		if slot == nil || *slot == nil {
			continue
		}
		pollErr := kev.Flags&unix.EV_ERROR != 0
		p.rt.deliverEvent(*slot, dir, pollErr)
	}
	return nil
}
