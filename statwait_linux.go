//go:build linux

package fiber

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

const statWaitMask = unix.IN_ATTRIB | unix.IN_MODIFY | unix.IN_CLOSE_WRITE |
	unix.IN_DELETE_SELF | unix.IN_MOVE_SELF

// StatWait parks the calling fiber until the file at path changes (write,
// attribute change, delete, or rename). EventHangup is set when the watched
// file itself went away. The watch lives only for this one call.
func (r *Runtime) StatWait(path string) (IOEvents, error) {
	ifd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return 0, err
	}
	defer unix.Close(ifd)
	if _, err := unix.InotifyAddWatch(ifd, path, statWaitMask); err != nil {
		return 0, err
	}
	if err := r.WaitForRead(ifd); err != nil {
		return 0, err
	}
	var buf [4096]byte
	n, err := unix.Read(ifd, buf[:])
	if err != nil {
		return 0, err
	}
	fired := EventVnode
	for off := 0; off+unix.SizeofInotifyEvent <= n; {
		ev := (*unix.InotifyEvent)(unsafe.Pointer(&buf[off]))
		if ev.Mask&(unix.IN_DELETE_SELF|unix.IN_MOVE_SELF|unix.IN_IGNORED) != 0 {
			fired |= EventHangup
		}
		off += unix.SizeofInotifyEvent + int(ev.Len)
	}
	return fired, nil
}
