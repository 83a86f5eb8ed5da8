//go:build darwin

package fiber

import "golang.org/x/sys/unix"

// StatWait parks the calling fiber until the file at path changes, using an
// EVTONLY descriptor so the open does not block or deny other access. The
// watch lives only for this one call.
func (r *Runtime) StatWait(path string) (IOEvents, error) {
	fd, err := unix.Open(path, unix.O_EVTONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return 0, err
	}
	defer unix.Close(fd)
	return r.WaitForEvents(fd, EventVnode)
}
