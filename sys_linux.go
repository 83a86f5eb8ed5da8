//go:build linux

package fiber

import "golang.org/x/sys/unix"

func sysSocket(domain, typ, proto int) (int, error) {
	return unix.Socket(domain, typ|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, proto)
}

func sysAccept(fd int) (int, unix.Sockaddr, error) {
	return unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
}

// sysReadableBytes queries the kernel for the byte count buffered on fd.
// Linux spells the ioctl TIOCINQ; it is FIONREAD everywhere else.
func sysReadableBytes(fd int) (int, error) {
	return unix.IoctlGetInt(fd, unix.TIOCINQ)
}
