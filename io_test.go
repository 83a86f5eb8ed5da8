package fiber

import (
	"bytes"
	"io"
	"testing"

	"golang.org/x/sys/unix"
)

func testSocketpair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			t.Fatalf("SetNonblock: %v", err)
		}
	}
	return fds[0], fds[1]
}

func TestWaitForReadWakesOnData(t *testing.T) {
	rt := mustRuntime(t)
	a, b := testSocketpair(t)
	defer unix.Close(a)
	defer unix.Close(b)

	var got []byte
	rt.Spawn("reader", func(...any) int {
		if err := rt.WaitForRead(a); err != nil {
			t.Errorf("WaitForRead: %v", err)
			return 1
		}
		buf := make([]byte, 16)
		n, err := unix.Read(a, buf)
		if err != nil {
			t.Errorf("Read: %v", err)
			return 1
		}
		got = buf[:n]
		return 0
	})
	rt.Spawn("writer", func(...any) int {
		_ = rt.Sleep(5)
		if _, err := unix.Write(b, []byte("ping")); err != nil {
			t.Errorf("Write: %v", err)
		}
		return 0
	})
	if err := rt.Loop(); err != nil {
		t.Fatalf("Loop: %v", err)
	}
	if !bytes.Equal(got, []byte("ping")) {
		t.Errorf("read %q, want %q", got, "ping")
	}
}

func TestSimultaneousReadersRefused(t *testing.T) {
	rt := mustRuntime(t)
	a, b := testSocketpair(t)
	defer unix.Close(a)
	defer unix.Close(b)

	rt.Spawn("first", func(...any) int {
		if err := rt.WaitForRead(a); err != nil {
			t.Errorf("first WaitForRead: %v", err)
		}
		return 0
	})
	rt.Spawn("second", func(...any) int {
		if err := rt.WaitForRead(a); err != ErrSimultaneous {
			t.Errorf("second WaitForRead = %v, want ErrSimultaneous", err)
		}
		if rc := rt.Me().GetRetval(); rc != RCSimultaneous {
			t.Errorf("rc = %#x, want RCSimultaneous", rc)
		}
		return 0
	})
	rt.Spawn("writer", func(...any) int {
		_ = rt.Sleep(5)
		_, _ = unix.Write(b, []byte("x"))
		return 0
	})
	if err := rt.Loop(); err != nil {
		t.Fatalf("Loop: %v", err)
	}
}

func TestGetRBufLenReportsPending(t *testing.T) {
	rt := mustRuntime(t)
	a, b := testSocketpair(t)
	defer unix.Close(a)
	defer unix.Close(b)

	if _, err := unix.Write(b, []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	rt.Spawn("reader", func(...any) int {
		n, err := rt.GetRBufLen(a)
		if err != nil {
			t.Errorf("GetRBufLen: %v", err)
			return 1
		}
		if n != 5 {
			t.Errorf("GetRBufLen = %d, want 5", n)
		}
		buf := make([]byte, n)
		_, _ = unix.Read(a, buf)
		return 0
	})
	if err := rt.Loop(); err != nil {
		t.Fatalf("Loop: %v", err)
	}
}

func TestGetWBufLenOnWritableSocket(t *testing.T) {
	rt := mustRuntime(t)
	a, b := testSocketpair(t)
	defer unix.Close(a)
	defer unix.Close(b)

	rt.Spawn("writer", func(...any) int {
		n, err := rt.GetWBufLen(a)
		if err != nil {
			t.Errorf("GetWBufLen: %v", err)
			return 1
		}
		if n <= 0 {
			t.Errorf("GetWBufLen = %d, want > 0", n)
		}
		return 0
	})
	if err := rt.Loop(); err != nil {
		t.Fatalf("Loop: %v", err)
	}
}

func TestReadAllToEOF(t *testing.T) {
	rt := mustRuntime(t)
	a, b := testSocketpair(t)
	defer unix.Close(a)

	if _, err := unix.Write(b, []byte("the whole payload")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	unix.Close(b)

	rt.Spawn("reader", func(...any) int {
		out, err := rt.ReadAll(a)
		if err != nil {
			t.Errorf("ReadAll: %v", err)
			return 1
		}
		if string(out) != "the whole payload" {
			t.Errorf("ReadAll = %q", out)
		}
		return 0
	})
	if err := rt.Loop(); err != nil {
		t.Fatalf("Loop: %v", err)
	}
}

func TestWriteAllReadRoundTrip(t *testing.T) {
	rt := mustRuntime(t)
	a, b := testSocketpair(t)
	defer unix.Close(a)
	defer unix.Close(b)

	payload := bytes.Repeat([]byte("0123456789abcdef"), 4096)
	var received []byte
	rt.Spawn("reader", func(...any) int {
		buf := make([]byte, 64*1024)
		for len(received) < len(payload) {
			n, err := rt.Read(a, buf)
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Errorf("Read: %v", err)
				return 1
			}
			received = append(received, buf[:n]...)
		}
		return 0
	})
	rt.Spawn("writer", func(...any) int {
		if err := rt.WriteAll(b, payload); err != nil {
			t.Errorf("WriteAll: %v", err)
		}
		return 0
	})
	if err := rt.Loop(); err != nil {
		t.Fatalf("Loop: %v", err)
	}
	if !bytes.Equal(received, payload) {
		t.Errorf("round trip mismatch: got %d bytes, want %d", len(received), len(payload))
	}
}

func TestWaitForEventsReportsWritable(t *testing.T) {
	rt := mustRuntime(t)
	a, b := testSocketpair(t)
	defer unix.Close(a)
	defer unix.Close(b)

	rt.Spawn("waiter", func(...any) int {
		fired, err := rt.WaitForEvents(a, EventRead|EventWrite)
		if err != nil {
			t.Errorf("WaitForEvents: %v", err)
			return 1
		}
		if fired&EventWrite == 0 {
			t.Errorf("fired = %v, want write", fired)
		}
		return 0
	})
	if err := rt.Loop(); err != nil {
		t.Fatalf("Loop: %v", err)
	}
}

func TestWaitForEventsAccumulatesBothDirections(t *testing.T) {
	rt := mustRuntime(t)
	a, b := testSocketpair(t)
	defer unix.Close(a)
	defer unix.Close(b)

	// With data pending and the send buffer empty, read and write readiness
	// arrive in the same poller batch and both must be reported.
	if _, err := unix.Write(b, []byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	rt.Spawn("waiter", func(...any) int {
		fired, err := rt.WaitForEvents(a, EventRead|EventWrite)
		if err != nil {
			t.Errorf("WaitForEvents: %v", err)
			return 1
		}
		if want := EventRead | EventWrite; fired != want {
			t.Errorf("fired = %v, want %v", fired, want)
		}
		return 0
	})
	if err := rt.Loop(); err != nil {
		t.Fatalf("Loop: %v", err)
	}
}

func TestInterruptedIOWaitUnwinds(t *testing.T) {
	rt := mustRuntime(t)
	a, b := testSocketpair(t)
	defer unix.Close(a)
	defer unix.Close(b)

	var ioErr error
	reader := rt.Spawn("reader", func(...any) int {
		ioErr = rt.WaitForRead(a)
		return 0
	})
	rt.Spawn("killer", func(...any) int {
		_ = rt.Sleep(5)
		rt.SetInterrupt(reader)
		return 0
	})
	if err := rt.Loop(); err != nil {
		t.Fatalf("Loop: %v", err)
	}
	if ioErr != ErrUserInterrupted {
		t.Errorf("WaitForRead = %v, want ErrUserInterrupted", ioErr)
	}
}

func TestAcceptConnectRoundTrip(t *testing.T) {
	rt := mustRuntime(t)
	sa := &unix.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}}
	lfd, err := rt.SocketBind(unix.AF_INET, unix.SOCK_STREAM, 0, sa)
	if err != nil {
		t.Fatalf("SocketBind: %v", err)
	}
	defer unix.Close(lfd)
	if err := unix.Listen(lfd, 1); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	bound, err := unix.Getsockname(lfd)
	if err != nil {
		t.Fatalf("Getsockname: %v", err)
	}

	rt.Spawn("server", func(...any) int {
		cfd, _, err := rt.Accept(lfd)
		if err != nil {
			t.Errorf("Accept: %v", err)
			return 1
		}
		defer unix.Close(cfd)
		if err := rt.WriteAll(cfd, []byte("hi")); err != nil {
			t.Errorf("WriteAll: %v", err)
		}
		return 0
	})
	rt.Spawn("client", func(...any) int {
		fd, err := rt.SocketConnect(unix.AF_INET, unix.SOCK_STREAM, 0, bound)
		if err != nil {
			t.Errorf("SocketConnect: %v", err)
			return 1
		}
		defer unix.Close(fd)
		buf := make([]byte, 2)
		if _, err := rt.Read(fd, buf); err != nil {
			t.Errorf("Read: %v", err)
			return 1
		}
		if string(buf) != "hi" {
			t.Errorf("read %q, want %q", buf, "hi")
		}
		return 0
	})
	if err := rt.Loop(); err != nil {
		t.Fatalf("Loop: %v", err)
	}
}
