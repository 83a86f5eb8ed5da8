package fiber

import "testing"

func TestRWLockReadersShareWritersExclude(t *testing.T) {
	rt := mustRuntime(t)
	l := rt.NewRWLock()
	readersIn, peakReaders := 0, 0
	var writerSawReaders bool
	for i := 0; i < 3; i++ {
		rt.Spawn("reader", func(...any) int {
			if err := l.AcquireRead(); err != nil {
				t.Errorf("AcquireRead: %v", err)
				return 1
			}
			readersIn++
			if readersIn > peakReaders {
				peakReaders = readersIn
			}
			_ = rt.Sleep(5)
			readersIn--
			l.ReleaseRead()
			return 0
		})
	}
	rt.Spawn("writer", func(...any) int {
		_ = rt.Sleep(1)
		if err := l.AcquireWrite(); err != nil {
			t.Errorf("AcquireWrite: %v", err)
			return 1
		}
		writerSawReaders = readersIn > 0
		l.ReleaseWrite()
		return 0
	})
	if err := rt.Loop(); err != nil {
		t.Fatalf("Loop: %v", err)
	}
	if peakReaders != 3 {
		t.Errorf("peak readers = %d, want 3", peakReaders)
	}
	if writerSawReaders {
		t.Error("writer entered while readers held the lock")
	}
	if l.Readers() != 0 || l.HasWriter() {
		t.Errorf("lock not clean: readers=%d writer=%v", l.Readers(), l.HasWriter())
	}
}

func TestRWLockTryVariants(t *testing.T) {
	rt := mustRuntime(t)
	l := rt.NewRWLock()
	rt.Spawn("worker", func(...any) int {
		if err := l.TryAcquireWrite(); err != nil {
			t.Errorf("TryAcquireWrite: %v", err)
		}
		if err := l.TryAcquireRead(); err != ErrTryAcquireFail {
			t.Errorf("TryAcquireRead under writer = %v, want ErrTryAcquireFail", err)
		}
		if err := l.TryAcquireWrite(); err != ErrTryAcquireFail {
			t.Errorf("double TryAcquireWrite = %v, want ErrTryAcquireFail", err)
		}
		l.ReleaseWrite()
		if err := l.TryAcquireRead(); err != nil {
			t.Errorf("TryAcquireRead: %v", err)
		}
		if err := l.TryAcquireWrite(); err != ErrTryAcquireFail {
			t.Errorf("TryAcquireWrite under reader = %v, want ErrTryAcquireFail", err)
		}
		l.ReleaseRead()
		return 0
	})
	if err := rt.Loop(); err != nil {
		t.Fatalf("Loop: %v", err)
	}
}

func TestRWLockWriteReleaseWakesAllReaders(t *testing.T) {
	rt := mustRuntime(t)
	l := rt.NewRWLock()
	woke := 0
	rt.Spawn("writer", func(...any) int {
		if err := l.AcquireWrite(); err != nil {
			t.Errorf("AcquireWrite: %v", err)
			return 1
		}
		_ = rt.Sleep(10)
		l.ReleaseWrite()
		return 0
	})
	for i := 0; i < 3; i++ {
		rt.Spawn("reader", func(...any) int {
			_ = rt.Sleep(1)
			if err := l.AcquireRead(); err != nil {
				t.Errorf("AcquireRead: %v", err)
				return 1
			}
			woke++
			l.ReleaseRead()
			return 0
		})
	}
	if err := rt.Loop(); err != nil {
		t.Fatalf("Loop: %v", err)
	}
	if woke != 3 {
		t.Errorf("woke %d readers, want 3", woke)
	}
}
