package fiber

import (
	"testing"
)

func TestJoinDeadFiberFails(t *testing.T) {
	rt := mustRuntime(t)
	dead := rt.Spawn("dead", func(...any) int { return 0 })
	var err error
	rt.Spawn("joiner", func(...any) int {
		_ = rt.Sleep(5) // let the target exit first
		_, err = rt.Join(dead)
		return 0
	})
	if lerr := rt.Loop(); lerr != nil {
		t.Fatalf("Loop: %v", lerr)
	}
	if err != ErrJoinFailure {
		t.Errorf("Join(dead) = %v, want ErrJoinFailure", err)
	}
}

func TestMultipleJoinersAllWake(t *testing.T) {
	rt := mustRuntime(t)
	target := rt.Spawn("target", func(...any) int {
		_ = rt.Sleep(5)
		return 99
	})
	got := make([]int, 3)
	for i := 0; i < 3; i++ {
		rt.Spawn("joiner", func(args ...any) int {
			rc, err := rt.Join(target)
			if err != nil {
				t.Errorf("Join: %v", err)
			}
			got[args[0].(int)] = rc
			return 0
		}, i)
	}
	if err := rt.Loop(); err != nil {
		t.Fatalf("Loop: %v", err)
	}
	for i, rc := range got {
		if rc != 99 {
			t.Errorf("joiner %d got %d, want 99", i, rc)
		}
	}
}

func TestPeekTimesOut(t *testing.T) {
	rt := mustRuntime(t)
	target := rt.Spawn("slow", func(...any) int {
		_ = rt.Sleep(100)
		return 5
	})
	var peekErr error
	var joined int
	rt.Spawn("peeker", func(...any) int {
		_, peekErr = rt.Peek(target, 10)
		joined, _ = rt.Join(target)
		return 0
	})
	if err := rt.Loop(); err != nil {
		t.Fatalf("Loop: %v", err)
	}
	if peekErr != ErrTimedOut {
		t.Errorf("Peek = %v, want ErrTimedOut", peekErr)
	}
	if joined != 5 {
		t.Errorf("Join after Peek = %d, want 5", joined)
	}
}

func TestPeekFastTarget(t *testing.T) {
	rt := mustRuntime(t)
	target := rt.Spawn("fast", func(...any) int {
		_ = rt.Sleep(1)
		return 3
	})
	rt.Spawn("peeker", func(...any) int {
		rc, err := rt.PeekTicks(target, MsecToTicks(500))
		if err != nil {
			t.Errorf("Peek: %v", err)
		}
		if rc != 3 {
			t.Errorf("Peek rc = %d, want 3", rc)
		}
		return 0
	})
	if err := rt.Loop(); err != nil {
		t.Fatalf("Loop: %v", err)
	}
}

func TestWaitForCompletes(t *testing.T) {
	rt := mustRuntime(t)
	rt.Spawn("parent", func(...any) int {
		rc, err := rt.WaitFor(500, "child", func(args ...any) int {
			_ = rt.Sleep(1)
			return args[0].(int)
		}, 17)
		if err != nil {
			t.Errorf("WaitFor: %v", err)
		}
		if rc != 17 {
			t.Errorf("WaitFor rc = %d, want 17", rc)
		}
		return 0
	})
	if err := rt.Loop(); err != nil {
		t.Fatalf("Loop: %v", err)
	}
}

func TestWaitForTimesOutAndInterruptsChild(t *testing.T) {
	rt := mustRuntime(t)
	var childErr error
	rt.Spawn("parent", func(...any) int {
		_, err := rt.WaitForTicks(MsecToTicks(10), "child", func(...any) int {
			childErr = rt.Sleep(1000)
			return 0
		})
		if err != ErrWaitTimeout {
			t.Errorf("WaitFor = %v, want ErrWaitTimeout", err)
		}
		return 0
	})
	if err := rt.Loop(); err != nil {
		t.Fatalf("Loop: %v", err)
	}
	if childErr != ErrUserInterrupted {
		t.Errorf("child sleep = %v, want ErrUserInterrupted", childErr)
	}
}

func TestSetInterruptAndJoin(t *testing.T) {
	rt := mustRuntime(t)
	var targetErr error
	target := rt.Spawn("target", func(...any) int {
		targetErr = rt.SleepTicks(Forever)
		return 0
	})
	rt.Spawn("killer", func(...any) int {
		_ = rt.Sleep(5)
		if err := rt.SetInterruptAndJoin(target); err != nil {
			t.Errorf("SetInterruptAndJoin: %v", err)
		}
		if !target.IsDead() {
			t.Error("target still live after SetInterruptAndJoin")
		}
		return 0
	})
	if err := rt.Loop(); err != nil {
		t.Fatalf("Loop: %v", err)
	}
	if targetErr != ErrUserInterrupted {
		t.Errorf("target sleep = %v, want ErrUserInterrupted", targetErr)
	}
}

func TestSetInterruptAndJoinTimeoutOnStubbornTarget(t *testing.T) {
	rt := mustRuntime(t)
	target := rt.Spawn("stubborn", func(...any) int {
		for i := 0; i < 10; i++ {
			_ = rt.Sleep(10) // ignores interrupts
		}
		return 0
	})
	rt.Spawn("killer", func(...any) int {
		_ = rt.Sleep(1)
		err := rt.SetInterruptAndJoinTimeout(target, 5)
		if err != ErrTimedOut {
			t.Errorf("SetInterruptAndJoinTimeout = %v, want ErrTimedOut", err)
		}
		return 0
	})
	if err := rt.Loop(); err != nil {
		t.Fatalf("Loop: %v", err)
	}
}

func TestInterruptDeadFiberIsNoop(t *testing.T) {
	rt := mustRuntime(t)
	dead := rt.Spawn("dead", func(...any) int { return 0 })
	rt.Spawn("killer", func(...any) int {
		_ = rt.Sleep(5)
		rt.SetInterrupt(dead) // must not disturb the recycled FCB
		rt.SetInterrupt(nil)
		return 0
	})
	if err := rt.Loop(); err != nil {
		t.Fatalf("Loop: %v", err)
	}
	if dead.id != -1 {
		t.Errorf("dead fiber id = %d, want -1", dead.id)
	}
}
