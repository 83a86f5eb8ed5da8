package fiber

import (
	"bytes"
	"strings"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithStackSizeValidation(t *testing.T) {
	_, err := New(WithStackSize(0))
	require.Error(t, err)
	_, err = New(WithStackSize(-1))
	require.Error(t, err)

	rt, err := New(WithStackSize(5000))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	assert.Equal(t, 2*pageSize, rt.StackSize(), "rounded up to page granularity")
}

func TestSetStackSizeClamps(t *testing.T) {
	rt := mustRuntime(t)
	assert.Equal(t, defaultStackSize, rt.StackSize())

	old := rt.SetStackSize(1)
	assert.Equal(t, defaultStackSize, old)
	assert.Equal(t, minStackPages*pageSize, rt.StackSize())

	rt.SetStackSize(1 << 30)
	assert.Equal(t, maxStackPages*pageSize, rt.StackSize())
}

func TestStructuredLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(&buf)),
		stumpy.L.WithLevel(logiface.LevelDebug),
	).Logger()
	rt := mustRuntime(t, WithLogger(logger))
	f := rt.Spawn("worker", func(...any) int { return 0 })
	f.Dump()
	require.NoError(t, rt.Loop())

	out := buf.String()
	assert.Contains(t, out, "fiber spawned")
	assert.Contains(t, out, "fiber dump")
	assert.Contains(t, out, "fiber exited")
	assert.Contains(t, out, `"name":"worker"`)
}

func TestMetricsSnapshot(t *testing.T) {
	rt := mustRuntime(t, WithMetrics(true))
	for i := 0; i < 4; i++ {
		rt.Spawn("w", func(...any) int {
			_ = rt.Sleep(1)
			return 0
		})
	}
	victim := rt.Spawn("victim", func(...any) int {
		_ = rt.SleepTicks(Forever)
		return 0
	})
	rt.Spawn("killer", func(...any) int {
		rt.SetInterrupt(victim)
		return 0
	})
	require.NoError(t, rt.Loop())

	m := rt.Metrics()
	assert.Equal(t, int64(6), m.Spawned)
	assert.Equal(t, int64(6), m.Exited)
	assert.Equal(t, int64(6), m.Recycled)
	assert.Equal(t, int64(1), m.Interrupted)
	assert.Positive(t, m.Passes)
	assert.Positive(t, m.RunLatency.Count)
	assert.GreaterOrEqual(t, m.RunLatency.Max, m.RunLatency.P50)
}

func TestMetricsDisabledByDefault(t *testing.T) {
	rt := mustRuntime(t)
	rt.Spawn("w", func(...any) int { return 0 })
	require.NoError(t, rt.Loop())
	assert.Zero(t, rt.Metrics())
}

func TestRCTaxonomy(t *testing.T) {
	for _, rc := range []int{
		RCExited, RCUserInterrupted, RCTimedOut, RCSimultaneous,
		RCPoller, RCJoinFailure, RCWaitTimeout, RCTryAcquireFail, RCGenClosed,
	} {
		assert.True(t, IsLibraryRC(rc), "rc %x", rc)
		assert.Error(t, RCError(rc), "rc %x", rc)
	}
	assert.False(t, IsLibraryRC(RCOK))
	assert.False(t, IsLibraryRC(42))
	assert.NoError(t, RCError(RCOK))
	assert.NoError(t, RCError(42))
}

func TestStateStrings(t *testing.T) {
	for s := StateDormant; s <= StatePeek; s++ {
		if strings.HasPrefix(s.String(), "Unknown") {
			t.Errorf("state %d has no name", s)
		}
	}
	if !strings.HasPrefix(State(200).String(), "Unknown") {
		t.Error("out-of-range state should stringify as Unknown")
	}
}
