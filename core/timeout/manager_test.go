package timeout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/menubot/core/session"
)

const window = 300 * time.Second

func newManual(t *testing.T) (*Manager, *ManualClock) {
	t.Helper()
	clk := NewManualClock(time.Unix(1_700_000_000, 0))
	return NewManager(Options{Window: window, Clock: clk}), clk
}

func TestResetFiresAfterWindow(t *testing.T) {
	m, clk := newManual(t)
	fired := 0

	m.Reset("+1000", func() { fired++ })
	require.True(t, m.Pending("+1000"))

	clk.Advance(window - time.Second)
	assert.Equal(t, 0, fired)

	clk.Advance(time.Second)
	assert.Equal(t, 1, fired)
	assert.False(t, m.Pending("+1000"))
	assert.Equal(t, 0, m.Len())
}

func TestResetDebounces(t *testing.T) {
	m, clk := newManual(t)
	fired := 0
	onExpire := func() { fired++ }

	for i := 0; i < 10; i++ {
		m.Reset("+1000", onExpire)
		clk.Advance(window - time.Second)
	}
	assert.Equal(t, 0, fired, "no expiry while resets keep arriving")
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 1, clk.Pending(), "superseded timers are stopped")

	clk.Advance(time.Second)
	assert.Equal(t, 1, fired, "fires exactly once after the last reset")
}

func TestResetKeepsSendersIndependent(t *testing.T) {
	m, clk := newManual(t)
	var expired []session.SenderID

	m.Reset("a", func() { expired = append(expired, "a") })
	clk.Advance(window / 2)
	m.Reset("b", func() { expired = append(expired, "b") })

	clk.Advance(window / 2)
	assert.Equal(t, []session.SenderID{"a"}, expired)

	clk.Advance(window / 2)
	assert.Equal(t, []session.SenderID{"a", "b"}, expired)
}

func TestCancel(t *testing.T) {
	m, clk := newManual(t)
	fired := false

	m.Reset("+1000", func() { fired = true })
	assert.True(t, m.Cancel("+1000"))
	assert.False(t, m.Cancel("+1000"))

	clk.Advance(2 * window)
	assert.False(t, fired)
	assert.Equal(t, 0, clk.Pending())
}

func TestFireForgetsHandleBeforeCallback(t *testing.T) {
	m, clk := newManual(t)
	var pendingDuringCallback bool

	m.Reset("+1000", func() { pendingDuringCallback = m.Pending("+1000") })
	clk.Advance(window)

	assert.False(t, pendingDuringCallback)
}

func TestStaleFiringIsDropped(t *testing.T) {
	clk := NewManualClock(time.Unix(0, 0))
	var queued []func()
	m := NewManager(Options{
		Window:    window,
		Clock:     clk,
		Serialize: func(fn func()) { queued = append(queued, fn) },
	})
	fired := 0

	m.Reset("+1000", func() { fired++ })
	clk.Advance(window)
	require.Len(t, queued, 1, "timer fired and waits for the critical section")

	// A message arrives before the expiry gets the lock.
	m.Reset("+1000", func() { fired++ })
	queued[0]()
	assert.Equal(t, 0, fired, "superseded expiry must not run")
	assert.True(t, m.Pending("+1000"))

	clk.Advance(window)
	require.Len(t, queued, 2)
	queued[1]()
	assert.Equal(t, 1, fired)
	assert.False(t, m.Pending("+1000"))
}

func TestStaleFiringAfterCancel(t *testing.T) {
	clk := NewManualClock(time.Unix(0, 0))
	var queued []func()
	m := NewManager(Options{
		Window:    window,
		Clock:     clk,
		Serialize: func(fn func()) { queued = append(queued, fn) },
	})
	fired := false

	m.Reset("+1000", func() { fired = true })
	clk.Advance(window)
	m.Cancel("+1000")
	queued[0]()

	assert.False(t, fired)
}

func TestStopCancelsEverything(t *testing.T) {
	m, clk := newManual(t)
	fired := 0
	m.Reset("a", func() { fired++ })
	m.Reset("b", func() { fired++ })

	assert.Equal(t, 2, m.Stop())
	clk.Advance(2 * window)

	assert.Equal(t, 0, fired)
	assert.Equal(t, 0, m.Len())
}

func TestDefaults(t *testing.T) {
	m := NewManager(Options{})
	assert.Equal(t, DefaultWindow, m.Window())
}
