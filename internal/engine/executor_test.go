package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualExecutorOrder(t *testing.T) {
	m := NewManualExecutor(nil)
	var got []string
	m.Every(time.Second, func() { got = append(got, "tick") })
	m.AfterFunc(time.Second, func() { got = append(got, "once") })
	m.AfterFunc(1500*time.Millisecond, func() { got = append(got, "half") })
	stopped := m.AfterFunc(time.Second, func() { got = append(got, "never") })
	stopped.Stop()

	m.Advance(2 * time.Second)
	assert.Equal(t, []string{"tick", "once", "half", "tick"}, got)
	assert.Equal(t, 1, m.Pending())
	assert.Equal(t, time.Unix(0, 0).Add(2*time.Second), m.Clock().Now())
}

func TestManualExecutorTimerArmedFromCallback(t *testing.T) {
	m := NewManualExecutor(nil)
	var fired time.Time
	m.AfterFunc(time.Second, func() {
		m.AfterFunc(time.Second, func() { fired = m.Clock().Now() })
	})
	m.Advance(5 * time.Second)
	assert.Equal(t, time.Unix(0, 0).Add(2*time.Second), fired)
}

func runLoop(t *testing.T, clk clock.Clock) *Loop {
	t.Helper()
	l := NewLoop(clk, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l
}

func TestLoopDo(t *testing.T) {
	l := runLoop(t, nil)
	n := 0
	for i := 0; i < 10; i++ {
		l.Post(func() { n++ })
	}
	var got int
	require.True(t, l.Do(func() { got = n }))
	assert.Equal(t, 10, got)
}

func TestLoopRecoversPanics(t *testing.T) {
	l := runLoop(t, nil)
	l.Post(func() { panic("boom") })
	assert.True(t, l.Do(func() {}))
}

func TestLoopDoAfterStop(t *testing.T) {
	l := NewLoop(nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l.Run(ctx)
	assert.False(t, l.Do(func() {}))
}

func TestLoopTimers(t *testing.T) {
	l := runLoop(t, nil)

	fired := make(chan struct{})
	l.AfterFunc(10*time.Millisecond, func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}

	var ticks atomic.Int32
	var tk Timer
	require.True(t, l.Do(func() {
		tk = l.Every(5*time.Millisecond, func() { ticks.Add(1) })
	}))
	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.True(t, l.Do(tk.Stop))
	after := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	require.True(t, l.Do(func() {}))
	assert.Equal(t, after, ticks.Load())

	var late atomic.Bool
	require.True(t, l.Do(func() {
		l.AfterFunc(time.Millisecond, func() { late.Store(true) }).Stop()
	}))
	time.Sleep(20 * time.Millisecond)
	require.True(t, l.Do(func() {}))
	assert.False(t, late.Load())
}
