package engine

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
)

// Timer is a pending callback that can be cancelled.
type Timer interface {
	Stop()
}

// Executor is the single logical thread the engine runs on. Every callback it
// invokes runs to completion before the next one starts.
type Executor interface {
	Post(fn func())
	AfterFunc(d time.Duration, fn func()) Timer
	Every(d time.Duration, fn func()) Timer
}

// Loop is an Executor backed by one goroutine draining a queue of callbacks.
// Timers fire on clock goroutines and are forwarded into the queue.
type Loop struct {
	clk    clock.Clock
	events chan func()
	done   chan struct{}
	log    zerolog.Logger
}

func NewLoop(clk clock.Clock, log zerolog.Logger) *Loop {
	if clk == nil {
		clk = clock.New()
	}
	return &Loop{
		clk:    clk,
		events: make(chan func(), 256),
		done:   make(chan struct{}),
		log:    log,
	}
}

// Run executes queued callbacks until ctx ends.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.events:
			l.run(fn)
		}
	}
}

// Done is closed when Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Interface("panic", r).Msg("[loop] callback panicked")
		}
	}()
	fn()
}

// Post queues fn. Callbacks posted after the loop stopped are dropped.
func (l *Loop) Post(fn func()) {
	select {
	case l.events <- fn:
	case <-l.done:
	}
}

// Do runs fn on the loop and waits for it. It reports false if the loop
// stopped before fn ran.
func (l *Loop) Do(fn func()) bool {
	finished := make(chan struct{})
	select {
	case l.events <- func() { defer close(finished); fn() }:
	case <-l.done:
		return false
	}
	select {
	case <-finished:
		return true
	case <-l.done:
		return false
	}
}

type loopTimer struct {
	stopped bool // owned by the loop goroutine
	stop    func()
}

func (t *loopTimer) Stop() {
	if t.stopped {
		return
	}
	t.stopped = true
	t.stop()
}

func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &loopTimer{}
	ct := l.clk.AfterFunc(d, func() {
		l.Post(func() {
			if t.stopped {
				return
			}
			t.stopped = true
			fn()
		})
	})
	t.stop = func() { ct.Stop() }
	return t
}

func (l *Loop) Every(d time.Duration, fn func()) Timer {
	t := &loopTimer{}
	tk := l.clk.Ticker(d)
	quit := make(chan struct{})
	go func() {
		for {
			select {
			case <-tk.C:
				l.Post(func() {
					if !t.stopped {
						fn()
					}
				})
			case <-quit:
				return
			case <-l.done:
				return
			}
		}
	}()
	t.stop = func() {
		tk.Stop()
		close(quit)
	}
	return t
}

// ManualExecutor runs everything on the caller's goroutine and only moves time
// when Advance is called. Tests and offline simulation use it.
type ManualExecutor struct {
	clk     *clock.Mock
	seq     uint64
	pending []*manualTimer
}

type manualTimer struct {
	at      time.Time
	every   time.Duration
	seq     uint64
	fn      func()
	stopped bool
}

func (t *manualTimer) Stop() { t.stopped = true }

func NewManualExecutor(clk *clock.Mock) *ManualExecutor {
	if clk == nil {
		clk = clock.NewMock()
	}
	return &ManualExecutor{clk: clk}
}

func (m *ManualExecutor) Clock() *clock.Mock { return m.clk }

func (m *ManualExecutor) Post(fn func()) { fn() }

func (m *ManualExecutor) AfterFunc(d time.Duration, fn func()) Timer {
	return m.add(d, 0, fn)
}

func (m *ManualExecutor) Every(d time.Duration, fn func()) Timer {
	if d <= 0 {
		d = time.Millisecond
	}
	return m.add(d, d, fn)
}

func (m *ManualExecutor) add(d, every time.Duration, fn func()) *manualTimer {
	m.seq++
	t := &manualTimer{at: m.clk.Now().Add(d), every: every, seq: m.seq, fn: fn}
	m.pending = append(m.pending, t)
	return t
}

// Pending counts timers that have not fired or been stopped.
func (m *ManualExecutor) Pending() int {
	n := 0
	for _, t := range m.pending {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, firing due timers in deadline order.
// Timers sharing a deadline fire in creation order.
func (m *ManualExecutor) Advance(d time.Duration) {
	end := m.clk.Now().Add(d)
	for {
		t := m.next(end)
		if t == nil {
			break
		}
		if now := m.clk.Now(); t.at.After(now) {
			m.clk.Add(t.at.Sub(now))
		}
		if t.every > 0 {
			t.at = t.at.Add(t.every)
		} else {
			t.stopped = true
		}
		t.fn()
	}
	if now := m.clk.Now(); end.After(now) {
		m.clk.Add(end.Sub(now))
	}
}

func (m *ManualExecutor) next(end time.Time) *manualTimer {
	live := m.pending[:0]
	var best *manualTimer
	for _, t := range m.pending {
		if t.stopped {
			continue
		}
		live = append(live, t)
		if t.at.After(end) {
			continue
		}
		if best == nil || t.at.Before(best.at) || (t.at.Equal(best.at) && t.seq < best.seq) {
			best = t
		}
	}
	for i := len(live); i < len(m.pending); i++ {
		m.pending[i] = nil
	}
	m.pending = live
	return best
}
