// Package player adapts an external video player's clock for the overlay
// engine. The watch page reports its playback position and discrete
// pause/play/seek events; Remote turns those reports into the engine's view
// of the clock.
package player

import (
	"math"
	"sync"
)

// Signal is a discrete playback event.
type Signal int

const (
	Pause Signal = iota
	Play
	SeekStart
	SeekEnd
)

func (s Signal) String() string {
	switch s {
	case Pause:
		return "pause"
	case Play:
		return "play"
	case SeekStart:
		return "seeking"
	case SeekEnd:
		return "seeked"
	}
	return "unknown"
}

// ParseSignal maps the watch page's event names onto signals.
func ParseSignal(name string) (Signal, bool) {
	switch name {
	case "pause":
		return Pause, true
	case "play":
		return Play, true
	case "seeking":
		return SeekStart, true
	case "seeked":
		return SeekEnd, true
	}
	return 0, false
}

// Remote is the last known state of a player that lives elsewhere.
// Reports may arrive from any goroutine.
type Remote struct {
	mu     sync.RWMutex
	time   float64
	paused bool

	ready     chan struct{}
	readyOnce sync.Once

	nextSub int
	subs    map[int]func(Signal)
}

func NewRemote() *Remote {
	return &Remote{
		ready: make(chan struct{}),
		subs:  make(map[int]func(Signal)),
	}
}

func (r *Remote) CurrentTime() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.time
}

func (r *Remote) IsPaused() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.paused
}

// Ready is closed once the player has reported at least once.
func (r *Remote) Ready() <-chan struct{} { return r.ready }

// Report records the player's position and paused flag.
func (r *Remote) Report(t float64, paused bool) {
	if t < 0 || math.IsNaN(t) || math.IsInf(t, 0) {
		t = 0
	}
	r.mu.Lock()
	r.time = t
	r.paused = paused
	r.mu.Unlock()
	r.readyOnce.Do(func() { close(r.ready) })
}

// Emit updates the paused flag implied by sig and delivers it to subscribers.
func (r *Remote) Emit(sig Signal) {
	r.mu.Lock()
	switch sig {
	case Pause:
		r.paused = true
	case Play:
		r.paused = false
	}
	subs := make([]func(Signal), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()
	for _, fn := range subs {
		fn(sig)
	}
}

// Subscribe registers fn for signals until the returned cancel is called.
func (r *Remote) Subscribe(fn func(Signal)) (cancel func()) {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}
