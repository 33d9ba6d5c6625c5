// Package engine schedules time-coded comments against a video's playback
// clock and scrolls them across a render surface.
//
// An Engine is not safe for concurrent use. Every method, and every timer it
// arms, runs on the Executor it was created with; callers on other goroutines
// go through Loop.Do or Loop.Post.
package engine

import (
	"time"

	"github.com/rs/zerolog"

	"danmakuflow/internal/comment"
	"danmakuflow/internal/player"
	"danmakuflow/internal/settings"
)

const (
	DefaultTickInterval = 250 * time.Millisecond
	DefaultCullInterval = 250 * time.Millisecond
	// DefaultAwait bounds the startup wait for the player.
	DefaultAwait        = 15 * time.Second
)

type Options struct {
	TickInterval time.Duration
	CullInterval time.Duration
	Logger       *zerolog.Logger
}

type Engine struct {
	exec      Executor
	settings  SettingsSource
	log       zerolog.Logger
	tickEvery time.Duration
	cullEvery time.Duration

	sched   *Scheduler
	enabled bool
	live    []*Instance
	nextID  uint64

	// attachment
	gen         uint64
	surface     Surface
	player      Player
	geom        Geometry
	unsubscribe func()
	tick, cull  Timer
}

func New(exec Executor, src SettingsSource, opts Options) *Engine {
	e := &Engine{
		exec:      exec,
		settings:  src,
		log:       zerolog.Nop(),
		tickEvery: opts.TickInterval,
		cullEvery: opts.CullInterval,
		sched:     NewScheduler(),
		enabled:   true,
	}
	if opts.Logger != nil {
		e.log = *opts.Logger
	}
	if e.tickEvery <= 0 {
		e.tickEvery = DefaultTickInterval
	}
	if e.cullEvery <= 0 {
		e.cullEvery = DefaultCullInterval
	}
	return e
}

// Attach binds the engine to a surface and player, replacing any previous
// attachment, and starts the tick and cull loops.
func (e *Engine) Attach(t Target) error {
	if t.Surface == nil {
		return ErrNoSurface
	}
	if t.Player == nil {
		return ErrNoPlayer
	}
	e.Detach()

	e.gen++
	gen := e.gen
	e.surface = t.Surface
	e.player = t.Player
	e.relayout()
	e.sched.Reset(t.Player.CurrentTime())

	e.unsubscribe = t.Player.Subscribe(func(sig player.Signal) {
		e.exec.Post(func() {
			if e.gen == gen {
				e.HandleSignal(sig)
			}
		})
	})
	e.tick = e.exec.Every(e.tickEvery, func() { e.guard("tick", e.Tick) })
	e.cull = e.exec.Every(e.cullEvery, func() { e.guard("cull", func() { e.Sweep() }) })
	if t.Player.IsPaused() {
		e.FreezeAll()
	}

	e.log.Debug().
		Float64("position", t.Player.CurrentTime()).
		Int("tracks", e.geom.Tracks).
		Int("scheduled", e.sched.Len()).
		Msg("[engine] attached")
	return nil
}

// Attached reports whether a surface is bound.
func (e *Engine) Attached() bool { return e.surface != nil }

// Detach stops both loops, destroys every instance and releases the surface.
// It is a no-op when nothing is attached.
func (e *Engine) Detach() {
	if e.surface == nil {
		return
	}
	if e.tick != nil {
		e.tick.Stop()
		e.tick = nil
	}
	if e.cull != nil {
		e.cull.Stop()
		e.cull = nil
	}
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
	e.Clear()
	e.surface.Release()
	e.surface = nil
	e.player = nil
	e.gen++
	e.log.Debug().Msg("[engine] detached")
}

// UpdateSchedule replaces the comment set.
func (e *Engine) UpdateSchedule(comments []comment.Comment) {
	e.sched.Schedule(comments)
}

// SetEnabled toggles emission locally. The settings' enabled flag must also be
// set for comments to appear.
func (e *Engine) SetEnabled(on bool) { e.enabled = on }

func (e *Engine) Enabled() bool {
	return e.enabled && e.settings.Snapshot().Enabled
}

// ApplyStyleChange reacts to one changed setting. Cosmetic settings restyle
// live instances in place; layout settings only move future spawns.
func (e *Engine) ApplyStyleChange(key settings.Key) {
	if e.surface == nil {
		return
	}
	switch {
	case key.Cosmetic():
		style := StyleOf(e.settings.Snapshot())
		for _, in := range e.live {
			e.surface.Restyle(in.ID, style)
		}
	case key.Geometric():
		e.relayout()
	}
}

// Resize recomputes the track layout from the surface's current size.
func (e *Engine) Resize() {
	if e.surface != nil {
		e.relayout()
	}
}

func (e *Engine) relayout() {
	s := e.settings.Snapshot()
	e.geom = Layout(e.surface.Size().H, s.AreaPercent, s.TrackCount)
}

// Geometry is the current track layout.
func (e *Engine) Geometry() Geometry { return e.geom }

// Instant shows c right away, bypassing the schedule. It reports whether an
// instance was created.
func (e *Engine) Instant(c comment.Comment) bool {
	if e.surface == nil || !e.Enabled() || !c.Valid() {
		return false
	}
	return e.spawn(c) != nil
}

// Count is the number of live instances.
func (e *Engine) Count() int { return len(e.live) }

// Scheduled is the size of the current schedule set.
func (e *Engine) Scheduled() int { return e.sched.Len() }

// Instances returns copies of the live instances in spawn order.
func (e *Engine) Instances() []Instance {
	out := make([]Instance, len(e.live))
	for i, in := range e.live {
		out[i] = *in
		out[i].timer = nil
	}
	return out
}

// Clear destroys every live instance at once.
func (e *Engine) Clear() {
	for len(e.live) > 0 {
		e.destroy(e.live[len(e.live)-1])
	}
}

// FreezeAll pins every moving instance.
func (e *Engine) FreezeAll() {
	for _, in := range e.live {
		e.freeze(in)
	}
}

// ResumeAll restarts every frozen instance.
func (e *Engine) ResumeAll() {
	for _, in := range append([]*Instance(nil), e.live...) {
		e.resume(in)
	}
}

// HandleSignal applies a discrete player event.
func (e *Engine) HandleSignal(sig player.Signal) {
	if e.surface == nil {
		return
	}
	switch sig {
	case player.Pause:
		e.FreezeAll()
	case player.Play:
		e.ResumeAll()
	case player.SeekStart, player.SeekEnd:
		e.Clear()
		e.sched.Reset(e.player.CurrentTime())
	}
	e.log.Debug().Stringer("signal", sig).Int("live", len(e.live)).Msg("[engine] signal")
}

// Tick runs one scheduling step against the player's clock.
func (e *Engine) Tick() {
	if e.surface == nil {
		return
	}
	now := e.player.CurrentTime()
	res := e.sched.Tick(now, e.player.IsPaused(), e.Enabled())
	if res.Discontinuity {
		e.log.Debug().Float64("position", now).Int("cleared", len(e.live)).Msg("[engine] clock jumped")
		e.Clear()
	}
	dropped := 0
	for _, c := range res.Due {
		if e.spawn(c) == nil {
			dropped++
		}
	}
	if dropped > 0 {
		e.log.Debug().Int("dropped", dropped).Int("live", len(e.live)).Msg("[engine] on-screen cap reached")
	}
}

func (e *Engine) tracks() []int {
	out := make([]int, len(e.live))
	for i, in := range e.live {
		out[i] = in.Track
	}
	return out
}

// guard keeps a panicking periodic callback from taking its loop down.
func (e *Engine) guard(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Str("loop", name).Msg("[engine] periodic callback failed")
		}
	}()
	fn()
}
