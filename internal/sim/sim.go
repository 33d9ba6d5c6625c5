// Package sim plays a comment file against a scripted playback clock without
// a browser. Time is driven by a manual executor, so a run is deterministic
// and finishes as fast as the engine can process it.
package sim

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"danmakuflow/internal/comment"
	"danmakuflow/internal/engine"
	"danmakuflow/internal/player"
	"danmakuflow/internal/render"
	"danmakuflow/internal/settings"
)

// Action is a scripted playback change.
type Action string

const (
	ActPause Action = "pause"
	ActPlay  Action = "play"
	ActSeek  Action = "seek"
)

// Event applies an action once the run's elapsed time reaches At.
type Event struct {
	At     time.Duration
	Action Action
	// To is the seek target in playback seconds.
	To float64
}

// ParseEvent reads "pause@30s", "play@45s" or "seek@1m=12.5".
func ParseEvent(s string) (Event, error) {
	name, rest, ok := strings.Cut(strings.TrimSpace(s), "@")
	if !ok {
		return Event{}, fmt.Errorf("event %q: want action@time", s)
	}
	ev := Event{Action: Action(strings.ToLower(name))}
	at := rest
	if ev.Action == ActSeek {
		var to string
		if at, to, ok = strings.Cut(rest, "="); !ok {
			return Event{}, fmt.Errorf("event %q: seek needs =target", s)
		}
		v, err := strconv.ParseFloat(to, 64)
		if err != nil || v < 0 {
			return Event{}, fmt.Errorf("event %q: bad seek target", s)
		}
		ev.To = v
	} else if ev.Action != ActPause && ev.Action != ActPlay {
		return Event{}, fmt.Errorf("event %q: unknown action %q", s, name)
	}
	d, err := time.ParseDuration(at)
	if err != nil {
		return Event{}, fmt.Errorf("event %q: %w", s, err)
	}
	if d < 0 {
		return Event{}, fmt.Errorf("event %q: negative time", s)
	}
	ev.At = d
	return ev, nil
}

type Config struct {
	Comments []comment.Comment
	Settings settings.Settings
	Size     engine.Size
	Duration time.Duration
	// Step is how often the simulated page reports its clock.
	Step time.Duration
	Events  []Event
	Metrics *render.Metrics
	Logger  zerolog.Logger
}

// Report summarizes a run.
type Report struct {
	Steps     int
	Spawned   int
	Removed   int
	Pins      int
	MaxLive   int
	Live      int
	Scheduled int
	// FirstSpawn maps a comment's text to the elapsed time it first appeared.
	FirstSpawn map[string]time.Duration
}

// Run executes a simulation to completion.
func Run(cfg Config) (Report, error) {
	if cfg.Step <= 0 {
		cfg.Step = engine.DefaultTickInterval
	}
	if cfg.Size.W <= 0 || cfg.Size.H <= 0 {
		cfg.Size = engine.Size{W: 1280, H: 720}
	}
	events := append([]Event(nil), cfg.Events...)
	sort.SliceStable(events, func(i, j int) bool { return events[i].At < events[j].At })

	clk := clock.NewMock()
	start := clk.Now()
	exec := engine.NewManualExecutor(clk)
	rep := Report{FirstSpawn: make(map[string]time.Duration)}

	sink := render.SinkFunc(func(cmd render.Command) {
		switch cmd.Op {
		case render.OpSpawn:
			rep.Spawned++
			if _, ok := rep.FirstSpawn[cmd.Text]; !ok {
				rep.FirstSpawn[cmd.Text] = clk.Now().Sub(start)
			}
		case render.OpRemove:
			rep.Removed++
		case render.OpPin:
			rep.Pins++
		}
		cfg.Logger.Trace().Str("op", string(cmd.Op)).Uint64("id", cmd.ID).Str("text", cmd.Text).Msg("[sim] command")
	})
	stage := render.NewStage(clk, cfg.Metrics, sink, cfg.Size)

	p := player.NewRemote()
	pos, paused := 0.0, false
	p.Report(pos, paused)

	eng := engine.New(exec, settings.NewStore(cfg.Settings), engine.Options{Logger: &cfg.Logger})
	eng.UpdateSchedule(cfg.Comments)
	if err := eng.Attach(engine.Target{Surface: stage, Player: p}); err != nil {
		return rep, err
	}
	defer eng.Detach()

	next := 0
	for elapsed := time.Duration(0); elapsed < cfg.Duration; elapsed += cfg.Step {
		for next < len(events) && events[next].At <= elapsed {
			ev := events[next]
			next++
			switch ev.Action {
			case ActPause:
				paused = true
				p.Report(pos, paused)
				p.Emit(player.Pause)
			case ActPlay:
				paused = false
				p.Report(pos, paused)
				p.Emit(player.Play)
			case ActSeek:
				p.Emit(player.SeekStart)
				pos = ev.To
				p.Report(pos, paused)
				p.Emit(player.SeekEnd)
			}
			cfg.Logger.Debug().Dur("elapsed", elapsed).Str("action", string(ev.Action)).Float64("position", pos).Msg("[sim] event")
		}

		p.Report(pos, paused)
		exec.Advance(cfg.Step)
		if !paused {
			pos += cfg.Step.Seconds()
		}
		rep.Steps++
		if n := eng.Count(); n > rep.MaxLive {
			rep.MaxLive = n
		}
	}
	rep.Live = eng.Count()
	rep.Scheduled = eng.Scheduled()
	return rep, nil
}
