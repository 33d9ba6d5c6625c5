package engine

import (
	"math"
	"time"
	"unicode/utf8"

	"danmakuflow/internal/comment"
	"danmakuflow/internal/settings"
)

const (
	baseSpeed     = 110.0
	minBaseSpeed  = 70.0
	lengthPenalty = 40
	minSpeed      = 30.0
	maxSpeed      = 400.0
	travelMargin  = 40.0
	fallbackWidth = 640.0
	fallbackText  = 200.0
	completionLag = 120 * time.Millisecond
	resumeEpsilon = 20 * time.Millisecond
)

// BaseSpeed is the unscaled speed of text. Longer text is slightly slower.
func BaseSpeed(text string) float64 {
	n := utf8.RuneCountInString(text)
	if n > lengthPenalty {
		n = lengthPenalty
	}
	return math.Max(minBaseSpeed, baseSpeed-float64(n))
}

// Speed applies the configured multiplier to BaseSpeed.
func Speed(text string, scale float64) float64 {
	return settings.Clamp(BaseSpeed(text)*settings.Clamp(scale, 0.5, 2), minSpeed, maxSpeed)
}

// Distance is how far an element travels to go from just off the right edge
// to fully past the left edge.
func Distance(surfaceWidth, width float64) float64 {
	if surfaceWidth <= 0 {
		surfaceWidth = fallbackWidth
	}
	if width <= 0 {
		width = fallbackText
	}
	return surfaceWidth + width + travelMargin
}

// RemainingDistance is what is left of distance at the given traveled offset.
func RemainingDistance(distance, offset float64) float64 {
	return math.Max(0, distance-offset)
}

// TravelTime is the time to cover distance at speed.
func TravelTime(distance, speed float64) time.Duration {
	if speed <= 0 {
		return 0
	}
	return time.Duration(distance / speed * float64(time.Second))
}

// spawn mounts c on the least loaded track. It returns nil when the on-screen
// cap is reached.
func (e *Engine) spawn(c comment.Comment) *Instance {
	s := e.settings.Snapshot()
	if len(e.live) >= s.Cap() {
		return nil
	}
	style := StyleOf(s)
	track := ChooseTrack(e.tracks(), e.geom.Tracks)

	e.nextID++
	in := &Instance{
		ID:        e.nextID,
		Comment:   c,
		Track:     track,
		Speed:     Speed(c.Text, s.SpeedScale),
		SpawnedAt: e.player.CurrentTime(),
	}
	in.Width = e.surface.Mount(Element{
		ID:     in.ID,
		Text:   c.Text,
		Origin: c.Origin,
		Top:    e.geom.Top(track),
		Style:  style,
	})
	in.Distance = Distance(e.surface.Size().W, in.Width)
	e.live = append(e.live, in)

	if e.player.IsPaused() {
		e.surface.Pin(in.ID, 0)
		in.Phase = Frozen
		in.Remaining = in.Distance
		in.RemainingDuration = TravelTime(in.Distance, in.Speed)
		return in
	}
	e.move(in, 0)
	return in
}

// move starts in travelling from offset towards its full distance and arms the
// completion timer.
func (e *Engine) move(in *Instance, from float64) {
	d := TravelTime(RemainingDistance(in.Distance, from), in.Speed)
	in.cancelTimer()
	in.Phase = Moving
	e.surface.Move(in.ID, from, in.Distance, d)
	in.timer = e.exec.AfterFunc(d+completionLag, func() {
		in.timer = nil
		e.destroy(in)
	})
}

// freeze pins a moving instance where it is actually rendered.
func (e *Engine) freeze(in *Instance) {
	if in.Phase != Moving {
		return
	}
	at := e.surface.Offset(in.ID)
	in.cancelTimer()
	in.Remaining = RemainingDistance(in.Distance, at)
	in.RemainingDuration = TravelTime(in.Remaining, in.Speed)
	e.surface.Pin(in.ID, at)
	in.Phase = Frozen
}

// resume restarts a frozen instance from its rendered offset. Instances that
// are practically done are destroyed instead.
func (e *Engine) resume(in *Instance) {
	if in.Phase != Frozen {
		return
	}
	at := e.surface.Offset(in.ID)
	if TravelTime(RemainingDistance(in.Distance, at), in.Speed) <= resumeEpsilon {
		e.destroy(in)
		return
	}
	e.move(in, at)
}

// destroy removes in from the surface and the live set.
func (e *Engine) destroy(in *Instance) {
	if in.Phase == Completed {
		return
	}
	in.cancelTimer()
	in.Phase = Completed
	for i, x := range e.live {
		if x == in {
			e.live = append(e.live[:i], e.live[i+1:]...)
			break
		}
	}
	if e.surface != nil {
		e.surface.Remove(in.ID)
	}
}
