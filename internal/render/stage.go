// Package render keeps a server-side model of a watch page's overlay layer.
//
// A Stage implements engine.Surface. It records every element's motion so it
// can answer where an element is right now, and forwards each change as a
// Command to a Sink (normally the room's websocket hub) for the browser to
// replay with CSS transitions.
package render

import (
	"math"
	"sort"
	"time"

	"github.com/benbjohnson/clock"

	"danmakuflow/internal/comment"
	"danmakuflow/internal/engine"
)

const (
	// startGap is how far past the right edge elements start.
	startGap = 20.0
	// padding is the element's horizontal padding, both sides.
	padding = 12.0
	// iconWidth is the badge plus gap shown before structured comments.
	iconWidth = 20.0
)

// Op names a render command.
type Op string

const (
	OpSpawn   Op = "spawn"
	OpMove    Op = "move"
	OpPin     Op = "pin"
	OpStyle   Op = "style"
	OpRemove  Op = "remove"
	OpRelease Op = "release"
	OpResize  Op = "resize"
)

// Command is one change to the overlay layer as sent to the browser.
// Offsets are traveled pixels, applied as translateX(-offset).
type Command struct {
	Op       Op            `json:"op"`
	ID       uint64        `json:"id,omitempty"`
	Text     string        `json:"text,omitempty"`
	Origin   string        `json:"origin,omitempty"`
	Top      float64       `json:"top,omitempty"`
	Width    float64       `json:"width,omitempty"`
	From     float64       `json:"from,omitempty"`
	To       float64       `json:"to,omitempty"`
	At       float64       `json:"at,omitempty"`
	Duration float64       `json:"duration,omitempty"` // seconds
	Style    *engine.Style `json:"style,omitempty"`
	W        float64       `json:"w,omitempty"`
	H        float64       `json:"h,omitempty"`
}

// Sink receives render commands in order.
type Sink interface {
	Send(cmd Command)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Command)

func (f SinkFunc) Send(cmd Command) { f(cmd) }

type element struct {
	engine.Element
	width float64

	moving bool
	from   float64
	to     float64
	start  time.Time
	dur    time.Duration
	at     float64
}

// Stage is a render surface. It is not safe for concurrent use; it belongs to
// the engine's executor like the engine itself.
type Stage struct {
	clk     clock.Clock
	metrics *Metrics
	sink    Sink
	size    engine.Size
	els     map[uint64]*element
}

var _ engine.Surface = (*Stage)(nil)

func NewStage(clk clock.Clock, metrics *Metrics, sink Sink, size engine.Size) *Stage {
	if clk == nil {
		clk = clock.New()
	}
	if sink == nil {
		sink = SinkFunc(func(Command) {})
	}
	return &Stage{clk: clk, metrics: metrics, sink: sink, size: size, els: make(map[uint64]*element)}
}

func (s *Stage) Size() engine.Size { return s.size }

// Resize records the viewport's new size. Element start positions follow it.
func (s *Stage) Resize(size engine.Size) {
	s.size = size
	s.sink.Send(Command{Op: OpResize, W: size.W, H: size.H})
}

// MeasureText is the text's advance width without decorations.
func (s *Stage) MeasureText(text, family string, size float64) float64 {
	if s.metrics == nil {
		return approxWidth(text, size)
	}
	return s.metrics.Width(text, family, size)
}

func (s *Stage) Mount(el engine.Element) float64 {
	w := s.MeasureText(el.Text, el.Style.FontFamily, el.Style.FontSize) + padding
	if el.Origin == comment.Structured {
		w += iconWidth
	}
	s.els[el.ID] = &element{Element: el, width: w}
	style := el.Style
	s.sink.Send(Command{
		Op:     OpSpawn,
		ID:     el.ID,
		Text:   el.Text,
		Origin: el.Origin.String(),
		Top:    math.Round(el.Top),
		Width:  w,
		Style:  &style,
	})
	return w
}

func (s *Stage) Move(id uint64, from, to float64, d time.Duration) {
	e, ok := s.els[id]
	if !ok {
		return
	}
	e.moving, e.from, e.to, e.start, e.dur = true, from, to, s.clk.Now(), d
	s.sink.Send(Command{Op: OpMove, ID: id, From: from, To: to, Duration: d.Seconds()})
}

func (s *Stage) Pin(id uint64, at float64) {
	e, ok := s.els[id]
	if !ok {
		return
	}
	e.moving, e.at = false, at
	s.sink.Send(Command{Op: OpPin, ID: id, At: at})
}

// Offset is where the element is drawn now, interpolated along its current
// motion.
func (s *Stage) Offset(id uint64) float64 {
	e, ok := s.els[id]
	if !ok {
		return 0
	}
	return e.offset(s.clk.Now())
}

func (e *element) offset(now time.Time) float64 {
	if !e.moving {
		return e.at
	}
	elapsed := now.Sub(e.start)
	if e.dur <= 0 || elapsed >= e.dur {
		return e.to
	}
	if elapsed < 0 {
		return e.from
	}
	return e.from + (e.to-e.from)*float64(elapsed)/float64(e.dur)
}

// TrailingEdge is the element's right edge relative to the surface's left edge.
func (s *Stage) TrailingEdge(id uint64) float64 {
	e, ok := s.els[id]
	if !ok {
		return math.Inf(-1)
	}
	return s.size.W + startGap - e.offset(s.clk.Now()) + e.width
}

func (s *Stage) Restyle(id uint64, style engine.Style) {
	e, ok := s.els[id]
	if !ok {
		return
	}
	e.Style = style
	s.sink.Send(Command{Op: OpStyle, ID: id, Style: &style})
}

func (s *Stage) Remove(id uint64) {
	if _, ok := s.els[id]; !ok {
		return
	}
	delete(s.els, id)
	s.sink.Send(Command{Op: OpRemove, ID: id})
}

// Release drops every element and tells the page to empty its layer.
func (s *Stage) Release() {
	s.els = make(map[uint64]*element)
	s.sink.Send(Command{Op: OpRelease})
}

// Len is the number of mounted elements.
func (s *Stage) Len() int { return len(s.els) }

// Snapshot replays the current layer for a page that just connected: a spawn
// per element followed by its remaining motion or its pin.
func (s *Stage) Snapshot() []Command {
	ids := make([]uint64, 0, len(s.els))
	for id := range s.els {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	now := s.clk.Now()
	out := make([]Command, 0, 2*len(ids)+1)
	out = append(out, Command{Op: OpResize, W: s.size.W, H: s.size.H})
	for _, id := range ids {
		e := s.els[id]
		style := e.Style
		out = append(out, Command{
			Op:     OpSpawn,
			ID:     id,
			Text:   e.Text,
			Origin: e.Origin.String(),
			Top:    math.Round(e.Top),
			Width:  e.width,
			Style:  &style,
		})
		at := e.offset(now)
		if e.moving && at < e.to {
			left := e.dur - now.Sub(e.start)
			out = append(out, Command{Op: OpMove, ID: id, From: at, To: e.to, Duration: left.Seconds()})
		} else {
			out = append(out, Command{Op: OpPin, ID: id, At: at})
		}
	}
	return out
}
