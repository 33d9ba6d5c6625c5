package engine

import (
	"time"

	"danmakuflow/internal/comment"
	"danmakuflow/internal/player"
	"danmakuflow/internal/settings"
)

// Size is a render surface's extent in pixels.
type Size struct {
	W, H float64
}

// Style is the cosmetic part of the settings applied to every overlay.
type Style struct {
	FontFamily string  `json:"fontFamily"`
	FontSize   float64 `json:"fontSize"`
	Color      string  `json:"color"`
	Opacity    float64 `json:"opacity"`
}

func StyleOf(s settings.Settings) Style {
	return Style{FontFamily: s.FontFamily, FontSize: s.FontSize, Color: s.Color, Opacity: s.Opacity}
}

// Element describes what a surface needs to place a new overlay.
type Element struct {
	ID     uint64
	Text   string
	Origin comment.Origin
	Top    float64
	Style  Style
}

// Surface is where overlays are drawn. Offsets are traveled pixels measured
// leftwards from the element's start position just off the right edge.
//
// Offset must report the element's actual rendered position, not a value
// derived from engine state, since freeze and resume rely on it.
type Surface interface {
	Size() Size
	// Mount places el at offset 0 and returns its rendered width, measured
	// from its text, font and decorations.
	Mount(el Element) (width float64)
	// Move starts linear motion from offset from to offset to over d.
	Move(id uint64, from, to float64, d time.Duration)
	// Pin stops motion and holds the element at offset at.
	Pin(id uint64, at float64)
	Offset(id uint64) float64
	// TrailingEdge is the element's right edge relative to the surface's left edge.
	TrailingEdge(id uint64) float64
	Restyle(id uint64, style Style)
	Remove(id uint64)
	Release()
}

// Player is the clock adapter the engine reads on every tick.
type Player interface {
	CurrentTime() float64
	IsPaused() bool
	Subscribe(fn func(player.Signal)) (cancel func())
}

// Readier is implemented by players that become available asynchronously.
type Readier interface {
	Ready() <-chan struct{}
}

// SettingsSource hands out the current settings snapshot.
type SettingsSource interface {
	Snapshot() settings.Settings
}

// Target bundles the collaborators of one attachment.
type Target struct {
	Surface Surface
	Player  Player
}
