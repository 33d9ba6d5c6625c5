package settings

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrUnknownKey   = errors.New("unknown setting")
	ErrInvalidValue = errors.New("invalid setting value")
)

// Settings is a read-only snapshot of the viewer preferences.
type Settings struct {
	Enabled     bool    `yaml:"enabled" json:"enabled"`
	MaxOnScreen int     `yaml:"maxOnScreen" json:"maxOnScreen"`
	SpeedScale  float64 `yaml:"speedScale" json:"speedScale"`
	FontFamily  string  `yaml:"fontFamily" json:"fontFamily"`
	FontSize    float64 `yaml:"fontSize" json:"fontSize"`
	Color       string  `yaml:"color" json:"color"`
	Opacity     float64 `yaml:"opacity" json:"opacity"`
	AreaPercent float64 `yaml:"areaPercent" json:"areaPercent"`
	TrackCount  int     `yaml:"trackCount" json:"trackCount"`
}

const DefaultFontFamily = "system-ui, -apple-system, Segoe UI, Roboto, Arial, sans-serif"

func Default() Settings {
	return Settings{
		Enabled:     true,
		MaxOnScreen: 100,
		SpeedScale:  1.0,
		FontFamily:  DefaultFontFamily,
		FontSize:    16,
		Color:       "#FFFFFF",
		Opacity:     1.0,
		AreaPercent: 100,
		TrackCount:  8,
	}
}

// Cap is the on-screen instance limit.
func (s Settings) Cap() int { return ClampInt(s.MaxOnScreen, 10, 300) }

// Key names one setting. Values match the JSON/YAML field names.
type Key string

const (
	KeyEnabled     Key = "enabled"
	KeyMaxOnScreen Key = "maxOnScreen"
	KeySpeedScale  Key = "speedScale"
	KeyFontFamily  Key = "fontFamily"
	KeyFontSize    Key = "fontSize"
	KeyColor       Key = "color"
	KeyOpacity     Key = "opacity"
	KeyAreaPercent Key = "areaPercent"
	KeyTrackCount  Key = "trackCount"
)

// Cosmetic keys only change how live overlays look.
func (k Key) Cosmetic() bool {
	switch k {
	case KeyFontFamily, KeyFontSize, KeyColor, KeyOpacity:
		return true
	}
	return false
}

// Geometric keys change the track layout.
func (k Key) Geometric() bool {
	return k == KeyAreaPercent || k == KeyTrackCount
}

// With returns a copy of s with key set from its textual value. Numeric values
// are limited to the ranges the settings panel offers.
func (s Settings) With(key Key, raw string) (Settings, error) {
	raw = strings.TrimSpace(raw)
	num := func(lo, hi float64) (float64, error) {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, raw)
		}
		return Clamp(v, lo, hi), nil
	}
	var err error
	var v float64
	switch key {
	case KeyEnabled:
		b, perr := strconv.ParseBool(raw)
		if perr != nil {
			return s, fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, raw)
		}
		s.Enabled = b
	case KeyMaxOnScreen:
		if v, err = num(10, 300); err == nil {
			s.MaxOnScreen = int(math.Round(v))
		}
	case KeySpeedScale:
		if v, err = num(0.5, 2); err == nil {
			s.SpeedScale = v
		}
	case KeyFontSize:
		if v, err = num(10, 36); err == nil {
			s.FontSize = v
		}
	case KeyOpacity:
		if v, err = num(0.2, 1); err == nil {
			s.Opacity = v
		}
	case KeyAreaPercent:
		if v, err = num(10, 100); err == nil {
			s.AreaPercent = v
		}
	case KeyTrackCount:
		if v, err = num(1, 40); err == nil {
			s.TrackCount = int(math.Round(v))
		}
	case KeyFontFamily:
		if raw == "" {
			return s, fmt.Errorf("%w: empty font family", ErrInvalidValue)
		}
		s.FontFamily = raw
	case KeyColor:
		if raw == "" {
			raw = "#FFFFFF"
		}
		s.Color = raw
	default:
		return s, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return s, err
}

func Clamp(n, lo, hi float64) float64 { return math.Min(hi, math.Max(lo, n)) }

func ClampInt(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
