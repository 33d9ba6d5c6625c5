package engine

import (
	"math"

	"danmakuflow/internal/settings"
)

const (
	fallbackHeight = 360
	minUsable      = 20
	minTrackHeight = 16
	trackInset     = 4
	maxTracks      = 40
)

// Geometry is the vertical track layout of a surface.
type Geometry struct {
	Tracks      int
	TrackHeight float64
}

// Layout splits the top areaPercent of a surface of height h into tracks.
func Layout(h, areaPercent float64, trackCount int) Geometry {
	if h <= 0 || math.IsNaN(h) {
		h = fallbackHeight
	}
	usable := math.Max(minUsable, settings.Clamp(areaPercent, 10, 100)/100*h)
	n := settings.ClampInt(trackCount, 1, maxTracks)
	return Geometry{
		Tracks:      n,
		TrackHeight: math.Max(minTrackHeight, math.Floor(usable/float64(n))),
	}
}

// Top is the y position of track i.
func (g Geometry) Top(i int) float64 {
	return math.Max(0, float64(i)*g.TrackHeight+trackInset)
}

// ChooseTrack returns the least occupied of trackCount tracks given the tracks
// of the live instances. Ties go to the lowest index. Tracks outside the
// current range are not counted.
func ChooseTrack(active []int, trackCount int) int {
	if trackCount <= 1 {
		return 0
	}
	counts := make([]int, trackCount)
	for _, t := range active {
		if t >= 0 && t < trackCount {
			counts[t]++
		}
	}
	best := 0
	for i := 1; i < trackCount; i++ {
		if counts[i] < counts[best] {
			best = i
		}
	}
	return best
}
