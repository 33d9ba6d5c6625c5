package engine

import (
	"math"
	"sort"

	"danmakuflow/internal/comment"
)

// NoWatermark is the watermark before any second has been processed.
const NoWatermark = -1

// discontinuity is the clock jump, in seconds, treated as a seek.
const discontinuity = 2.0

// TickResult is what one scheduler tick decided.
type TickResult struct {
	// Discontinuity is set when the clock jumped; live overlays must be cleared.
	Discontinuity bool
	// Due holds the comments to spawn, in schedule order.
	Due []comment.Comment
}

// Scheduler decides which comments become due as the playback clock advances.
// Each second is processed at most once; seconds skipped over are not
// back-filled.
type Scheduler struct {
	set          []comment.Comment
	watermark    int
	lastObserved float64
}

func NewScheduler() *Scheduler {
	return &Scheduler{watermark: NoWatermark}
}

// Schedule replaces the schedule set. Malformed comments are dropped.
// The watermark is kept so a second already processed is not replayed.
func (s *Scheduler) Schedule(comments []comment.Comment) {
	s.set = comment.Ordered(comments)
}

// Len is the size of the schedule set.
func (s *Scheduler) Len() int { return len(s.set) }

// Watermark is the last processed second, or NoWatermark.
func (s *Scheduler) Watermark() int { return s.watermark }

// Reset forgets the watermark and observes clockTime as the current position.
func (s *Scheduler) Reset(clockTime float64) {
	s.watermark = NoWatermark
	s.lastObserved = clockTime
}

// Tick processes one observation of the playback clock.
func (s *Scheduler) Tick(clockTime float64, paused, enabled bool) TickResult {
	var res TickResult
	if math.IsNaN(clockTime) || math.IsInf(clockTime, 0) {
		return res
	}
	now := int(math.Floor(clockTime))

	if math.Abs(clockTime-s.lastObserved) >= discontinuity {
		res.Discontinuity = true
		s.watermark = NoWatermark
	}
	s.lastObserved = clockTime

	if now == s.watermark {
		return res
	}
	s.watermark = now

	if paused || !enabled || len(s.set) == 0 {
		return res
	}
	res.Due = s.at(now)
	return res
}

// at returns the comments timed exactly at sec.
func (s *Scheduler) at(sec int) []comment.Comment {
	lo := sort.Search(len(s.set), func(i int) bool { return s.set[i].Time >= sec })
	hi := lo
	for hi < len(s.set) && s.set[hi].Time == sec {
		hi++
	}
	if lo == hi {
		return nil
	}
	return s.set[lo:hi:hi]
}
