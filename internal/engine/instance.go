package engine

import (
	"time"

	"danmakuflow/internal/comment"
)

// Phase is the motion state of an overlay instance.
type Phase int

const (
	Moving Phase = iota
	Frozen
	Completed
)

func (p Phase) String() string {
	switch p {
	case Moving:
		return "moving"
	case Frozen:
		return "frozen"
	case Completed:
		return "completed"
	}
	return "unknown"
}

// Instance is one comment on screen. Once Completed it is never revived.
type Instance struct {
	ID       uint64
	Comment  comment.Comment
	Track    int
	Width    float64
	Distance float64 // pixels from start to fully off the left edge
	Speed    float64 // pixels per second
	Phase    Phase
	// SpawnedAt is the playback time the instance appeared at.
	SpawnedAt float64

	// Remaining and RemainingDuration are captured at the last freeze.
	Remaining         float64
	RemainingDuration time.Duration

	timer Timer
}

func (in *Instance) cancelTimer() {
	if in.timer != nil {
		in.timer.Stop()
		in.timer = nil
	}
}
