package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnavailable means the player never became ready within the wait.
	ErrUnavailable = errors.New("player unavailable")
	ErrNoSurface   = errors.New("no render surface")
	ErrNoPlayer    = errors.New("no player")
)

// AwaitPlayer blocks until p is ready, ctx ends or timeout elapses. Players
// without a readiness signal are ready immediately. It never retries.
func AwaitPlayer(ctx context.Context, p Player, timeout time.Duration) error {
	if p == nil {
		return ErrNoPlayer
	}
	r, ok := p.(Readier)
	if !ok {
		return nil
	}
	select {
	case <-r.Ready():
		return nil
	default:
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-r.Ready():
		return nil
	case <-t.C:
		return fmt.Errorf("%w after %s", ErrUnavailable, timeout)
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
	}
}
