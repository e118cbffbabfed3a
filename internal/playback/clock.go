package playback

import (
	"context"
	"time"
)

// Clock paces the replay loop. The real implementation sleeps on wall
// time; tests substitute a fake that advances instantly and records the
// waits it was asked for.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep blocks for d or until ctx is done, returning ctx.Err() in
	// the latter case. d is never negative.
	Sleep(ctx context.Context, d time.Duration) error
}

// realClock is the wall-time Clock.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
