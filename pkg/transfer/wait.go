package transfer

import (
	"context"
	"time"
)

// DefaultPoll is the interval WaitUntil re-checks its condition at when
// called with a non-positive poll.
const DefaultPoll = 50 * time.Millisecond

// WaitUntil returns nil as soon as cond reports true. cond is checked
// immediately and then every poll. Once timeout has elapsed without cond
// holding, WaitUntil returns ErrTimeout. Only the calling goroutine waits.
func WaitUntil(ctx context.Context, cond func() bool, timeout, poll time.Duration) error {
	if cond() {
		return nil
	}
	if poll <= 0 {
		poll = DefaultPoll
	}
	start := time.Now()
	t := time.NewTicker(poll)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		if cond() {
			return nil
		}
		if time.Since(start) >= timeout {
			return ErrTimeout
		}
	}
}
