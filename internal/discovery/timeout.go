package discovery

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// TimeoutScheduler provides the two waits the coordinator needs: a fixed
// wait and a bounded wait that a signal can end early. Both return
// ctx.Err() as soon as ctx is done.
type TimeoutScheduler struct {
	clock clock.Clock
}

// NewTimeoutScheduler returns a scheduler on c, or on the wall clock if c
// is nil.
func NewTimeoutScheduler(c clock.Clock) *TimeoutScheduler {
	if c == nil {
		c = clock.New()
	}
	return &TimeoutScheduler{clock: c}
}

// Clock returns the underlying clock.
func (s *TimeoutScheduler) Clock() clock.Clock {
	return s.clock
}

// Wait blocks for d.
func (s *TimeoutScheduler) Wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}

	t := s.clock.Timer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// WaitOrWake blocks for at most d, returning true if wake fired first.
func (s *TimeoutScheduler) WaitOrWake(ctx context.Context, d time.Duration, wake <-chan struct{}) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if d <= 0 {
		return false, nil
	}

	t := s.clock.Timer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-wake:
		return true, nil
	case <-t.C:
		return false, nil
	}
}
