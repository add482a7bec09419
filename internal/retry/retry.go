// Package retry provides a bounded-attempt exponential backoff executor.
package retry

import (
	"context"
	"time"
)

// Default backoff parameters for streaming connection attempts.
const (
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = 1 * time.Second
	DefaultMaxDelay     = 10 * time.Second
	DefaultFactor       = 2.0
)

// Policy executes an operation up to MaxAttempts times, waiting between
// failed attempts with exponential backoff capped at MaxDelay.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
}

// DefaultPolicy returns the standard policy: 3 attempts, 1s initial delay
// doubling up to 10s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
		Factor:       DefaultFactor,
	}
}

// Do runs op until it succeeds or MaxAttempts is exhausted. The failure of
// the final attempt is returned as-is. Between attempts Do waits for the
// current backoff delay, honoring context cancellation.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		if werr := p.wait(ctx, p.delay(attempt)); werr != nil {
			return werr
		}
	}
	return err
}

// delay computes the backoff before the next attempt after the given
// zero-based attempt index. Saturates at MaxDelay.
func (p Policy) delay(attempt int) time.Duration {
	d := float64(p.InitialDelay)
	for i := 0; i < attempt; i++ {
		d *= p.Factor
		if d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

func (p Policy) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
