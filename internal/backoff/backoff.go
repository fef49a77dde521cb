// Package backoff bounds calls to external capabilities: every attempt runs
// under its own timeout, and failures get at most a fixed number of retries.
package backoff

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidAttempts = errors.New("backoff: attempts must be > 0")

// Policy caps attempts and per-attempt duration for one class of external
// call. The zero value is unusable; use DefaultPolicy as a starting point.
type Policy struct {
	Attempts int           // total attempts, including the first
	Timeout  time.Duration // per-attempt timeout, 0 means none
	Delay    time.Duration // pause before each retry, doubled per retry
}

// DefaultPolicy is one retry with a ten second attempt budget.
func DefaultPolicy() Policy {
	return Policy{Attempts: 2, Timeout: 10 * time.Second, Delay: 500 * time.Millisecond}
}

// Do runs op under the policy. Each attempt receives a context bounded by
// the per-attempt timeout. The error from the final attempt is returned;
// cancellation of ctx wins over retries.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if p.Attempts <= 0 {
		return ErrInvalidAttempts
	}
	delay := p.Delay
	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = p.runOnce(ctx, op)
		if lastErr == nil {
			return nil
		}
		if attempt == p.Attempts || delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return lastErr
}

func (p Policy) runOnce(ctx context.Context, op func(ctx context.Context) error) error {
	if p.Timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return op(attemptCtx)
}
