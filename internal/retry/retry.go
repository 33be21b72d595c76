// Package retry runs an operation with exponential backoff for transient
// failures such as rate limiting.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrExhausted wraps the last error once MaxRetries retries have failed.
var ErrExhausted = errors.New("retries exhausted")

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy configures retry behavior.
type Policy struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int
	// BaseDelay is the wait before the first retry.
	BaseDelay time.Duration
	// Multiplier grows the delay between retries (default 2).
	Multiplier float64
	// MaxDelay caps a single wait; zero means uncapped.
	MaxDelay time.Duration
	// Retryable reports whether err should be retried. Nil retries everything.
	Retryable func(error) bool
	// Sleep replaces the real timer, mainly for tests.
	Sleep SleepFunc
}

// DefaultPolicy waits 1s, 2s, 4s between attempts.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		Multiplier: 2,
	}
}

// Delay returns the wait before retry number attempt (0-based).
func (p Policy) Delay(attempt int) time.Duration {
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2
	}
	d := time.Duration(float64(p.BaseDelay) * math.Pow(mult, float64(attempt)))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// WorstCase is the total time spent sleeping when every retry fails.
func (p Policy) WorstCase() time.Duration {
	var total time.Duration
	for i := 0; i < p.MaxRetries; i++ {
		total += p.Delay(i)
	}
	return total
}

// Do calls fn until it succeeds, returns a non-retryable error, or
// MaxRetries retries have been spent. attempt starts at 0.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == p.MaxRetries {
			break
		}

		if err := sleep(ctx, p.Delay(attempt)); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w after %d retries: %w", ErrExhausted, p.MaxRetries, lastErr)
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, func(ctx context.Context, attempt int) error {
		v, err := fn(ctx, attempt)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Sleep waits for d, returning early with ctx's error if it is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
