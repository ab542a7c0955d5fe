// Package backoff implements the bounded exponential retry used to publish
// the cluster id. Attempts are 0-indexed: the first attempt runs
// immediately and the wait before the retry that follows failed attempt n
// is Initial * 2^n.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// DefaultInitial is the wait after the first failed attempt
	DefaultInitial = 250 * time.Millisecond
	// DefaultMaxAttempts bounds a single publish run
	DefaultMaxAttempts = 8
)

// ErrExhausted is returned by Retry when every attempt failed
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy is an exponential schedule with a fixed attempt budget.
type Policy struct {
	Initial     time.Duration
	MaxAttempts int
}

// Default returns 8 attempts starting at 250ms.
func Default() Policy {
	return Policy{Initial: DefaultInitial, MaxAttempts: DefaultMaxAttempts}
}

// Delay returns how long to wait after failed attempt n (0-indexed).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return time.Duration(float64(p.Initial) * math.Pow(2, float64(attempt)))
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the timer-backed SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Operation is one attempt. attempt is 0-indexed.
type Operation func(ctx context.Context, attempt int) error

// FailureFunc observes a failed attempt before the wait that follows it.
// next is zero when no retry follows.
type FailureFunc func(attempt int, err error, next time.Duration)

// Retry runs op until it succeeds, the budget is spent or ctx is done.
// Context cancellation is returned as-is; exhaustion wraps ErrExhausted
// and the last attempt's error.
func Retry(ctx context.Context, p Policy, sleep SleepFunc, op Operation, onFailure FailureFunc) error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("backoff: max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if sleep == nil {
		sleep = Sleep
	}

	var last error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		last = op(ctx, attempt)
		if last == nil {
			return nil
		}

		final := attempt == p.MaxAttempts-1
		var wait time.Duration
		if !final {
			wait = p.Delay(attempt)
		}
		if onFailure != nil {
			onFailure(attempt, last, wait)
		}
		if final {
			break
		}

		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, p.MaxAttempts, last)
}
