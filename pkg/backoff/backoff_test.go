package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSleeper struct {
	waits []time.Duration
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func TestPolicyDelay(t *testing.T) {
	p := Default()

	want := []time.Duration{
		250 * time.Millisecond,
		500 * time.Millisecond,
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
	}
	for n, w := range want {
		assert.Equal(t, w, p.Delay(n), "attempt %d", n)
	}
	assert.Equal(t, 250*time.Millisecond, p.Delay(-1))
}

func TestRetry_FirstAttemptSucceedsWithoutWaiting(t *testing.T) {
	s := &recordingSleeper{}
	calls := 0

	err := Retry(context.Background(), Default(), s.sleep, func(context.Context, int) error {
		calls++
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, s.waits)
}

func TestRetry_SucceedsOnLastAttempt(t *testing.T) {
	s := &recordingSleeper{}
	var failures []int

	err := Retry(context.Background(), Default(), s.sleep, func(_ context.Context, attempt int) error {
		if attempt < 7 {
			return errors.New("unavailable")
		}
		return nil
	}, func(attempt int, _ error, _ time.Duration) {
		failures = append(failures, attempt)
	})

	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, failures)
	require.Len(t, s.waits, 7)
	for i, w := range s.waits {
		assert.Equal(t, 250*time.Millisecond*time.Duration(1<<i), w, "wait after attempt %d", i)
	}
}

func TestRetry_Exhausted(t *testing.T) {
	s := &recordingSleeper{}
	boom := errors.New("boom")
	var lastNext time.Duration = -1

	err := Retry(context.Background(), Default(), s.sleep, func(context.Context, int) error {
		return boom
	}, func(_ int, _ error, next time.Duration) {
		lastNext = next
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, s.waits, 7, "no wait after the final attempt")
	assert.Equal(t, time.Duration(0), lastNext)
}

func TestRetry_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := Retry(ctx, Policy{Initial: time.Hour, MaxAttempts: 3}, Sleep, func(context.Context, int) error {
		calls++
		cancel()
		return errors.New("fail")
	}, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetry_InvalidPolicy(t *testing.T) {
	err := Retry(context.Background(), Policy{Initial: time.Millisecond}, nil, func(context.Context, int) error {
		return nil
	}, nil)
	assert.Error(t, err)
}
