package service

import (
	"context"
	"errors"
	"time"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 500 * time.Millisecond
)

// transientError is implemented by failures that are safe to retry, such as
// backend storage contention.
type transientError interface {
	Transient() bool
}

// IsTransient reports whether err is classified as retriable.
func IsTransient(err error) bool {
	var te transientError
	return errors.As(err, &te) && te.Transient()
}

// RetryPolicy bounds retries of transient failures: a fixed attempt budget
// and exponential backoff starting at BaseDelay, doubling each attempt.
// Classify decides which failures are worth another attempt; everything else
// terminates immediately.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Classify    func(error) bool
}

// DefaultRetryPolicy retries storage-contention failures up to 3 attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultBaseDelay,
		Classify:    IsTransient,
	}
}

// Delay returns the backoff before the given re-attempt (attempt is 1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// Retry runs fn until it succeeds, fails non-transiently, or the attempt
// budget is spent. The last error is returned unwrapped so callers keep the
// typed cause.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	classify := policy.Classify
	if classify == nil {
		classify = IsTransient
	}
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !classify(err) || attempt == attempts {
			break
		}
		if err := sleep(ctx, policy.Delay(attempt)); err != nil {
			return zero, err
		}
	}
	return zero, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
