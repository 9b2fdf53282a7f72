package client

import (
	"context"
	"time"
)

// RetryPolicy is the single retry discipline shared by every HTTP path:
// a fixed number of attempts, a fixed inter-attempt delay, and a predicate
// deciding which failures are worth another attempt.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Retryable   func(error) bool
}

// DefaultRetryPolicy retries transient connection/timeout failures only.
func DefaultRetryPolicy(maxRetries int, delay time.Duration) RetryPolicy {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return RetryPolicy{
		MaxAttempts: maxRetries,
		Delay:       delay,
		Retryable:   IsRetryable,
	}
}

// Do runs op up to MaxAttempts times, sleeping Delay between attempts.
// It stops early when op succeeds, when the failure is not retryable, or
// when ctx is cancelled during the inter-attempt wait.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.Delay):
			}
		}
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
