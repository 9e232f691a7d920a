package retry

import (
	"context"
	"time"
)

// Config controls the retry behaviour of [Do].
type Config struct {
	// MaxAttempts is the maximum number of times fn is called (including the
	// first attempt). Values ≤ 1 mean no retries.
	MaxAttempts int

	// BaseDelay is the delay before the first retry. Subsequent retries use
	// exponential back-off: BaseDelay * 2^attempt.
	BaseDelay time.Duration

	// MaxDelay caps the computed back-off delay. Zero means no cap.
	MaxDelay time.Duration

	// Jitter adds randomness to the delay. A value of 0.2 means ±20 % of
	// the computed delay. Zero disables jitter.
	Jitter float64

	// Retryable decides whether an error is worth another attempt. A nil
	// predicate retries every error except context cancellation.
	Retryable func(error) bool

	// OnRetry, if set, is called before sleeping for the given retry
	// (1-indexed) with the error that caused it.
	OnRetry func(attempt int, err error)
}

func (cfg Config) retryable(err error) bool {
	if cfg.Retryable != nil {
		return cfg.Retryable(err)
	}
	return !IsContextError(err)
}

// Do calls fn up to cfg.MaxAttempts times, retrying only while
// cfg.Retryable accepts the returned error. Between attempts an exponential
// back-off delay (with optional jitter) is applied.
//
// The context is checked before every retry; if ctx is done the function
// returns immediately with the context error.
func Do[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(cfg.MaxAttempts, 1)

	for i := range attempts {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		// Last attempt: return whatever we got.
		if i == attempts-1 || !cfg.retryable(err) {
			return zero, err
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(i+1, err)
		}

		delay := backoff(cfg, i)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	// Unreachable, but keeps the compiler happy.
	return zero, nil
}
