// Package retry provides a generic retry helper with exponential backoff and
// jitter. The connection manager uses it to give the initial Redis ping one
// more chance before falling back to the in-process store.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// backoff returns the delay for the given attempt (0-indexed) according to
// exponential back-off with optional jitter. The returned duration is capped
// at cfg.MaxDelay when it is set.
func backoff(cfg Config, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if limit := float64(cfg.MaxDelay); limit > 0 && delay > limit {
		delay = limit
	}
	if cfg.Jitter > 0 {
		// jitter adds up to ±Jitter fraction of the delay.
		delay += delay * cfg.Jitter * (rand.Float64()*2 - 1)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// IsContextError reports whether err stems from a cancelled or expired
// context.
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
