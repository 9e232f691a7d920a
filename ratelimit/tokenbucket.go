package ratelimit

import (
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket is a process-wide gate in front of the per-identifier fixed
// window. It smooths total load on one instance and shares nothing across
// instances.
type TokenBucket struct {
	lim *rate.Limiter
}

// NewTokenBucket creates a TokenBucket that permits rps requests per second
// with the given burst size.
func NewTokenBucket(rps float64, burst int) *TokenBucket {
	return &TokenBucket{lim: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Allow reports whether a single request may proceed.
func (b *TokenBucket) Allow() bool {
	return b.lim.Allow()
}

// RetryAfter estimates how long until the next token is available.
func (b *TokenBucket) RetryAfter() time.Duration {
	r := b.lim.Reserve()
	defer r.Cancel()
	return r.Delay()
}
