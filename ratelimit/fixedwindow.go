// Package ratelimit provides the per-identifier fixed-window limiter used
// by the HTTP middleware and gRPC interceptors, plus an optional
// process-wide token bucket backed by golang.org/x/time/rate.
//
// The fixed window counts requests with INCR and attaches the window as a
// TTL on the first increment only, so later increments never extend the
// window. The cutoff is hard: limit requests at the end of one window and
// limit more at the start of the next are all allowed.
package ratelimit

import (
	"context"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Keksclan/goRawrStash/metrics"
)

// DefaultPrefix namespaces rate-limit counters in the cache.
const DefaultPrefix = "ratelimit:"

// Counter is the subset of the cache façade the limiter needs.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, bool, error)
}

// Response headers describing a decision. gRPC metadata uses the same names
// lower-cased.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Result is the outcome of one Allow call.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	Count      int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Headers returns the rate-limit headers for r. Retry-After is included
// only when the request was denied.
func (r Result) Headers() map[string]string {
	h := map[string]string{
		HeaderLimit:     strconv.Itoa(r.Limit),
		HeaderRemaining: strconv.Itoa(r.Remaining),
		HeaderReset:     strconv.FormatInt(r.ResetAt.Unix(), 10),
	}
	if !r.Allowed {
		h[HeaderRetryAfter] = strconv.Itoa(RetryAfterSeconds(r.RetryAfter))
	}
	return h
}

// RetryAfterSeconds rounds d up to whole seconds, never below one.
func RetryAfterSeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}

// Option configures a FixedWindow.
type Option func(*FixedWindow)

// WithPrefix sets the key prefix for counters.
func WithPrefix(p string) Option {
	return func(w *FixedWindow) { w.prefix = p }
}

// WithLogger sets the logger for fail-open warnings.
func WithLogger(l *zap.Logger) Option {
	return func(w *FixedWindow) { w.log = l }
}

// WithMetrics records every decision on m.
func WithMetrics(m *metrics.Collectors) Option {
	return func(w *FixedWindow) { w.metrics = m }
}

// FixedWindow allows at most Limit requests per identifier per Window.
type FixedWindow struct {
	c       Counter
	limit   int
	window  time.Duration
	prefix  string
	log     *zap.Logger
	metrics *metrics.Collectors
	nowFunc func() time.Time // for testing; defaults to time.Now
}

// NewFixedWindow creates a limiter over c.
func NewFixedWindow(c Counter, limit int, window time.Duration, opts ...Option) *FixedWindow {
	w := &FixedWindow{
		c:       c,
		limit:   limit,
		window:  window,
		prefix:  DefaultPrefix,
		nowFunc: time.Now,
	}
	for _, o := range opts {
		o(w)
	}
	if w.log == nil {
		w.log = zap.NewNop()
	}
	return w
}

// Limit returns the number of requests allowed per window.
func (w *FixedWindow) Limit() int { return w.limit }

// Window returns the window length.
func (w *FixedWindow) Window() time.Duration { return w.window }

// Allow counts one request for identifier and decides synchronously. It
// never blocks or queues. When the counter store fails the request is
// allowed and err reports the failure.
func (w *FixedWindow) Allow(ctx context.Context, identifier string) (Result, error) {
	key := w.prefix + identifier
	now := w.nowFunc()

	count, err := w.c.Incr(ctx, key)
	if err != nil {
		w.log.Warn("rate limit counter unavailable, allowing request",
			zap.String("identifier", identifier),
			zap.Error(err),
		)
		w.metrics.RateDecision("error")
		return Result{
			Allowed:    true,
			Limit:      w.limit,
			Remaining:  w.limit,
			ResetAt:    now.Add(w.window),
			RetryAfter: w.window,
		}, err
	}

	ttl := w.window
	if count == 1 {
		w.expire(ctx, key)
	} else {
		remaining, ok, err := w.c.TTL(ctx, key)
		switch {
		case err != nil:
			w.log.Debug("rate limit ttl lookup failed", zap.String("key", key), zap.Error(err))
		case ok && remaining == 0:
			// A counter without expiry would never reset.
			w.expire(ctx, key)
		case ok:
			ttl = remaining
		}
	}

	res := Result{
		Allowed:    count <= int64(w.limit),
		Limit:      w.limit,
		Remaining:  int(max(0, int64(w.limit)-count)),
		Count:      count,
		ResetAt:    now.Add(ttl),
		RetryAfter: w.window,
	}
	if res.Allowed {
		w.metrics.RateDecision("allowed")
	} else {
		w.metrics.RateDecision("denied")
	}
	return res, nil
}

func (w *FixedWindow) expire(ctx context.Context, key string) {
	if _, err := w.c.Expire(ctx, key, w.window); err != nil {
		w.log.Warn("rate limit window not attached", zap.String("key", key), zap.Error(err))
	}
}
