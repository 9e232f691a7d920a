package gorawrstash

import (
	"time"

	stashconfig "github.com/Keksclan/goRawrStash/config"
	"github.com/Keksclan/goRawrStash/ping"
	"github.com/Keksclan/goRawrStash/policy"
)

// Defaults applied when the corresponding option is not given.
const (
	DefaultRateLimit     = 100
	DefaultRateWindow    = time.Minute
	DefaultSweepInterval = time.Second
	DefaultNearCacheTTL  = 30 * time.Second
)

// Interceptor order. Lower values run first, so recovery wraps everything
// and the request ID is set before the rate limiter logs anything.
const (
	orderRecovery  = 100
	orderRequestID = 200
	orderIdentity  = 250
	orderTracing   = 300
	orderRateLimit = 400
	orderUser      = 1000
)

// DefaultOptions returns the recommended set of options for production use:
// health endpoints are exempt from rate limiting.
func DefaultOptions() []Option {
	return []Option{
		WithPolicyGroups(
			policy.Group("health").
				Exact(ping.FullMethod).
				Exact("/healthz").
				Exact("/metrics").
				Policy(policy.Policy{Exempt: true}),
		),
	}
}

// FromConfig translates a loaded process configuration into options. The
// result starts with DefaultOptions.
func FromConfig(c *stashconfig.Config) []Option {
	opts := append(DefaultOptions(),
		WithRedisURL(c.RedisURL),
		WithConnectTimeout(c.RedisConnectTimeout),
		WithWatchInterval(c.RedisWatchInterval),
		WithSweepInterval(c.SweepInterval),
		WithRateLimit(c.RateLimit, c.RateLimitWindow),
		WithTrustedProxies(c.Proxies()...),
		WithCodecName(c.Codec),
	)
	if c.GlobalRPS > 0 {
		opts = append(opts, WithGlobalRateLimit(c.GlobalRPS, c.GlobalBurst))
	}
	if c.ViewNearCacheSize > 0 {
		opts = append(opts, WithNearCache(c.ViewNearCacheSize, 0))
	}
	if c.EnableTracing {
		opts = append(opts, WithTracing(nil))
	}
	return opts
}
