package gorawrstash

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/Keksclan/goRawrStash/auth"
	"github.com/Keksclan/goRawrStash/breaker"
	"github.com/Keksclan/goRawrStash/cache"
	"github.com/Keksclan/goRawrStash/policy"
	"github.com/Keksclan/goRawrStash/recipes"
)

// Option configures a Stash.
type Option func(*config)

// WithRedisURL sets the Redis address, either host:port or a redis:// URL.
// Empty means no Redis: the Stash starts degraded.
func WithRedisURL(url string) Option {
	return func(c *config) { c.redisURL = url }
}

// WithConnectTimeout bounds each connection ping.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *config) { c.connectTimeout = d }
}

// WithWatchInterval sets how often a connected Stash pings Redis to detect
// a lost connection.
func WithWatchInterval(d time.Duration) Option {
	return func(c *config) { c.watchInterval = d }
}

// WithSweepInterval sets how often the in-process store purges expired
// entries.
func WithSweepInterval(d time.Duration) Option {
	return func(c *config) { c.sweepInterval = d }
}

// WithLogger sets the logger handed to every component.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithRegistry registers the metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(c *config) { c.registry = reg }
}

// WithTracing enables spans on the cache façade and on the gRPC and HTTP
// surfaces. A nil tp uses the global provider.
func WithTracing(tp trace.TracerProvider) Option {
	return func(c *config) {
		c.tracing = true
		c.tracerProvider = tp
	}
}

// WithCodec sets the codec for structured cache values.
func WithCodec(codec cache.Codec) Option {
	return func(c *config) { c.codec = codec }
}

// WithCodecName selects a codec by name: json, msgpack or cbor.
func WithCodecName(name string) Option {
	return func(c *config) { c.codecName = name }
}

// WithBreaker tunes the breaker that stops calling Redis after repeated
// failures.
func WithBreaker(cfg breaker.Config) Option {
	return func(c *config) { c.breaker = cfg }
}

// WithRateLimit sets the default fixed-window limit.
func WithRateLimit(limit int, window time.Duration) Option {
	return func(c *config) {
		c.rateLimit = limit
		c.rateWindow = window
	}
}

// WithPolicyGroups adds route or method groups with their own limits or an
// exemption. Groups from several calls accumulate.
func WithPolicyGroups(groups ...*policy.GroupBuilder) Option {
	return func(c *config) { c.groups = append(c.groups, groups...) }
}

// WithGlobalRateLimit puts a process-wide token bucket in front of the
// per-identifier limiter.
func WithGlobalRateLimit(rps float64, burst int) Option {
	return func(c *config) {
		c.globalRPS = rps
		c.globalBurst = burst
	}
}

// WithTrustedProxies lists the proxies (CIDRs or addresses) whose
// forwarding headers are believed when identifying clients.
func WithTrustedProxies(proxies ...string) Option {
	return func(c *config) { c.trustedProxies = append(c.trustedProxies, proxies...) }
}

// WithIdentity installs fn on servers built by NewGRPCServer. The actor it
// returns keys rate limiting by subject instead of client address.
func WithIdentity(fn auth.Func) Option {
	return func(c *config) { c.identify = fn }
}

// WithHTTPIdentity is the HTTP counterpart of WithIdentity, applied by
// HTTPMiddleware.
func WithHTTPIdentity(fn auth.HTTPFunc) Option {
	return func(c *config) { c.identifyHTTP = fn }
}

// WithNearCache puts an in-process ristretto cache of size cost units in
// front of recipe views. A zero ttl selects DefaultNearCacheTTL.
func WithNearCache(size int64, ttl time.Duration) Option {
	return func(c *config) {
		c.nearSize = size
		c.nearTTL = ttl
	}
}

// WithTTLs overrides the recipe TTLs.
func WithTTLs(t recipes.TTLs) Option {
	return func(c *config) { c.ttls = t }
}

// WithUnaryInterceptor adds a unary interceptor to servers built by
// NewGRPCServer. It runs after the built-in interceptors.
func WithUnaryInterceptor(i grpc.UnaryServerInterceptor) Option {
	return func(c *config) { c.middlewares.Add(orderUser, i, nil) }
}

// WithStreamInterceptor adds a stream interceptor to servers built by
// NewGRPCServer. It runs after the built-in interceptors.
func WithStreamInterceptor(i grpc.StreamServerInterceptor) Option {
	return func(c *config) { c.middlewares.Add(orderUser, nil, i) }
}

// WithServerOptions passes extra options to grpc.NewServer.
func WithServerOptions(opts ...grpc.ServerOption) Option {
	return func(c *config) { c.serverOpts = append(c.serverOpts, opts...) }
}
