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
	"github.com/Keksclan/goRawrStash/internal/core"
	"github.com/Keksclan/goRawrStash/policy"
	"github.com/Keksclan/goRawrStash/recipes"
)

// config holds the internal configuration assembled via functional options.
type config struct {
	redisURL       string
	connectTimeout time.Duration
	watchInterval  time.Duration
	sweepInterval  time.Duration

	logger         *zap.Logger
	registry       *prometheus.Registry
	tracerProvider trace.TracerProvider
	tracing        bool

	codec     cache.Codec
	codecName string
	breaker   breaker.Config

	rateLimit      int
	rateWindow     time.Duration
	groups         []*policy.GroupBuilder
	globalRPS      float64
	globalBurst    int
	trustedProxies []string

	identify     auth.Func
	identifyHTTP auth.HTTPFunc

	nearSize int64
	nearTTL  time.Duration
	ttls     recipes.TTLs

	middlewares core.MiddlewareBuilder
	serverOpts  []grpc.ServerOption
}

func (c *config) applyDefaults() {
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.registry == nil {
		c.registry = prometheus.NewRegistry()
	}
	if c.sweepInterval <= 0 {
		c.sweepInterval = DefaultSweepInterval
	}
	if c.rateLimit <= 0 {
		c.rateLimit = DefaultRateLimit
	}
	if c.rateWindow <= 0 {
		c.rateWindow = DefaultRateWindow
	}
	if c.nearSize > 0 && c.nearTTL <= 0 {
		c.nearTTL = DefaultNearCacheTTL
	}
}
