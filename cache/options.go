package cache

import (
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Keksclan/goRawrStash/breaker"
	"github.com/Keksclan/goRawrStash/metrics"
)

// Option configures a Facade.
type Option func(*config)

type config struct {
	logger         *zap.Logger
	codec          Codec
	metrics        *metrics.Collectors
	tracerProvider trace.TracerProvider
	breaker        breaker.Config
}

// WithLogger sets the logger used for fallback warnings.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithCodec sets the codec used by GetValue and SetValue. The default is
// JSON.
func WithCodec(codec Codec) Option {
	return func(c *config) { c.codec = codec }
}

// WithMetrics records operations and fallbacks on m.
func WithMetrics(m *metrics.Collectors) Option {
	return func(c *config) { c.metrics = m }
}

// WithTracerProvider sets the provider for per-operation spans. When unset
// the global otel provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) { c.tracerProvider = tp }
}

// WithBreaker overrides the breaker that guards Redis calls.
func WithBreaker(cfg breaker.Config) Option {
	return func(c *config) { c.breaker = cfg }
}
