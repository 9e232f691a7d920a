// Package tracing provides OpenTelemetry server spans for the gRPC and HTTP
// surfaces. Tracing is optional: a nil [Config] turns every interceptor and
// middleware into a passthrough.
//
// Spans carry the current cache mode when [Config.CacheMode] is set, so a
// slow request can be told apart from one answered by the in-process store.
package tracing

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	grpcCodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	grpcStatus "google.golang.org/grpc/status"

	"github.com/Keksclan/goRawrStash/contextx"
)

const instrumentationName = "github.com/Keksclan/goRawrStash/tracing"

// Config holds the OpenTelemetry configuration shared by the gRPC
// interceptors and the HTTP middleware.
type Config struct {
	// TracerProvider supplies the Tracer used to create spans. When nil the
	// global otel.GetTracerProvider() is used.
	TracerProvider trace.TracerProvider

	// Propagators extracts and injects trace context from/into carriers.
	// When nil the global otel.GetTextMapPropagator() is used.
	Propagators propagation.TextMapPropagator

	// CacheMode reports the current cache mode, e.g. "connected" or
	// "degraded". Optional.
	CacheMode func() string
}

// tracer returns a configured [trace.Tracer].
func (c *Config) tracer() trace.Tracer {
	tp := c.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(instrumentationName)
}

// commonAttrs returns the attributes every server span gets.
func (c *Config) commonAttrs(ctx context.Context) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if c.CacheMode != nil {
		attrs = append(attrs, attribute.String("stash.cache_mode", c.CacheMode()))
	}
	if id := contextx.RequestIDFromContext(ctx); id != "" {
		attrs = append(attrs, attribute.String("stash.request_id", id))
	}
	return attrs
}

// propagators returns the configured propagator (or global default).
func (c *Config) propagators() propagation.TextMapPropagator {
	if c.Propagators != nil {
		return c.Propagators
	}
	return otel.GetTextMapPropagator()
}

// startRPC opens the server span for one call.
func (c *Config) startRPC(ctx context.Context, fullMethod string) (context.Context, trace.Span) {
	ctx = extract(ctx, c)
	service, method := splitFullMethod(fullMethod)
	attrs := append([]attribute.KeyValue{
		attribute.String("rpc.system", "grpc"),
		attribute.String("rpc.service", service),
		attribute.String("rpc.method", method),
	}, c.commonAttrs(ctx)...)
	return c.tracer().Start(ctx, fullMethod,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
}

// UnaryServerInterceptor returns a [grpc.UnaryServerInterceptor] that creates
// a span for every unary RPC. If cfg is nil the interceptor is a no-op
// passthrough.
func UnaryServerInterceptor(cfg *Config) grpc.UnaryServerInterceptor {
	if cfg == nil {
		return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
			return handler(ctx, req)
		}
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, span := cfg.startRPC(ctx, info.FullMethod)
		defer span.End()

		resp, err := handler(ctx, req)
		recordStatus(span, err)
		return resp, err
	}
}

// StreamServerInterceptor returns a [grpc.StreamServerInterceptor] that
// creates a span for every streaming RPC. If cfg is nil the interceptor is a
// no-op passthrough.
func StreamServerInterceptor(cfg *Config) grpc.StreamServerInterceptor {
	if cfg == nil {
		return func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
			return handler(srv, ss)
		}
	}
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, span := cfg.startRPC(ss.Context(), info.FullMethod)
		defer span.End()

		err := handler(srv, &wrappedStream{ServerStream: ss, ctx: ctx})
		recordStatus(span, err)
		return err
	}
}

// metadataCarrier adapts gRPC [metadata.MD] to the OTel
// [propagation.TextMapCarrier] interface.
type metadataCarrier metadata.MD

func (mc metadataCarrier) Get(key string) string {
	vals := metadata.MD(mc).Get(key)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func (mc metadataCarrier) Set(key, value string) {
	metadata.MD(mc).Set(key, value)
}

func (mc metadataCarrier) Keys() []string {
	md := metadata.MD(mc)
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	return keys
}

// extract pulls trace context from incoming gRPC metadata into ctx.
func extract(ctx context.Context, cfg *Config) context.Context {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		md = metadata.MD{}
	}
	return cfg.propagators().Extract(ctx, metadataCarrier(md))
}

// splitFullMethod splits "/service/method" into ("service", "method").
func splitFullMethod(fullMethod string) (string, string) {
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	service, method, ok := strings.Cut(fullMethod, "/")
	if !ok {
		return fullMethod, ""
	}
	return service, method
}

// recordStatus sets the span status and records the gRPC status code. A
// call rejected by the rate limiter is flagged but not marked as an error.
func recordStatus(span trace.Span, err error) {
	st, _ := grpcStatus.FromError(err)
	span.SetAttributes(attribute.String("rpc.grpc.status_code", st.Code().String()))
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case st.Code() == grpcCodes.ResourceExhausted:
		span.SetAttributes(attribute.Bool("stash.rate_limited", true))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, st.Message())
	}
}

// wrappedStream overrides Context() to carry the traced context.
type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context { return w.ctx }
