package gorawrstash

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"github.com/Keksclan/goRawrStash/httpmw"
	"github.com/Keksclan/goRawrStash/interceptors"
	"github.com/Keksclan/goRawrStash/ping"
	"github.com/Keksclan/goRawrStash/tracing"
)

// NewGRPCServer creates a grpc.Server with the Stash interceptors installed
// and the stash.Ping health service registered. Interceptor execution order
// is fixed by priority (recovery, request ID, identity, tracing, rate limit, then
// interceptors added with WithUnaryInterceptor/WithStreamInterceptor), not by
// the order options were passed.
func (s *Stash) NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	mw := s.cfg.middlewares.Clone()
	mw.Add(orderRecovery, interceptors.RecoveryUnary(s.log), interceptors.RecoveryStream(s.log))
	mw.Add(orderRequestID, interceptors.RequestIDUnary(), interceptors.RequestIDStream())
	if s.cfg.identify != nil {
		mw.Add(orderIdentity, interceptors.IdentifyUnary(s.cfg.identify), interceptors.IdentifyStream(s.cfg.identify))
	}
	if s.tracing != nil {
		mw.Add(orderTracing, tracing.UnaryServerInterceptor(s.tracing), tracing.StreamServerInterceptor(s.tracing))
	}
	mw.Add(orderRateLimit,
		interceptors.RateLimitUnary(s.policies, s.ips, s.gate),
		interceptors.RateLimitStream(s.policies, s.ips, s.gate),
	)

	serverOpts := append(mw.ServerOptions(), s.cfg.serverOpts...)
	serverOpts = append(serverOpts, opts...)

	srv := grpc.NewServer(serverOpts...)
	ping.Register(srv, ping.NewHandler(func() ping.Status {
		return ping.Status{Mode: s.conn.Mode(), StoreEntries: s.store.Len()}
	}))
	return srv
}

// HTTPMiddleware returns the HTTP middleware stack in execution order:
// request ID, access log, identity (when configured), tracing and rate
// limiting.
func (s *Stash) HTTPMiddleware() []func(http.Handler) http.Handler {
	mws := []func(http.Handler) http.Handler{
		httpmw.RequestID,
		httpmw.Logger(s.log.Named("http")),
	}
	if s.cfg.identifyHTTP != nil {
		mws = append(mws, httpmw.Identify(s.cfg.identifyHTTP))
	}
	return append(mws,
		tracing.Middleware(s.tracing),
		httpmw.RateLimit(s.policies, s.ips, s.gate),
	)
}

// MetricsHandler serves the Stash metrics in the Prometheus text format.
func (s *Stash) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(s.cfg.registry, promhttp.HandlerOpts{})
}

// HealthHandler answers 200 with the cache mode. Degraded mode is healthy:
// the service keeps working from its in-process store.
func (s *Stash) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","cache_mode":"` + s.conn.Mode().String() + `"}`))
	})
}
