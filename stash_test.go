package gorawrstash

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	stashconfig "github.com/Keksclan/goRawrStash/config"
	"github.com/Keksclan/goRawrStash/contextx"
	"github.com/Keksclan/goRawrStash/conn"
	"github.com/Keksclan/goRawrStash/ping"
)

func newStarted(t *testing.T, opts ...Option) *Stash {
	t.Helper()
	s, err := New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStartWithoutRedisIsDegraded(t *testing.T) {
	s := newStarted(t)
	if s.Mode() != conn.Degraded {
		t.Fatalf("got mode %v, want degraded", s.Mode())
	}

	ctx := t.Context()
	if err := s.Cache().Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := s.Cache().Get(ctx, "k")
	if err != nil || !ok || string(got) != "v" {
		t.Fatalf("Get = %q, %v, %v", got, ok, err)
	}

	if err := s.Recipes().Presence.SetOnline(ctx, 7, "sock-1"); err != nil {
		t.Fatalf("SetOnline: %v", err)
	}
	if online, _ := s.Recipes().Presence.IsOnline(ctx, 7); !online {
		t.Fatal("expected user 7 online")
	}
}

func TestStartWithRedisIsConnected(t *testing.T) {
	mr := miniredis.RunT(t)
	s := newStarted(t, WithRedisURL("redis://"+mr.Addr()), WithWatchInterval(10*time.Millisecond))

	if s.Mode() != conn.Connected {
		t.Fatalf("got mode %v, want connected", s.Mode())
	}
	if err := s.Cache().Set(t.Context(), "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, _ := mr.Get("k"); got != "v" {
		t.Fatalf("redis holds %q, want %q", got, "v")
	}
}

func TestNearCachesStayCoherentAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	opts := []Option{WithRedisURL("redis://" + mr.Addr()), WithNearCache(100, time.Minute)}
	a, b := newStarted(t, opts...), newStarted(t, opts...)
	ctx := t.Context()

	_ = a.Recipes().Lists.SetDetail(ctx, 1, "v1")
	b.Recipes().Lists.InvalidateDetail(ctx, 1)
	_ = mr.Set("list:detail:1", `"v2"`)

	deadline := time.Now().Add(2 * time.Second)
	for {
		var got string
		if ok, _ := a.Recipes().Lists.Detail(ctx, 1, &got); ok && got == "v2" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("instance a still serves %q", got)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStartTwice(t *testing.T) {
	s := newStarted(t)
	if err := s.Start(t.Context()); err == nil {
		t.Fatal("expected an error on the second Start")
	}
}

func TestCloseStopsCache(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(t.Context()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Cache().Set(t.Context(), "k", nil, 0); err == nil {
		t.Fatal("expected an error after Close")
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	if _, err := New(WithCodecName("yaml")); err == nil {
		t.Fatal("expected an unknown codec error")
	}
	if _, err := New(WithTrustedProxies("not-a-cidr")); err == nil {
		t.Fatal("expected a trusted proxy error")
	}
}

func TestMetricsHandlerExportsMode(t *testing.T) {
	s := newStarted(t)

	rr := httptest.NewRecorder()
	s.MetricsHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	if !strings.Contains(body, "stash_cache_mode 3") {
		t.Fatalf("expected degraded mode gauge, got:\n%s", body)
	}
	if !strings.Contains(body, "stash_store_entries") {
		t.Fatalf("expected store entries gauge, got:\n%s", body)
	}
}

func TestHealthHandler(t *testing.T) {
	s := newStarted(t)

	rr := httptest.NewRecorder()
	s.HealthHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var body struct {
		Status    string `json:"status"`
		CacheMode string `json:"cache_mode"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if rr.Code != http.StatusOK || body.CacheMode != "degraded" {
		t.Fatalf("got %d %+v", rr.Code, body)
	}
}

func TestHTTPMiddlewareLimitsAndExemptsHealth(t *testing.T) {
	s := newStarted(t, append(DefaultOptions(), WithRateLimit(2, time.Minute))...)

	r := chi.NewRouter()
	r.Use(s.HTTPMiddleware()...)
	r.Get("/healthz", s.HealthHandler().ServeHTTP)
	r.Get("/api/products", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	statuses := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		statuses = append(statuses, rr.Code)
		if rr.Header().Get("X-Request-Id") == "" {
			t.Fatal("missing X-Request-Id")
		}
	}
	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK || statuses[2] != http.StatusTooManyRequests {
		t.Fatalf("got statuses %v", statuses)
	}

	for range 5 {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("health check limited: %d", rr.Code)
		}
	}
}

func dialServer(t *testing.T, srv *grpc.Server) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	cc, err := grpc.NewClient("passthrough:///bufconn",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { cc.Close() })
	return cc
}

func TestGRPCServerPingAndRateLimit(t *testing.T) {
	var seen []string
	record := func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		seen = append(seen, info.FullMethod)
		return handler(ctx, req)
	}
	s := newStarted(t, WithRateLimit(1, time.Minute), WithUnaryInterceptor(record))
	cc := dialServer(t, s.NewGRPCServer())

	var header metadata.MD
	resp := new(ping.PingResponse)
	err := cc.Invoke(t.Context(), ping.FullMethod, &ping.PingRequest{Message: "hi"}, resp, grpc.Header(&header))
	if err != nil {
		t.Fatalf("first Ping: %v", err)
	}
	if resp.CacheMode != "degraded" || resp.Message != "hi" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(header.Get("x-request-id")) != 1 || len(header.Get("x-ratelimit-limit")) != 1 {
		t.Fatalf("missing headers: %v", header)
	}

	header = nil
	err = cc.Invoke(t.Context(), ping.FullMethod, &ping.PingRequest{}, resp, grpc.Header(&header))
	if status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("second Ping: got %v, want ResourceExhausted", err)
	}
	if got := header.Get("retry-after"); len(got) != 1 || got[0] != "60" {
		t.Fatalf("retry-after = %v", got)
	}

	// The user interceptor runs after the rate limiter, so it saw only the
	// allowed call.
	if len(seen) != 1 {
		t.Fatalf("user interceptor saw %d calls, want 1", len(seen))
	}
}

func TestIdentityKeysLimitBySubject(t *testing.T) {
	grpcID := func(_ context.Context, _ string, md metadata.MD) (contextx.Actor, bool, error) {
		if v := md.Get("x-user"); len(v) == 1 {
			return contextx.Actor{Subject: v[0]}, true, nil
		}
		return contextx.Actor{}, false, nil
	}
	httpID := func(r *http.Request) (contextx.Actor, bool, error) {
		if v := r.Header.Get("X-User"); v != "" {
			return contextx.Actor{Subject: v}, true, nil
		}
		return contextx.Actor{}, false, nil
	}
	s := newStarted(t, WithRateLimit(1, time.Minute), WithIdentity(grpcID), WithHTTPIdentity(httpID))

	// Over gRPC every bufconn caller shares one address; only the subject
	// separates them.
	cc := dialServer(t, s.NewGRPCServer())
	for _, user := range []string{"alice", "bob"} {
		ctx := metadata.AppendToOutgoingContext(t.Context(), "x-user", user)
		if err := cc.Invoke(ctx, ping.FullMethod, &ping.PingRequest{}, new(ping.PingResponse)); err != nil {
			t.Fatalf("%s: %v", user, err)
		}
	}
	ctx := metadata.AppendToOutgoingContext(t.Context(), "x-user", "alice")
	if err := cc.Invoke(ctx, ping.FullMethod, &ping.PingRequest{}, new(ping.PingResponse)); status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("alice again: got %v, want ResourceExhausted", err)
	}

	r := chi.NewRouter()
	r.Use(s.HTTPMiddleware()...)
	r.Get("/api/products", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	for _, user := range []string{"carol", "dave"} {
		req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		req.Header.Set("X-User", user)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: got %d", user, rr.Code)
		}
	}
}

func TestGRPCServerDefaultOptionsExemptPing(t *testing.T) {
	s := newStarted(t, append(DefaultOptions(), WithRateLimit(1, time.Minute))...)
	cc := dialServer(t, s.NewGRPCServer())

	for i := range 3 {
		resp := new(ping.PingResponse)
		if err := cc.Invoke(t.Context(), ping.FullMethod, &ping.PingRequest{}, resp); err != nil {
			t.Fatalf("Ping %d: %v", i+1, err)
		}
	}
}

func TestFromConfig(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &stashconfig.Config{
		RedisURL:            mr.Addr(),
		RedisConnectTimeout: time.Second,
		RateLimit:           3,
		RateLimitWindow:     10 * time.Second,
		Codec:               "msgpack",
		GlobalRPS:           100,
		GlobalBurst:         10,
		TrustedProxies:      "10.0.0.0/8",
		ViewNearCacheSize:   1 << 20,
	}

	s := newStarted(t, FromConfig(cfg)...)
	if s.Mode() != conn.Connected {
		t.Fatalf("got mode %v, want connected", s.Mode())
	}
	if s.Limiter().Limit() != 3 || s.Limiter().Window() != 10*time.Second {
		t.Fatalf("got limiter %d/%v", s.Limiter().Limit(), s.Limiter().Window())
	}
	if s.Cache().Codec().Name() != "msgpack" {
		t.Fatalf("got codec %q", s.Cache().Codec().Name())
	}
	if s.Policies().For(ping.FullMethod) != nil {
		t.Fatal("expected the ping method to be exempt")
	}
}
