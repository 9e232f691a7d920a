package interceptors

import (
	"context"
	"strconv"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/Keksclan/goRawrStash/clientip"
	"github.com/Keksclan/goRawrStash/contextx"
	"github.com/Keksclan/goRawrStash/ratelimit"
)

// errRateLimited is allocated once to avoid per-request allocations on the hot path.
var errRateLimited = status.Error(codes.ResourceExhausted, "rate limit exceeded")

// rateLimitState holds the per-target limiters, the client address resolver
// and the optional process-wide gate.
type rateLimitState struct {
	policies *ratelimit.Policies
	ips      *clientip.Resolver
	gate     *ratelimit.TokenBucket
}

func newRateLimitState(p *ratelimit.Policies, ips *clientip.Resolver, gate *ratelimit.TokenBucket) *rateLimitState {
	if ips == nil {
		// No trusted proxies: the peer address is the client.
		ips = &clientip.Resolver{}
	}
	return &rateLimitState{policies: p, ips: ips, gate: gate}
}

// check decides one call. The returned metadata goes out as response headers
// whether or not the call is allowed; the returned context carries the
// matched policy group.
func (s *rateLimitState) check(ctx context.Context, fullMethod string) (context.Context, metadata.MD, error) {
	if s.gate != nil && !s.gate.Allow() {
		md := metadata.Pairs(strings.ToLower(ratelimit.HeaderRetryAfter),
			strconv.Itoa(ratelimit.RetryAfterSeconds(s.gate.RetryAfter())))
		return ctx, md, errRateLimited
	}

	group, w := s.policies.Lookup(fullMethod)
	if group != "" {
		ctx = contextx.WithLimitGroup(ctx, group)
	}
	if w == nil {
		return ctx, nil, nil
	}
	// Store errors fail open and are logged by the limiter.
	res, _ := w.Allow(ctx, identify(ctx, s.ips))

	md := metadata.MD{}
	for k, v := range res.Headers() {
		md.Set(strings.ToLower(k), v)
	}
	if !res.Allowed {
		return ctx, md, errRateLimited
	}
	return ctx, md, nil
}

// identify picks the rate-limit identifier: the authenticated subject when
// present, the client address otherwise.
func identify(ctx context.Context, ips *clientip.Resolver) string {
	if a, ok := contextx.ActorFromContext(ctx); ok {
		if key, ok := a.RateKey(); ok {
			return key
		}
	}
	if addr, ok := ips.FromGRPC(ctx); ok {
		return addr.String()
	}
	return "unknown"
}

// RateLimitUnary returns a unary server interceptor that counts every call
// against the fixed-window limiter chosen by p and rejects it with
// ResourceExhausted once the window is used up. ips may be nil; gate is an
// optional process-wide token bucket checked first.
func RateLimitUnary(p *ratelimit.Policies, ips *clientip.Resolver, gate *ratelimit.TokenBucket) grpc.UnaryServerInterceptor {
	st := newRateLimitState(p, ips, gate)
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, md, err := st.check(ctx, info.FullMethod)
		if len(md) > 0 {
			_ = grpc.SetHeader(ctx, md)
		}
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// RateLimitStream returns a stream server interceptor with the same
// decision as [RateLimitUnary], taken once when the stream opens.
func RateLimitStream(p *ratelimit.Policies, ips *clientip.Resolver, gate *ratelimit.TokenBucket) grpc.StreamServerInterceptor {
	st := newRateLimitState(p, ips, gate)
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, md, err := st.check(ss.Context(), info.FullMethod)
		if len(md) > 0 {
			_ = ss.SetHeader(md)
		}
		if err != nil {
			return err
		}
		if ctx != ss.Context() {
			ss = &contextStream{ServerStream: ss, ctx: ctx}
		}
		return handler(srv, ss)
	}
}
