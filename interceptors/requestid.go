package interceptors

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/Keksclan/goRawrStash/contextx"
)

var requestIDKey = strings.ToLower(contextx.RequestIDHeader)

// ensureRequestID returns the context enriched with a request ID. A
// well-formed ID sent by the client in x-request-id metadata is kept;
// otherwise a new one is generated.
func ensureRequestID(ctx context.Context) (context.Context, string) {
	if id := contextx.RequestIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := ""
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(requestIDKey); len(vals) > 0 {
			id = vals[0]
		}
	}
	if !contextx.ValidRequestID(id) {
		id = contextx.NewRequestID()
	}
	return contextx.WithRequestID(ctx, id), id
}

// RequestIDUnary returns a unary server interceptor that ensures a request ID
// is present in the context and echoes it as a response header.
func RequestIDUnary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, id := ensureRequestID(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDKey, id))
		return handler(ctx, req)
	}
}

// RequestIDStream is the stream counterpart of [RequestIDUnary]. The handler
// sees the enriched context through a wrapped stream.
func RequestIDStream() grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, id := ensureRequestID(ss.Context())
		_ = ss.SetHeader(metadata.Pairs(requestIDKey, id))
		return handler(srv, &contextStream{ServerStream: ss, ctx: ctx})
	}
}

// contextStream overrides Context() to carry an enriched context.
type contextStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *contextStream) Context() context.Context { return s.ctx }
