package interceptors

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/Keksclan/goRawrStash/auth"
	"github.com/Keksclan/goRawrStash/contextx"
)

// errUnauthenticated is allocated once to avoid per-request allocations on the hot path.
var errUnauthenticated = status.Error(codes.Unauthenticated, "unauthenticated")

// authError returns the original error if it is already a gRPC status error,
// otherwise wraps it as codes.Unauthenticated.
func authError(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	return errUnauthenticated
}

func identifyCtx(ctx context.Context, fn auth.Func, fullMethod string) (context.Context, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	a, ok, err := fn(ctx, fullMethod, md)
	if err != nil {
		return ctx, authError(err)
	}
	if ok {
		ctx = contextx.WithActor(ctx, a)
	}
	return ctx, nil
}

// IdentifyUnary returns a unary server interceptor that calls fn and stores
// the resulting actor in the context. Anonymous calls pass through.
func IdentifyUnary(fn auth.Func) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, err := identifyCtx(ctx, fn, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// IdentifyStream is the stream counterpart of [IdentifyUnary].
func IdentifyStream(fn auth.Func) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, err := identifyCtx(ss.Context(), fn, info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &contextStream{ServerStream: ss, ctx: ctx})
	}
}
