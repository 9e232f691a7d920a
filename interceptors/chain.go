package interceptors

import (
	"context"
	"slices"

	"google.golang.org/grpc"
)

// ChainUnary composes unary interceptors into one; the first argument is
// the outermost. Nil entries are skipped. It returns nil when nothing is
// left, so callers can omit the server option.
func ChainUnary(ics ...grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor {
	ics = slices.DeleteFunc(slices.Clone(ics), func(ic grpc.UnaryServerInterceptor) bool { return ic == nil })
	switch len(ics) {
	case 0:
		return nil
	case 1:
		return ics[0]
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		var step func(i int) grpc.UnaryHandler
		step = func(i int) grpc.UnaryHandler {
			if i == len(ics) {
				return handler
			}
			return func(ctx context.Context, req any) (any, error) {
				return ics[i](ctx, req, info, step(i+1))
			}
		}
		return step(0)(ctx, req)
	}
}

// ChainStream is the stream counterpart of [ChainUnary].
func ChainStream(ics ...grpc.StreamServerInterceptor) grpc.StreamServerInterceptor {
	ics = slices.DeleteFunc(slices.Clone(ics), func(ic grpc.StreamServerInterceptor) bool { return ic == nil })
	switch len(ics) {
	case 0:
		return nil
	case 1:
		return ics[0]
	}

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		var step func(i int) grpc.StreamHandler
		step = func(i int) grpc.StreamHandler {
			if i == len(ics) {
				return handler
			}
			return func(srv any, ss grpc.ServerStream) error {
				return ics[i](srv, ss, info, step(i+1))
			}
		}
		return step(0)(srv, ss)
	}
}
