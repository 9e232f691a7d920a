package interceptors

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Keksclan/goRawrStash/contextx"
)

var errInternal = status.Error(codes.Internal, "internal server error")

// RecoveryUnary returns a unary server interceptor that recovers from panics,
// logs them and returns an Internal gRPC error instead of crashing the
// process. log may be nil.
func RecoveryUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	if log == nil {
		log = zap.NewNop()
	}
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logPanic(ctx, log, info.FullMethod, r)
				resp = nil
				err = errInternal
			}
		}()
		return handler(ctx, req)
	}
}

// RecoveryStream returns a stream server interceptor that recovers from
// panics, logs them and returns an Internal gRPC error.
func RecoveryStream(log *zap.Logger) grpc.StreamServerInterceptor {
	if log == nil {
		log = zap.NewNop()
	}
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		defer func() {
			if r := recover(); r != nil {
				ctx := context.Background()
				if ss != nil {
					ctx = ss.Context()
				}
				logPanic(ctx, log, info.FullMethod, r)
				err = errInternal
			}
		}()
		return handler(srv, ss)
	}
}

func logPanic(ctx context.Context, log *zap.Logger, method string, r any) {
	log.Error("panic in handler",
		zap.String("method", method),
		zap.String("request_id", contextx.RequestIDFromContext(ctx)),
		zap.Any("panic", r),
		zap.Stack("stack"),
	)
}
