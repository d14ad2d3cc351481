package interceptors

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/Dhoini/ekaty/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Logging логирует каждый unary-вызов и превращает панику в codes.Internal
func Logging(log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				log.Errorw("gRPC handler panic", "method", info.FullMethod, "panic", r, "stack", string(debug.Stack()))
				resp, err = nil, status.Error(codes.Internal, "internal error")
			}
			code := status.Code(err)
			fields := []any{"method", info.FullMethod, "code", code.String(), "duration", time.Since(start)}
			switch code {
			case codes.OK:
				log.Debugw("gRPC request", fields...)
			case codes.Internal, codes.Unknown, codes.DataLoss:
				log.Errorw("gRPC request failed", append(fields, "error", err)...)
			default:
				log.Warnw("gRPC request rejected", append(fields, "error", err)...)
			}
		}()
		return handler(ctx, req)
	}
}
