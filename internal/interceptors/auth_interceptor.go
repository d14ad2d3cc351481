package interceptors

import (
	"context"
	"strings"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/middleware"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// PublicMethodPrefixes методы, доступные без токена: health-check и reflection
var PublicMethodPrefixes = []string{
	"/grpc.health.v1.Health/",
	"/grpc.reflection.",
}

type userIDKey struct{}

// UserIDFromContext возвращает ID пользователя, проверенного перехватчиком
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey{}).(uuid.UUID)
	return id, ok
}

// AuthInterceptor проверяет JWT в метаданных authorization. Закрытые методы доступны только администраторам.
type AuthInterceptor struct {
	log       *logger.Logger
	validator middleware.TokenValidator
	public    []string
}

// NewAuthInterceptor создает перехватчик; publicPrefixes дополняют PublicMethodPrefixes
func NewAuthInterceptor(log *logger.Logger, validator middleware.TokenValidator, publicPrefixes ...string) *AuthInterceptor {
	public := append(append([]string{}, PublicMethodPrefixes...), publicPrefixes...)
	return &AuthInterceptor{log: log, validator: validator, public: public}
}

func (i *AuthInterceptor) isPublic(method string) bool {
	for _, p := range i.public {
		if strings.HasPrefix(method, p) {
			return true
		}
	}
	return false
}

// Unary возвращает UnaryServerInterceptor для проверки JWT.
func (i *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if i.isPublic(info.FullMethod) {
			return handler(ctx, req)
		}
		newCtx, err := i.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(newCtx, req)
	}
}

// Stream возвращает StreamServerInterceptor с той же проверкой
func (i *AuthInterceptor) Stream() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if i.isPublic(info.FullMethod) {
			return handler(srv, ss)
		}
		if _, err := i.authenticate(ss.Context(), info.FullMethod); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

func (i *AuthInterceptor) authenticate(ctx context.Context, method string) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		i.log.Warnw("gRPC auth: missing metadata", "method", method)
		return nil, status.Error(codes.Unauthenticated, "missing metadata")
	}
	authHeaders := md.Get("authorization")
	if len(authHeaders) == 0 {
		i.log.Warnw("gRPC auth: missing authorization header", "method", method)
		return nil, status.Error(codes.Unauthenticated, "missing authorization header")
	}
	authHeader := authHeaders[0]
	if !strings.HasPrefix(authHeader, "Bearer ") {
		i.log.Warnw("gRPC auth: invalid authorization header format", "method", method)
		return nil, status.Error(codes.Unauthenticated, "invalid authorization header format")
	}

	claims, err := i.validator.Validate(strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		i.log.Warnw("gRPC auth: invalid token", "method", method, "error", err)
		return nil, status.Errorf(codes.Unauthenticated, "invalid token: %v", err)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		i.log.Warnw("gRPC auth: user ID (sub) missing in token", "method", method)
		return nil, status.Error(codes.Unauthenticated, "user ID (sub) missing in token")
	}
	if claims.Role() != domain.RoleAdmin {
		return nil, status.Error(codes.PermissionDenied, "admin role required")
	}
	i.log.Debugw("User authenticated via gRPC", "userID", userID, "method", method)
	return context.WithValue(ctx, userIDKey{}, userID), nil
}
