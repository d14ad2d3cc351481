package interceptors

import (
	"context"
	"testing"
	"time"

	"github.com/Dhoini/ekaty/internal/config"
	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/middleware"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func TestAuthInterceptor_Unary(t *testing.T) {
	tokens := middleware.NewTokenManager(config.AuthConfig{JWTSecret: "interceptor-test", TokenTTL: time.Hour})
	unary := NewAuthInterceptor(logger.NewNop(), tokens).Unary()

	admin := &domain.User{ID: uuid.New(), Email: "admin@example.com", Role: domain.RoleAdmin}
	adminToken, _, err := tokens.Issue(admin)
	require.NoError(t, err)
	userToken, _, err := tokens.Issue(&domain.User{ID: uuid.New(), Email: "u@example.com", Role: domain.RoleUser})
	require.NoError(t, err)

	var seen uuid.UUID
	handler := func(ctx context.Context, _ any) (any, error) {
		seen, _ = UserIDFromContext(ctx)
		return "ok", nil
	}
	call := func(method, token string) error {
		ctx := context.Background()
		if token != "" {
			ctx = metadata.NewIncomingContext(ctx, metadata.Pairs("authorization", "Bearer "+token))
		}
		_, err := unary(ctx, nil, &grpc.UnaryServerInfo{FullMethod: method}, handler)
		return err
	}

	assert.NoError(t, call("/grpc.health.v1.Health/Check", ""))
	assert.Equal(t, codes.Unauthenticated, status.Code(call("/ekaty.Admin/Sync", "")))
	assert.Equal(t, codes.Unauthenticated, status.Code(call("/ekaty.Admin/Sync", "garbage")))
	assert.Equal(t, codes.PermissionDenied, status.Code(call("/ekaty.Admin/Sync", userToken)))

	require.NoError(t, call("/ekaty.Admin/Sync", adminToken))
	assert.Equal(t, admin.ID, seen)
}

func TestLogging_RecoversPanic(t *testing.T) {
	unary := Logging(logger.NewNop())
	_, err := unary(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x/Y"}, func(context.Context, any) (any, error) {
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))
}
