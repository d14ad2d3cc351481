package service

import (
	"context"
	"testing"
	"time"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/repository/memory"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeIssuer struct{}

func (fakeIssuer) Issue(user *domain.User) (string, time.Time, error) {
	return "token-" + user.ID.String(), time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), nil
}

func newAuthService(store *memory.Store) AuthService {
	svc := NewAuthService(store.Users(), fakeIssuer{}, logger.NewNop()).(*authService)
	svc.cost = bcrypt.MinCost
	return svc
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := newAuthService(store)

	tok, err := svc.Register(ctx, domain.RegisterRequest{Email: " Diner@Example.com ", Password: "s3cret-pass", Name: "Diner"})
	require.NoError(t, err)
	assert.Equal(t, "diner@example.com", tok.User.Email)
	assert.Equal(t, domain.RoleUser, tok.User.Role)
	assert.Equal(t, "token-"+tok.User.ID.String(), tok.Token)
	assert.NotEmpty(t, tok.User.PasswordHash, "password is hashed")

	_, err = svc.Register(ctx, domain.RegisterRequest{Email: "diner@example.com", Password: "another-pass"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	_, err = svc.Register(ctx, domain.RegisterRequest{Email: "short@example.com", Password: "short"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	login, err := svc.Login(ctx, domain.LoginRequest{Email: "DINER@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, tok.User.ID, login.User.ID)

	_, err = svc.Login(ctx, domain.LoginRequest{Email: "diner@example.com", Password: "wrong-pass"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = svc.Login(ctx, domain.LoginRequest{Email: "nobody@example.com", Password: "s3cret-pass"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestAuthService_ProfileUsesEffectiveTier(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := newAuthService(store)

	user := &domain.User{Email: "owner@example.com", Role: domain.RoleOwner}
	require.NoError(t, store.Users().Create(ctx, user))
	require.NoError(t, store.Users().UpdateSubscription(ctx, user.ID, domain.TierPro, domain.SubscriptionStatusPastDue))

	profile, err := svc.Profile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TierPro, profile.EffectiveTier)
	assert.Contains(t, profile.Features, domain.FeatureAnalytics)

	require.NoError(t, store.Users().UpdateSubscription(ctx, user.ID, domain.TierPro, domain.SubscriptionStatusCanceled))
	profile, err = svc.Profile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TierFree, profile.EffectiveTier)
	assert.Empty(t, profile.Features)
}

func TestAuthService_CreateAdmin(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := newAuthService(store)

	admin, err := svc.CreateAdmin(ctx, "admin@ekaty.com", "admin-password", "Admin")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, admin.Role)

	_, err = svc.Login(ctx, domain.LoginRequest{Email: "admin@ekaty.com", Password: "admin-password"})
	require.NoError(t, err)

	existing := &domain.User{Email: "promote@ekaty.com", Role: domain.RoleUser}
	require.NoError(t, store.Users().Create(ctx, existing))
	promoted, err := svc.CreateAdmin(ctx, "promote@ekaty.com", "", "")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, promoted.ID)
	got, err := store.Users().GetByID(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, got.Role)
}
