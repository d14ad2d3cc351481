package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/repository/memory"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOwnerFixture(t *testing.T, tier domain.Tier) (OwnerService, *memory.Store, *domain.User, *domain.Restaurant) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	owner := &domain.User{Email: "owner@example.com", Role: domain.RoleOwner}
	require.NoError(t, store.Users().Create(ctx, owner))
	require.NoError(t, store.Users().UpdateSubscription(ctx, owner.ID, tier, domain.SubscriptionStatusActive))

	rest := &domain.Restaurant{Name: "Owned", Slug: "owned", Active: true}
	require.NoError(t, store.Restaurants().Create(ctx, rest))
	require.NoError(t, store.Restaurants().UpdatePartnerState(ctx, rest.ID, &owner.ID, tier, false))

	svc := NewOwnerService(store.Users(), store.Restaurants(), store.Reviews(), store.Favorites(), store.Analytics(), logger.NewNop())
	return svc, store, owner, rest
}

func TestOwnerService_ListingGatedByTier(t *testing.T) {
	ctx := context.Background()
	svc, _, owner, rest := newOwnerFixture(t, domain.TierBasic)

	updated, err := svc.UpdateListing(ctx, owner.ID, rest.ID, domain.OwnerListingInput{Description: ptr("Family-run since 1998")})
	require.NoError(t, err)
	assert.Equal(t, "Family-run since 1998", updated.Description)

	_, err = svc.UpdateListing(ctx, owner.ID, rest.ID, domain.OwnerListingInput{ImageURL: ptr("https://cdn.example.com/a.jpg")})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	var denied *domain.FeatureNotAvailableError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, domain.TierPro, denied.Required)

	_, err = svc.UpdateListing(ctx, owner.ID, rest.ID, domain.OwnerListingInput{Featured: ptr(true)})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = svc.Stats(ctx, owner.ID, rest.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestOwnerService_NotOwner(t *testing.T) {
	ctx := context.Background()
	svc, store, _, rest := newOwnerFixture(t, domain.TierPremium)

	stranger := &domain.User{Email: "stranger@example.com", Role: domain.RoleUser}
	require.NoError(t, store.Users().Create(ctx, stranger))

	_, err := svc.UpdateListing(ctx, stranger.ID, rest.ID, domain.OwnerListingInput{Phone: ptr("281-555-0100")})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	mine, err := svc.Restaurants(ctx, stranger.ID)
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestOwnerService_StatsForPro(t *testing.T) {
	ctx := context.Background()
	svc, store, owner, rest := newOwnerFixture(t, domain.TierPro)

	recent := time.Now().UTC().Add(-time.Hour)
	restID := rest.ID
	require.NoError(t, store.Analytics().InsertEvents(ctx, []domain.AnalyticsEvent{
		{Name: domain.EventRestaurantView, RestaurantID: &restID, CreatedAt: recent},
		{Name: domain.EventRestaurantView, RestaurantID: &restID, CreatedAt: recent},
		{Name: domain.EventRestaurantView, RestaurantID: &restID, CreatedAt: recent.AddDate(0, -2, 0)},
		{Name: domain.EventSearch, CreatedAt: recent},
	}))
	_, err := store.Favorites().Add(ctx, owner.ID, rest.ID)
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, owner.ID, rest.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Views)
	assert.Equal(t, 1, stats.Favorites)
	assert.Zero(t, stats.Reviews)

	mine, err := svc.Restaurants(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, rest.ID, mine[0].ID)
}
