package service

import (
	"context"
	"testing"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/repository/memory"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReviewService_SaveRecomputesStats(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seeded := seedRestaurants(t, store)
	rest := seeded["pho-katy"]

	alice := &domain.User{Email: "alice@example.com", Name: "Alice", Role: domain.RoleUser}
	bob := &domain.User{Email: "bob@example.com", Name: "Bob", Role: domain.RoleUser}
	require.NoError(t, store.Users().Create(ctx, alice))
	require.NoError(t, store.Users().Create(ctx, bob))

	svc := NewReviewService(store.Reviews(), store.Favorites(), store.Restaurants(), store.Users(), logger.NewNop())

	review, created, err := svc.Save(ctx, alice.ID, rest.ID, domain.ReviewInput{Rating: 5, Body: "<b>Great</b> broth<script>alert(1)</script>"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Great broth", review.Body)
	assert.Equal(t, "Alice", review.UserName)

	_, created, err = svc.Save(ctx, alice.ID, rest.ID, domain.ReviewInput{Rating: 3})
	require.NoError(t, err)
	assert.False(t, created, "second review by the same user updates the first")

	_, _, err = svc.Save(ctx, bob.ID, rest.ID, domain.ReviewInput{Rating: 5})
	require.NoError(t, err)

	got, err := store.Restaurants().GetByID(ctx, rest.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.UserReviewCount)
	assert.InDelta(t, 4.0, got.UserRating, 0.001)

	_, _, err = svc.Save(ctx, bob.ID, rest.ID, domain.ReviewInput{Rating: 6})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, _, err = svc.Save(ctx, bob.ID, seeded["closed-diner"].ID, domain.ReviewInput{Rating: 4})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReviewService_Delete(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	rest := seedRestaurants(t, store)["taco-loco"]

	author := &domain.User{Email: "author@example.com", Role: domain.RoleUser}
	other := &domain.User{Email: "other@example.com", Role: domain.RoleUser}
	admin := &domain.User{Email: "admin@example.com", Role: domain.RoleAdmin}
	for _, u := range []*domain.User{author, other, admin} {
		require.NoError(t, store.Users().Create(ctx, u))
	}
	svc := NewReviewService(store.Reviews(), store.Favorites(), store.Restaurants(), store.Users(), logger.NewNop())

	review, _, err := svc.Save(ctx, author.ID, rest.ID, domain.ReviewInput{Rating: 2})
	require.NoError(t, err)

	err = svc.Delete(ctx, other.ID, false, review.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, svc.Delete(ctx, admin.ID, true, review.ID))
	got, err := store.Restaurants().GetByID(ctx, rest.ID)
	require.NoError(t, err)
	assert.Zero(t, got.UserReviewCount)

	err = svc.Delete(ctx, author.ID, false, review.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReviewService_Favorites(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seeded := seedRestaurants(t, store)
	user := &domain.User{Email: "fan@example.com", Role: domain.RoleUser}
	require.NoError(t, store.Users().Create(ctx, user))
	svc := NewReviewService(store.Reviews(), store.Favorites(), store.Restaurants(), store.Users(), logger.NewNop())

	added, err := svc.AddFavorite(ctx, user.ID, seeded["pho-katy"].ID)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = svc.AddFavorite(ctx, user.ID, seeded["pho-katy"].ID)
	require.NoError(t, err)
	assert.False(t, added, "adding twice is a no-op")

	favs, err := svc.Favorites(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, favs, 1)
	assert.Equal(t, "Pho Katy", favs[0].Name)

	require.NoError(t, svc.RemoveFavorite(ctx, user.ID, seeded["pho-katy"].ID))
	favs, err = svc.Favorites(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, favs)
}
