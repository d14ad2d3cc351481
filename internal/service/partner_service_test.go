package service

import (
	"context"
	"testing"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/repository/memory"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "pho house", NormalizeName("The Pho House!"))
	assert.Equal(t, "joe s bbq", NormalizeName("Joe's BBQ"))
	assert.Equal(t, "the", NormalizeName("The"))
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "2815550101", NormalizePhone("+1 (281) 555-0101"))
	assert.Equal(t, "5550101", NormalizePhone("555-0101"))
}

func TestPartnerService_Reconcile(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewPartnerService(store.PartnershipTiers(), store.PartnerRestaurants(), store.Restaurants(), logger.NewNop())

	byPlace := &domain.Restaurant{Name: "Taco Loco", Slug: "taco-loco", GooglePlaceID: "ChIJtaco", Active: true}
	byName := &domain.Restaurant{Name: "The Pho House", Slug: "the-pho-house", Phone: "(281) 555-0101", Active: true}
	require.NoError(t, store.Restaurants().Create(ctx, byPlace))
	require.NoError(t, store.Restaurants().Create(ctx, byName))

	_, err := svc.CreateRestaurant(ctx, domain.PartnerRestaurant{Name: "Taco Loco Katy", GooglePlaceID: "ChIJtaco"})
	require.NoError(t, err)
	_, err = svc.CreateRestaurant(ctx, domain.PartnerRestaurant{Name: "Pho House", Phone: "+1 281-555-0101", Email: "Owner@PhoHouse.com"})
	require.NoError(t, err)
	_, err = svc.CreateRestaurant(ctx, domain.PartnerRestaurant{Name: "Pho House", Phone: "281-555-0999"})
	require.NoError(t, err)

	report, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Checked)
	assert.Equal(t, 2, report.Linked)
	assert.Equal(t, 1, report.Unmatched)

	partners, err := svc.Restaurants(ctx)
	require.NoError(t, err)
	links := map[string]*uuid.UUID{}
	for _, p := range partners {
		links[p.Name+"|"+p.Phone] = p.CatalogRestaurantID
		if p.Email != "" {
			assert.Equal(t, "owner@phohouse.com", p.Email)
		}
	}
	require.NotNil(t, links["Taco Loco Katy|"])
	assert.Equal(t, byPlace.ID, *links["Taco Loco Katy|"])
	require.NotNil(t, links["Pho House|+1 281-555-0101"])
	assert.Equal(t, byName.ID, *links["Pho House|+1 281-555-0101"])
	assert.Nil(t, links["Pho House|281-555-0999"])

	again, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Checked, "linked partners are skipped")
}

func TestPartnerService_UpsertTier(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewPartnerService(store.PartnershipTiers(), store.PartnerRestaurants(), store.Restaurants(), logger.NewNop())

	tier, err := svc.UpsertTier(ctx, domain.PartnershipTierInput{
		Tier:              "pro",
		MonthlyPriceCents: 7900,
		StripePriceID:     "price_pro",
		Features:          []string{"Analytics", " ", "Photo gallery"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TierPro, tier.Tier)
	assert.Equal(t, "PRO", tier.DisplayName)
	assert.Equal(t, []string{"Analytics", "Photo gallery"}, tier.Features)
	assert.True(t, tier.Active)

	_, err = svc.UpsertTier(ctx, domain.PartnershipTierInput{Tier: "pro", MonthlyPriceCents: 7900, StripePriceID: "prod_123"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = svc.UpsertTier(ctx, domain.PartnershipTierInput{Tier: "free", MonthlyPriceCents: 100})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.UpsertTier(ctx, domain.PartnershipTierInput{Tier: "basic", MonthlyPriceCents: 2900, Active: ptr(false)})
	require.NoError(t, err)
	active, err := svc.Tiers(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, domain.TierPro, active[0].Tier)
}
