package service

import (
	"context"
	"testing"
	"time"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/integration/stripe"
	"github.com/Dhoini/ekaty/internal/repository/memory"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newBillingService(t *testing.T) (BillingService, *MockBillingGateway, *memory.Store, *domain.User) {
	t.Helper()
	store := memory.NewStore()
	user := &domain.User{Email: "owner@example.com", Role: domain.RoleUser}
	require.NoError(t, store.Users().Create(context.Background(), user))
	gw := &MockBillingGateway{}
	svc := NewBillingService(gw, store.Users(), store.Restaurants(), store.Subscriptions(), store.Payments(),
		store.Claims(), store.PartnershipTiers(), logger.NewNop())
	return svc, gw, store, user
}

func TestBillingService_Checkout(t *testing.T) {
	ctx := context.Background()
	svc, gw, store, user := newBillingService(t)
	rest := &domain.Restaurant{Name: "Taco Loco", Slug: "taco-loco", Active: true}
	require.NoError(t, store.Restaurants().Create(ctx, rest))

	gw.On("PriceForTier", domain.TierPro).Return("price_pro", nil)
	gw.On("EnsureCustomer", mock.Anything, mock.MatchedBy(func(u *domain.User) bool { return u.ID == user.ID })).Return("cus_new", nil)
	gw.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(p stripe.CheckoutParams) bool {
		return p.Tier == domain.TierPro && p.PriceID == "price_pro" && p.CustomerID == "cus_new" && p.RestaurantID == rest.ID.String()
	})).Return(&domain.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.com/cs_1"}, nil)

	sess, err := svc.Checkout(ctx, user.ID, domain.CheckoutRequest{Tier: "pro", RestaurantID: rest.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, "cs_1", sess.ID)

	saved, err := store.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "cus_new", saved.StripeCustomerID)
	gw.AssertExpectations(t)
}

func TestBillingService_CheckoutValidation(t *testing.T) {
	ctx := context.Background()
	svc, gw, store, user := newBillingService(t)

	_, err := svc.Checkout(ctx, user.ID, domain.CheckoutRequest{Tier: "free"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.Checkout(ctx, user.ID, domain.CheckoutRequest{Tier: "gold"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	other := uuid.New()
	claimed := &domain.Restaurant{Name: "Claimed", Slug: "claimed", Active: true, OwnerID: &other}
	require.NoError(t, store.Restaurants().Create(ctx, claimed))
	_, err = svc.Checkout(ctx, user.ID, domain.CheckoutRequest{Tier: "basic", RestaurantID: claimed.ID.String()})
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	gw.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
}

func TestBillingService_PriceFallsBackToPartnershipTiers(t *testing.T) {
	ctx := context.Background()
	svc, gw, store, user := newBillingService(t)
	require.NoError(t, store.PartnershipTiers().Upsert(ctx, &domain.PartnershipTier{
		Tier: domain.TierBasic, DisplayName: "Basic", StripePriceID: "price_basic_db", Active: true,
	}))

	gw.On("PriceForTier", domain.TierBasic).Return("", domain.ErrSubscriptionPlanNotFound)
	gw.On("EnsureCustomer", mock.Anything, mock.Anything).Return("cus_1", nil)
	gw.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(p stripe.CheckoutParams) bool {
		return p.PriceID == "price_basic_db"
	})).Return(&domain.CheckoutSession{ID: "cs_2"}, nil)

	_, err := svc.Checkout(ctx, user.ID, domain.CheckoutRequest{Tier: "BASIC"})
	require.NoError(t, err)
	gw.AssertExpectations(t)
}

func TestBillingService_Cancel(t *testing.T) {
	ctx := context.Background()
	svc, gw, store, user := newBillingService(t)
	_, err := store.Subscriptions().UpsertIfNewer(ctx, &domain.Subscription{
		UserID: user.ID, StripeSubscriptionID: "sub_1", Tier: domain.TierPro,
		Status: domain.SubscriptionStatusActive, LastEventAt: time.Now(),
	})
	require.NoError(t, err)

	gw.On("CancelAtPeriodEnd", mock.Anything, "sub_1").Return(nil).Once()
	require.NoError(t, svc.Cancel(ctx, user.ID, "sub_1"))

	err = svc.Cancel(ctx, uuid.New(), "sub_1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	gw.AssertExpectations(t)
}

func TestBillingService_PortalRequiresCustomer(t *testing.T) {
	svc, _, _, user := newBillingService(t)
	_, err := svc.Portal(context.Background(), user.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)
}
