package service

import (
	"context"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/integration/anthropic"
	"github.com/Dhoini/ekaty/internal/integration/stripe"
	"github.com/stretchr/testify/mock"
)

// MockBillingGateway is a mock implementation of BillingGateway.
type MockBillingGateway struct {
	mock.Mock
}

func (m *MockBillingGateway) PriceForTier(tier domain.Tier) (string, error) {
	args := m.Called(tier)
	return args.String(0), args.Error(1)
}

func (m *MockBillingGateway) EnsureCustomer(ctx context.Context, user *domain.User) (string, error) {
	args := m.Called(ctx, user)
	return args.String(0), args.Error(1)
}

func (m *MockBillingGateway) CreateCheckoutSession(ctx context.Context, p stripe.CheckoutParams) (*domain.CheckoutSession, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CheckoutSession), args.Error(1)
}

func (m *MockBillingGateway) CreatePortalSession(ctx context.Context, customerID string) (string, error) {
	args := m.Called(ctx, customerID)
	return args.String(0), args.Error(1)
}

func (m *MockBillingGateway) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error {
	args := m.Called(ctx, subscriptionID)
	return args.Error(0)
}

// MockCompleter is a mock implementation of Completer.
type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, system, prompt string) (*anthropic.Completion, error) {
	args := m.Called(ctx, system, prompt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.Completion), args.Error(1)
}
