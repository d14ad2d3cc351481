package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/integration/stripe"
	"github.com/Dhoini/ekaty/internal/repository"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/google/uuid"
)

// BillingService оформление и управление подписками партнеров
type BillingService interface {
	// Checkout создает сессию оплаты для тарифа и, при необходимости, ресторана
	Checkout(ctx context.Context, userID uuid.UUID, req domain.CheckoutRequest) (*domain.CheckoutSession, error)
	// Portal возвращает ссылку на клиентский портал Stripe
	Portal(ctx context.Context, userID uuid.UUID) (string, error)
	// Subscriptions подписки пользователя
	Subscriptions(ctx context.Context, userID uuid.UUID) ([]domain.Subscription, error)
	// Payments платежи пользователя
	Payments(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error)
	// Claims рестораны, закрепленные за пользователем
	Claims(ctx context.Context, userID uuid.UUID) ([]domain.RestaurantClaim, error)
	// Cancel отменяет подписку пользователя в конце периода
	Cancel(ctx context.Context, userID uuid.UUID, stripeSubscriptionID string) error
}

// BillingGateway операции платежного провайдера
type BillingGateway interface {
	PriceForTier(tier domain.Tier) (string, error)
	EnsureCustomer(ctx context.Context, user *domain.User) (string, error)
	CreateCheckoutSession(ctx context.Context, p stripe.CheckoutParams) (*domain.CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID string) (string, error)
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error
}

type billingService struct {
	gateway       BillingGateway
	users         repository.UserRepository
	restaurants   repository.RestaurantRepository
	subscriptions repository.SubscriptionRepository
	payments      repository.PaymentRepository
	claims        repository.ClaimRepository
	tiers         repository.PartnershipTierRepository
	log           *logger.Logger
}

// NewBillingService создает сервис подписок. tiers может быть nil.
func NewBillingService(
	gateway BillingGateway,
	users repository.UserRepository,
	restaurants repository.RestaurantRepository,
	subscriptions repository.SubscriptionRepository,
	payments repository.PaymentRepository,
	claims repository.ClaimRepository,
	tiers repository.PartnershipTierRepository,
	log *logger.Logger,
) BillingService {
	return &billingService{
		gateway:       gateway,
		users:         users,
		restaurants:   restaurants,
		subscriptions: subscriptions,
		payments:      payments,
		claims:        claims,
		tiers:         tiers,
		log:           log,
	}
}

func (s *billingService) Checkout(ctx context.Context, userID uuid.UUID, req domain.CheckoutRequest) (*domain.CheckoutSession, error) {
	tier, err := domain.ParseTier(req.Tier)
	if err != nil {
		return nil, err
	}
	if !tier.IsPaid() {
		return nil, fmt.Errorf("%w: tier %s cannot be purchased", domain.ErrInvalidInput, tier)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	var restaurantID string
	if req.RestaurantID != "" {
		id, err := uuid.Parse(req.RestaurantID)
		if err != nil {
			return nil, fmt.Errorf("%w: restaurant_id", domain.ErrInvalidInput)
		}
		rest, err := s.restaurants.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if rest.OwnerID != nil && *rest.OwnerID != user.ID {
			return nil, fmt.Errorf("%w: restaurant is already claimed", domain.ErrDuplicate)
		}
		restaurantID = rest.ID.String()
	}

	priceID, err := s.priceFor(ctx, tier)
	if err != nil {
		return nil, err
	}

	customerID, err := s.gateway.EnsureCustomer(ctx, user)
	if err != nil {
		return nil, err
	}
	if customerID != user.StripeCustomerID {
		if err := s.users.SetStripeCustomerID(ctx, user.ID, customerID); err != nil {
			return nil, fmt.Errorf("save stripe customer: %w", err)
		}
	}

	sess, err := s.gateway.CreateCheckoutSession(ctx, stripe.CheckoutParams{
		User:         user,
		CustomerID:   customerID,
		Tier:         tier,
		PriceID:      priceID,
		RestaurantID: restaurantID,
	})
	if err != nil {
		return nil, err
	}
	s.log.Infow("Checkout started", "userID", user.ID, "tier", tier, "restaurantID", restaurantID)
	return sess, nil
}

// priceFor берет цену из конфигурации, затем из партнерских тарифов
func (s *billingService) priceFor(ctx context.Context, tier domain.Tier) (string, error) {
	price, err := s.gateway.PriceForTier(tier)
	if err == nil {
		return price, nil
	}
	if s.tiers == nil || !errors.Is(err, domain.ErrSubscriptionPlanNotFound) {
		return "", err
	}
	tiers, lerr := s.tiers.List(ctx, true)
	if lerr != nil {
		return "", fmt.Errorf("list partnership tiers: %w", lerr)
	}
	for _, t := range tiers {
		if t.Tier == tier && t.StripePriceID != "" {
			return t.StripePriceID, nil
		}
	}
	return "", err
}

func (s *billingService) Portal(ctx context.Context, userID uuid.UUID) (string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.StripeCustomerID == "" {
		return "", fmt.Errorf("%w: no billing account yet", domain.ErrInvalidOperation)
	}
	return s.gateway.CreatePortalSession(ctx, user.StripeCustomerID)
}

func (s *billingService) Subscriptions(ctx context.Context, userID uuid.UUID) ([]domain.Subscription, error) {
	subs, err := s.subscriptions.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if subs == nil {
		subs = []domain.Subscription{}
	}
	return subs, nil
}

func (s *billingService) Payments(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error) {
	payments, err := s.payments.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if payments == nil {
		payments = []domain.Payment{}
	}
	return payments, nil
}

func (s *billingService) Claims(ctx context.Context, userID uuid.UUID) ([]domain.RestaurantClaim, error) {
	claims, err := s.claims.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if claims == nil {
		claims = []domain.RestaurantClaim{}
	}
	return claims, nil
}

func (s *billingService) Cancel(ctx context.Context, userID uuid.UUID, stripeSubscriptionID string) error {
	sub, err := s.subscriptions.GetByStripeID(ctx, stripeSubscriptionID)
	if err != nil {
		return err
	}
	// Чужая подписка неотличима от отсутствующей
	if sub.UserID != userID {
		return repository.ErrNotFound
	}
	if sub.Status == domain.SubscriptionStatusCanceled {
		return fmt.Errorf("%w: subscription is already canceled", domain.ErrInvalidOperation)
	}
	if sub.CancelAtPeriodEnd {
		return nil
	}
	if err := s.gateway.CancelAtPeriodEnd(ctx, sub.StripeSubscriptionID); err != nil {
		return err
	}
	s.log.Infow("Subscription cancellation requested", "userID", userID, "stripeSubscriptionID", sub.StripeSubscriptionID)
	return nil
}
