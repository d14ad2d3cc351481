package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Dhoini/ekaty/internal/config"
	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// Ключи метаданных, которыми checkout связывает подписку с пользователем и рестораном
const (
	MetadataUserID       = "user_id"
	MetadataRestaurantID = "restaurant_id"
	MetadataTier         = "tier"
	MetadataPriceID      = "price_id"
)

// CheckoutParams параметры новой сессии оплаты
type CheckoutParams struct {
	User         *domain.User
	CustomerID   string
	Tier         domain.Tier
	PriceID      string
	RestaurantID string
}

// Client обертка над Stripe SDK для операций биллинга
type Client struct {
	api *client.API
	cfg config.StripeConfig
	log *logger.Logger
}

// NewClient создает клиент Stripe. Без API ключа клиент создается,
// но все вызовы возвращают domain.ErrNotConfigured.
func NewClient(cfg config.StripeConfig, log *logger.Logger) *Client {
	c := &Client{cfg: cfg, log: log}
	if cfg.APIKey != "" {
		sc := &client.API{}
		sc.Init(cfg.APIKey, nil)
		c.api = sc
	}
	return c
}

// Configured сообщает, задан ли API ключ
func (c *Client) Configured() bool {
	return c.api != nil
}

// LiveMode сообщает, используется ли боевой ключ (sk_live_ / rk_live_)
func (c *Client) LiveMode() bool {
	return strings.Contains(c.cfg.APIKey, "_live_")
}

// PriceForTier возвращает ID цены Stripe для тарифа из конфигурации
func (c *Client) PriceForTier(tier domain.Tier) (string, error) {
	price := c.cfg.Prices[strings.ToLower(string(tier))]
	if price == "" {
		return "", fmt.Errorf("%w: %s", domain.ErrSubscriptionPlanNotFound, tier)
	}
	return price, nil
}

// EnsureCustomer возвращает ID клиента Stripe пользователя, создавая клиента при необходимости
func (c *Client) EnsureCustomer(ctx context.Context, user *domain.User) (string, error) {
	if user.StripeCustomerID != "" {
		return user.StripeCustomerID, nil
	}
	if !c.Configured() {
		return "", domain.ErrNotConfigured
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(user.Email),
		Metadata: map[string]string{
			MetadataUserID: user.ID.String(),
		},
	}
	if user.Name != "" {
		params.Name = stripe.String(user.Name)
	}
	params.Context = ctx

	cus, err := c.api.Customers.New(params)
	if err != nil {
		logStripeError(c.log, "EnsureCustomer", err)
		return "", wrapError("create customer", err)
	}
	c.log.Infow("Stripe customer created", "stripeCustomerID", cus.ID, "userID", user.ID)
	return cus.ID, nil
}

// CreateCheckoutSession создает сессию оплаты подписки
func (c *Client) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*domain.CheckoutSession, error) {
	if !c.Configured() {
		return nil, domain.ErrNotConfigured
	}

	metadata := map[string]string{
		MetadataUserID:  p.User.ID.String(),
		MetadataTier:    string(p.Tier),
		MetadataPriceID: p.PriceID,
	}
	if p.RestaurantID != "" {
		metadata[MetadataRestaurantID] = p.RestaurantID
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(c.cfg.SuccessURL),
		CancelURL:         stripe.String(c.cfg.CancelURL),
		ClientReferenceID: stripe.String(p.User.ID.String()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(p.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		// Метаданные дублируются в подписку, чтобы события customer.subscription.* знали владельца
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
	}
	params.Metadata = metadata
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	} else {
		params.CustomerEmail = stripe.String(p.User.Email)
	}
	params.Context = ctx

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		logStripeError(c.log, "CreateCheckoutSession", err)
		return nil, wrapError("create checkout session", err)
	}
	c.log.Infow("Stripe checkout session created", "sessionID", sess.ID, "userID", p.User.ID, "tier", p.Tier)
	return &domain.CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// CreatePortalSession создает сессию клиентского портала Stripe и возвращает ее URL
func (c *Client) CreatePortalSession(ctx context.Context, customerID string) (string, error) {
	if !c.Configured() {
		return "", domain.ErrNotConfigured
	}
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(c.cfg.PortalReturn),
	}
	params.Context = ctx

	sess, err := c.api.BillingPortalSessions.New(params)
	if err != nil {
		logStripeError(c.log, "CreatePortalSession", err)
		return "", wrapError("create portal session", err)
	}
	return sess.URL, nil
}

// CancelAtPeriodEnd помечает подписку к отмене в конце оплаченного периода.
// Локальное состояние меняется только после вебхука customer.subscription.updated.
func (c *Client) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error {
	if !c.Configured() {
		return domain.ErrNotConfigured
	}
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	params.Context = ctx

	if _, err := c.api.Subscriptions.Update(subscriptionID, params); err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return fmt.Errorf("stripe subscription %s: %w", subscriptionID, domain.ErrNotFound)
		}
		logStripeError(c.log, "CancelAtPeriodEnd", err)
		return wrapError("cancel subscription", err)
	}
	c.log.Infow("Stripe subscription set to cancel at period end", "stripeSubscriptionID", subscriptionID)
	return nil
}

// Ping проверяет ключ запросом баланса аккаунта
func (c *Client) Ping(ctx context.Context) error {
	if !c.Configured() {
		return domain.ErrNotConfigured
	}
	params := &stripe.BalanceParams{}
	params.Context = ctx
	if _, err := c.api.Balance.Get(params); err != nil {
		return wrapError("get balance", err)
	}
	return nil
}

func wrapError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return domain.NewExternalServiceError("stripe", string(stripeErr.Code), op, stripeErr.HTTPStatusCode, err)
	}
	return domain.NewExternalServiceError("stripe", "", op, 0, err)
}

// logStripeError логирует детали ошибки Stripe
func logStripeError(log *logger.Logger, operation string, err error) {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		log.Errorw("Stripe API error",
			"operation", operation,
			"type", string(stripeErr.Type),
			"code", string(stripeErr.Code),
			"param", stripeErr.Param,
			"message", stripeErr.Msg,
			"request_id", stripeErr.RequestID,
			"status_code", stripeErr.HTTPStatusCode,
		)
		return
	}
	log.Errorw("Non-Stripe error during Stripe operation", "operation", operation, "error", err)
}
