package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus статус подписки
type SubscriptionStatus string

const (
	SubscriptionStatusNone     SubscriptionStatus = ""
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// IsLive сообщает, что подписка приносит доход (учитывается в MRR)
func (s SubscriptionStatus) IsLive() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrialing || s == SubscriptionStatusPastDue
}

// Subscription локальная копия подписки Stripe
type Subscription struct {
	ID                   uuid.UUID          `json:"id"`
	UserID               uuid.UUID          `json:"user_id"`
	RestaurantID         *uuid.UUID         `json:"restaurant_id,omitempty"`
	StripeSubscriptionID string             `json:"stripe_subscription_id"`
	StripeCustomerID     string             `json:"stripe_customer_id"`
	StripePriceID        string             `json:"stripe_price_id,omitempty"`
	Tier                 Tier               `json:"tier"`
	Status               SubscriptionStatus `json:"status"`
	CurrentPeriodStart   *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time         `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool               `json:"cancel_at_period_end"`
	CanceledAt           *time.Time         `json:"canceled_at,omitempty"`
	LastEventAt          time.Time          `json:"last_event_at"`
	LastEventID          string             `json:"last_event_id"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// EffectiveTier тариф подписки с учетом статуса
func (s *Subscription) EffectiveTier() Tier {
	return EffectiveTier(s.Tier, s.Status)
}

// PaymentStatus статус платежа по счету
type PaymentStatus string

const (
	PaymentStatusPaid   PaymentStatus = "paid"
	PaymentStatusFailed PaymentStatus = "failed"
)

// Payment платеж по счету Stripe. Уникален по (StripeInvoiceID, Status).
type Payment struct {
	ID                   uuid.UUID     `json:"id"`
	UserID               *uuid.UUID    `json:"user_id,omitempty"`
	StripeSubscriptionID string        `json:"stripe_subscription_id,omitempty"`
	StripeInvoiceID      string        `json:"stripe_invoice_id"`
	AmountCents          int64         `json:"amount_cents"`
	Currency             string        `json:"currency"`
	Status               PaymentStatus `json:"status"`
	AttemptCount         int           `json:"attempt_count"`
	FailureReason        string        `json:"failure_reason,omitempty"`
	PaidAt               *time.Time    `json:"paid_at,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// ClaimStatus статус заявки на ресторан
type ClaimStatus string

const (
	ClaimStatusActive ClaimStatus = "active"
)

// RestaurantClaim закрепление ресторана за владельцем после оплаты. Уникален по сессии checkout.
type RestaurantClaim struct {
	ID                      uuid.UUID   `json:"id"`
	RestaurantID            uuid.UUID   `json:"restaurant_id"`
	UserID                  uuid.UUID   `json:"user_id"`
	StripeCheckoutSessionID string      `json:"stripe_checkout_session_id"`
	StripeSubscriptionID    string      `json:"stripe_subscription_id,omitempty"`
	Tier                    Tier        `json:"tier"`
	Status                  ClaimStatus `json:"status"`
	CreatedAt               time.Time   `json:"created_at"`
}

// CheckoutRequest запрос на оформление подписки
type CheckoutRequest struct {
	Tier         string `json:"tier" binding:"required"`
	RestaurantID string `json:"restaurant_id,omitempty"`
}

// CheckoutSession результат создания сессии оплаты
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// SubscriptionChange изменение состояния подписки после обработки события
type SubscriptionChange struct {
	Subscription   Subscription       `json:"subscription"`
	PreviousTier   Tier               `json:"previous_tier"`
	PreviousStatus SubscriptionStatus `json:"previous_status"`
	EventID        string             `json:"event_id"`
	EventType      string             `json:"event_type"`
	OccurredAt     time.Time          `json:"occurred_at"`
}

// Changed сообщает, изменились ли тариф или статус
func (c SubscriptionChange) Changed() bool {
	return c.PreviousTier != c.Subscription.Tier || c.PreviousStatus != c.Subscription.Status
}
