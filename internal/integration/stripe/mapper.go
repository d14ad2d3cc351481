package stripe

import (
	"context"
	"strings"
	"time"

	"github.com/Dhoini/ekaty/internal/config"
	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/repository"
	"github.com/stripe/stripe-go/v78"
)

// MapStatus переводит статус подписки Stripe в локальный.
// incomplete и unpaid считаются past_due, incomplete_expired и paused отменой.
func MapStatus(s stripe.SubscriptionStatus) domain.SubscriptionStatus {
	switch s {
	case stripe.SubscriptionStatusActive:
		return domain.SubscriptionStatusActive
	case stripe.SubscriptionStatusTrialing:
		return domain.SubscriptionStatusTrialing
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusIncomplete, stripe.SubscriptionStatusUnpaid:
		return domain.SubscriptionStatusPastDue
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired, stripe.SubscriptionStatusPaused:
		return domain.SubscriptionStatusCanceled
	default:
		return domain.SubscriptionStatusPastDue
	}
}

func unixTime(ts int64) *time.Time {
	if ts <= 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}

func metadataTier(md map[string]string) domain.Tier {
	if t, err := domain.ParseTier(md[MetadataTier]); err == nil {
		return t
	}
	return ""
}

func checkoutSnapshot(s *stripe.CheckoutSession) *domain.CheckoutSnapshot {
	snap := &domain.CheckoutSnapshot{
		SessionID:     s.ID,
		CustomerEmail: s.CustomerEmail,
		UserID:        s.Metadata[MetadataUserID],
		RestaurantID:  s.Metadata[MetadataRestaurantID],
		Tier:          metadataTier(s.Metadata),
		PriceID:       s.Metadata[MetadataPriceID],
	}
	if snap.UserID == "" {
		snap.UserID = s.ClientReferenceID
	}
	if s.Customer != nil {
		snap.CustomerID = s.Customer.ID
	}
	if s.CustomerDetails != nil && s.CustomerDetails.Email != "" {
		snap.CustomerEmail = s.CustomerDetails.Email
	}
	if s.Subscription != nil {
		snap.SubscriptionID = s.Subscription.ID
	}
	return snap
}

func subscriptionSnapshot(s *stripe.Subscription) *domain.SubscriptionSnapshot {
	snap := &domain.SubscriptionSnapshot{
		ID:                 s.ID,
		Status:             MapStatus(s.Status),
		UserID:             s.Metadata[MetadataUserID],
		RestaurantID:       s.Metadata[MetadataRestaurantID],
		Tier:               metadataTier(s.Metadata),
		CurrentPeriodStart: unixTime(s.CurrentPeriodStart),
		CurrentPeriodEnd:   unixTime(s.CurrentPeriodEnd),
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
		CanceledAt:         unixTime(s.CanceledAt),
	}
	if s.Customer != nil {
		snap.CustomerID = s.Customer.ID
	}
	if s.Items != nil {
		for _, item := range s.Items.Data {
			if item != nil && item.Price != nil {
				snap.PriceID = item.Price.ID
				break
			}
		}
	}
	return snap
}

func invoiceSnapshot(inv *stripe.Invoice) *domain.InvoiceSnapshot {
	snap := &domain.InvoiceSnapshot{
		ID:            inv.ID,
		CustomerEmail: inv.CustomerEmail,
		AmountPaid:    inv.AmountPaid,
		AmountDue:     inv.AmountDue,
		Currency:      string(inv.Currency),
		AttemptCount:  int(inv.AttemptCount),
		HostedURL:     inv.HostedInvoiceURL,
	}
	if inv.Subscription != nil {
		snap.SubscriptionID = inv.Subscription.ID
	}
	if inv.Customer != nil {
		snap.CustomerID = inv.Customer.ID
	}
	if inv.StatusTransitions != nil {
		snap.PaidAt = unixTime(inv.StatusTransitions.PaidAt)
	}
	snap.FailureMessage = invoiceFailure(inv)
	return snap
}

// invoiceFailure причина отказа: ошибка платежа, затем отказ по списанию, затем ошибка финализации.
// charge и payment_intent приходят объектами, только если событие раскрывает их.
func invoiceFailure(inv *stripe.Invoice) string {
	if pi := inv.PaymentIntent; pi != nil && pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
		return pi.LastPaymentError.Msg
	}
	if ch := inv.Charge; ch != nil && ch.FailureMessage != "" {
		return ch.FailureMessage
	}
	if inv.LastFinalizationError != nil {
		return inv.LastFinalizationError.Msg
	}
	return ""
}

// TierResolver определяет тариф по ID цены или по метаданным события
type TierResolver struct {
	prices map[string]domain.Tier
	tiers  repository.PartnershipTierRepository
}

// NewTierResolver создает резолвер по ценам из конфигурации и партнерским тарифам.
// tiers может быть nil.
func NewTierResolver(cfg config.StripeConfig, tiers repository.PartnershipTierRepository) *TierResolver {
	prices := make(map[string]domain.Tier, len(cfg.Prices))
	for name, price := range cfg.Prices {
		if t, err := domain.ParseTier(name); err == nil && price != "" {
			prices[price] = t
		}
	}
	return &TierResolver{prices: prices, tiers: tiers}
}

// Resolve возвращает тариф: по цене из конфигурации, затем по партнерским тарифам,
// и только для неизвестной цены из метаданных. Метаданные подписки фиксируются при checkout
// и после смены плана в портале устаревают. Пустой результат означает, что тариф неизвестен.
func (r *TierResolver) Resolve(ctx context.Context, fromMetadata domain.Tier, priceID string) domain.Tier {
	if t := r.byPrice(ctx, strings.TrimSpace(priceID)); t != "" {
		return t
	}
	if fromMetadata.IsPaid() {
		return fromMetadata
	}
	return ""
}

func (r *TierResolver) byPrice(ctx context.Context, priceID string) domain.Tier {
	if priceID == "" {
		return ""
	}
	if t, ok := r.prices[priceID]; ok {
		return t
	}
	if r.tiers != nil {
		if pt, err := r.tiers.GetByPriceID(ctx, priceID); err == nil {
			return pt.Tier
		}
	}
	return ""
}
