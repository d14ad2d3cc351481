package stripe

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// SignatureHeader заголовок с подписью события
const SignatureHeader = "Stripe-Signature"

// EventParser проверяет подпись вебхука и приводит событие к domain.BillingEvent
type EventParser struct {
	secret    string
	tolerance time.Duration
}

// NewEventParser создает парсер событий с секретом STRIPE_WEBHOOK_SECRET
func NewEventParser(secret string) *EventParser {
	return &EventParser{secret: secret, tolerance: webhook.DefaultTolerance}
}

// Parse проверяет подпись и разбирает объект события.
// Ошибки подписи и формата оборачивают domain.ErrWebhookValidationFailed.
func (p *EventParser) Parse(payload []byte, sigHeader string) (*domain.BillingEvent, error) {
	if p.secret == "" {
		return nil, fmt.Errorf("webhook secret: %w", domain.ErrNotConfigured)
	}
	if sigHeader == "" {
		return nil, fmt.Errorf("%w: missing %s header", domain.ErrWebhookValidationFailed, SignatureHeader)
	}

	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, p.secret, webhook.ConstructEventOptions{
		Tolerance:                p.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrWebhookValidationFailed, err)
	}
	return decodeEvent(event, payload)
}

// Decode разбирает ранее проверенное и сохраненное событие без проверки подписи.
// Используется при повторной обработке.
func (p *EventParser) Decode(payload []byte) (*domain.BillingEvent, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: decode event: %v", domain.ErrWebhookValidationFailed, err)
	}
	return decodeEvent(event, payload)
}

func decodeEvent(event stripe.Event, payload []byte) (*domain.BillingEvent, error) {
	out := &domain.BillingEvent{
		ID:      event.ID,
		Type:    domain.WebhookEventType(event.Type),
		Created: time.Unix(event.Created, 0).UTC(),
		Payload: payload,
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return out, nil
	}

	switch out.Type {
	case domain.WebhookEventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("%w: decode checkout session: %v", domain.ErrWebhookValidationFailed, err)
		}
		out.Checkout = checkoutSnapshot(&sess)

	case domain.WebhookEventSubscriptionCreated, domain.WebhookEventSubscriptionUpdated, domain.WebhookEventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: decode subscription: %v", domain.ErrWebhookValidationFailed, err)
		}
		out.Subscription = subscriptionSnapshot(&sub)

	case domain.WebhookEventInvoicePaid, domain.WebhookEventInvoicePaymentSucceed, domain.WebhookEventInvoicePaymentFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("%w: decode invoice: %v", domain.ErrWebhookValidationFailed, err)
		}
		out.Invoice = invoiceSnapshot(&inv)
	}
	return out, nil
}
