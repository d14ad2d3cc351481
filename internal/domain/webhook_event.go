package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEventType тип события вебхука Stripe
type WebhookEventType string

const (
	WebhookEventCheckoutCompleted     WebhookEventType = "checkout.session.completed"
	WebhookEventSubscriptionCreated   WebhookEventType = "customer.subscription.created"
	WebhookEventSubscriptionUpdated   WebhookEventType = "customer.subscription.updated"
	WebhookEventSubscriptionDeleted   WebhookEventType = "customer.subscription.deleted"
	WebhookEventInvoicePaid           WebhookEventType = "invoice.paid"
	WebhookEventInvoicePaymentSucceed WebhookEventType = "invoice.payment_succeeded"
	WebhookEventInvoicePaymentFailed  WebhookEventType = "invoice.payment_failed"
)

// WebhookEventStatus статус обработки события
type WebhookEventStatus string

const (
	WebhookEventStatusPending   WebhookEventStatus = "pending"
	WebhookEventStatusProcessed WebhookEventStatus = "processed"
	WebhookEventStatusSkipped   WebhookEventStatus = "skipped"
	WebhookEventStatusFailed    WebhookEventStatus = "failed"
)

// Final сообщает, что событие уже обработано и повтор не нужен
func (s WebhookEventStatus) Final() bool {
	return s == WebhookEventStatusProcessed || s == WebhookEventStatusSkipped
}

// WebhookEvent представляет событие вебхука
type WebhookEvent struct {
	ID             uuid.UUID          `json:"id"`
	ExternalID     string             `json:"external_id"` // ID события в Stripe (evt_...)
	Type           WebhookEventType   `json:"type"`
	Status         WebhookEventStatus `json:"status"`
	Payload        []byte             `json:"-"`
	ResourceID     string             `json:"resource_id"` // ID ресурса, к которому относится событие
	Provider       string             `json:"provider"`
	AttemptCount   int                `json:"attempt_count"`
	LastAttempt    *time.Time         `json:"last_attempt,omitempty"`
	ProcessedAt    *time.Time         `json:"processed_at,omitempty"`
	ErrorMessage   string             `json:"error_message,omitempty"`
	Pending        *WebhookEffects    `json:"pending,omitempty"` // отложенные письма и публикации неудачной попытки
	EventCreatedAt time.Time          `json:"event_created_at"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// WebhookNotice письмо, которое нужно отправить после успешной обработки события
type WebhookNotice struct {
	Kind   string            `json:"kind"`
	UserID uuid.UUID         `json:"user_id"`
	Vars   map[string]string `json:"vars,omitempty"`
}

// WebhookEffects побочные эффекты события, выполняемые только после фиксации итога.
// Сохраняются при неудачной попытке: повтор уже не увидит изменений, которые их вызвали.
type WebhookEffects struct {
	Notices []WebhookNotice      `json:"notices,omitempty"`
	Changes []SubscriptionChange `json:"changes,omitempty"`
}

// Empty сообщает, что отложенных эффектов нет
func (e *WebhookEffects) Empty() bool {
	return e == nil || (len(e.Notices) == 0 && len(e.Changes) == 0)
}

// BillingEvent событие Stripe после проверки подписи, приведенное к нашим типам
type BillingEvent struct {
	ID           string
	Type         WebhookEventType
	Created      time.Time
	Payload      []byte
	Checkout     *CheckoutSnapshot
	Subscription *SubscriptionSnapshot
	Invoice      *InvoiceSnapshot
}

// ResourceID идентификатор объекта Stripe, к которому относится событие
func (e BillingEvent) ResourceID() string {
	switch {
	case e.Subscription != nil:
		return e.Subscription.ID
	case e.Invoice != nil:
		return e.Invoice.ID
	case e.Checkout != nil:
		return e.Checkout.SessionID
	}
	return ""
}

// CheckoutSnapshot данные завершенной сессии checkout
type CheckoutSnapshot struct {
	SessionID      string
	CustomerID     string
	CustomerEmail  string
	SubscriptionID string
	UserID         string
	RestaurantID   string
	Tier           Tier
	PriceID        string
}

// SubscriptionSnapshot состояние подписки в момент события
type SubscriptionSnapshot struct {
	ID                 string
	CustomerID         string
	Status             SubscriptionStatus
	PriceID            string
	Tier               Tier
	UserID             string
	RestaurantID       string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
}

// InvoiceSnapshot состояние счета в момент события
type InvoiceSnapshot struct {
	ID             string
	SubscriptionID string
	CustomerID     string
	CustomerEmail  string
	AmountPaid     int64
	AmountDue      int64
	Currency       string
	AttemptCount   int
	HostedURL      string
	FailureMessage string
	PaidAt         *time.Time
}

// WebhookResult итог обработки события
type WebhookResult struct {
	EventID   string             `json:"event_id"`
	Status    WebhookEventStatus `json:"status"`
	Duplicate bool               `json:"duplicate"`
}
