package metrics

import (
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ekaty"

// BillingMetrics метрики обработки вебхуков и подписок
type BillingMetrics interface {
	IncWebhookEvent(eventType, outcome string)
	IncSubscriptionChange(tier, status string)
	IncPaymentRecorded(status, currency string)
	ObservePaymentAmount(amountCents int64, currency, status string)
}

type billingMetrics struct {
	log                 *logger.Logger
	webhookEvents       *prometheus.CounterVec
	subscriptionChanges *prometheus.CounterVec
	paymentsRecorded    *prometheus.CounterVec
	paymentsAmount      *prometheus.HistogramVec
}

// NewBillingMetrics регистрирует метрики биллинга в registry
func NewBillingMetrics(registry prometheus.Registerer, log *logger.Logger) BillingMetrics {
	factory := promauto.With(registry)
	return &billingMetrics{
		log: log,
		webhookEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_events_total",
				Help:      "Stripe webhook events by type and outcome (processed, skipped, duplicate, failed, rejected)",
			},
			[]string{"type", "outcome"},
		),
		subscriptionChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subscription_changes_total",
				Help:      "Applied subscription state changes by resulting tier and status",
			},
			[]string{"tier", "status"},
		),
		paymentsRecorded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payments_recorded_total",
				Help:      "Invoice payments recorded by status",
			},
			[]string{"status", "currency"},
		),
		paymentsAmount: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "payments_amount_cents",
				Help:      "Invoice amounts in cents",
				Buckets:   prometheus.ExponentialBuckets(500, 2, 8), // 5$ .. 640$
			},
			[]string{"currency", "status"},
		),
	}
}

func (m *billingMetrics) IncWebhookEvent(eventType, outcome string) {
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (m *billingMetrics) IncSubscriptionChange(tier, status string) {
	m.subscriptionChanges.WithLabelValues(tier, status).Inc()
}

func (m *billingMetrics) IncPaymentRecorded(status, currency string) {
	m.paymentsRecorded.WithLabelValues(status, currency).Inc()
}

// ObservePaymentAmount записывает сумму счета
func (m *billingMetrics) ObservePaymentAmount(amountCents int64, currency, status string) {
	m.paymentsAmount.WithLabelValues(currency, status).Observe(float64(amountCents))
}
