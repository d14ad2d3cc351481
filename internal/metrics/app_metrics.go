package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics метрики HTTP запросов
type HTTPMetrics interface {
	ObserveRequest(method, route string, status int, duration time.Duration)
}

// IntegrationMetrics метрики внешних сервисов и рассылок
type IntegrationMetrics interface {
	ObserveExternalCall(service, outcome string, duration time.Duration)
	IncEmail(provider, kind, outcome string)
	ObserveSearchResults(n int)
}

type httpMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewHTTPMetrics регистрирует метрики HTTP
func NewHTTPMetrics(registry prometheus.Registerer) HTTPMetrics {
	factory := promauto.With(registry)
	return &httpMetrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status class",
		}, []string{"method", "route", "status"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *httpMetrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	m.requests.WithLabelValues(method, route, statusClass(status)).Inc()
	m.latency.WithLabelValues(method, route).Observe(duration.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

type integrationMetrics struct {
	calls   *prometheus.HistogramVec
	emails  *prometheus.CounterVec
	results prometheus.Histogram
}

// NewIntegrationMetrics регистрирует метрики внешних интеграций
func NewIntegrationMetrics(registry prometheus.Registerer) IntegrationMetrics {
	factory := promauto.With(registry)
	return &integrationMetrics{
		calls: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_call_duration_seconds",
			Help:      "Calls to Places, Anthropic and email providers",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"service", "outcome"}),
		emails: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_total",
			Help:      "Emails by provider, kind and outcome",
		}, []string{"provider", "kind", "outcome"}),
		results: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results",
			Help:      "Number of restaurants matched per search",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100, 250},
		}),
	}
}

func (m *integrationMetrics) ObserveExternalCall(service, outcome string, duration time.Duration) {
	m.calls.WithLabelValues(service, outcome).Observe(duration.Seconds())
}

func (m *integrationMetrics) IncEmail(provider, kind, outcome string) {
	m.emails.WithLabelValues(provider, kind, outcome).Inc()
}

func (m *integrationMetrics) ObserveSearchResults(n int) {
	m.results.Observe(float64(n))
}

// Nop метрики, которые ничего не пишут
type Nop struct{}

var (
	_ BillingMetrics     = Nop{}
	_ HTTPMetrics        = Nop{}
	_ IntegrationMetrics = Nop{}
)

func (Nop) IncWebhookEvent(string, string) {}
func (Nop) IncSubscriptionChange(string, string) {}
func (Nop) IncPaymentRecorded(string, string) {}
func (Nop) ObservePaymentAmount(int64, string, string) {}
func (Nop) ObserveRequest(string, string, int, time.Duration) {}
func (Nop) ObserveExternalCall(string, string, time.Duration) {}
func (Nop) IncEmail(string, string, string) {}
func (Nop) ObserveSearchResults(int) {}
