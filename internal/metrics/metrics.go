package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Verification outcomes.
const (
	VerifyRecorded = "recorded"
	VerifyReplayed = "replayed"
	VerifyRejected = "rejected"
	VerifyFailed   = "failed"
)

// Webhook delivery outcomes.
const (
	DeliveryDelivered = "delivered"
	DeliveryRejected  = "rejected"
	DeliveryFailed    = "failed"
)

// Metrics holds the counters of the service.
type Metrics struct {
	Registry *prometheus.Registry

	paymentsVerified        *prometheus.CounterVec
	webhookDeliveries       *prometheus.CounterVec
	subscriptionTransitions *prometheus.CounterVec
}

// New registers the counters on a fresh registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

func NewWithRegistry(registry *prometheus.Registry) *Metrics {
	return &Metrics{
		Registry: registry,
		paymentsVerified: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "solvere_payments_verified_total",
				Help: "The total number of payment verifications by result",
			},
			[]string{"result"},
		),
		webhookDeliveries: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "solvere_webhook_deliveries_total",
				Help: "The total number of webhook deliveries by event and outcome",
			},
			[]string{"event", "outcome"},
		),
		subscriptionTransitions: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "solvere_subscription_transitions_total",
				Help: "The total number of subscription status transitions",
			},
			[]string{"status"},
		),
	}
}

// The methods are nil-safe so components can run without metrics.

func (m *Metrics) IncPaymentVerified(result string) {
	if m == nil {
		return
	}
	m.paymentsVerified.WithLabelValues(result).Inc()
}

func (m *Metrics) IncWebhookDelivery(event, outcome string) {
	if m == nil {
		return
	}
	m.webhookDeliveries.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) AddSubscriptionTransitions(status string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.subscriptionTransitions.WithLabelValues(status).Add(float64(n))
}
