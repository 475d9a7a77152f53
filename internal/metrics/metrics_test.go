package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New()

	m.IncPaymentVerified(VerifyRecorded)
	m.IncPaymentVerified(VerifyRecorded)
	m.IncPaymentVerified(VerifyReplayed)
	m.IncWebhookDelivery("payment_succeeded", DeliveryDelivered)
	m.AddSubscriptionTransitions("expired", 3)
	m.AddSubscriptionTransitions("expired", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.paymentsVerified.WithLabelValues(VerifyRecorded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.paymentsVerified.WithLabelValues(VerifyReplayed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhookDeliveries.WithLabelValues("payment_succeeded", DeliveryDelivered)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.subscriptionTransitions.WithLabelValues("expired")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncPaymentVerified(VerifyFailed)
		m.IncWebhookDelivery("x", DeliveryFailed)
		m.AddSubscriptionTransitions("active", 1)
	})
}
