package notificator

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/core-coin/solvere/internal/metrics"
	"github.com/core-coin/solvere/pkg/logger"
)

// EventHeader carries the event name on every webhook request.
const EventHeader = "X-Webhook-Event"

// WebhookPayload is the JSON body POSTed to merchant webhooks.
type WebhookPayload struct {
	Event     string                 `json:"event"`
	Data      map[string]interface{} `json:"data"`
	Timestamp string                 `json:"timestamp"`
}

// WebhookNotificator makes a single delivery attempt per event.
type WebhookNotificator struct {
	logger  *logger.Logger
	client  *resty.Client
	metrics *metrics.Metrics
	clock   func() time.Time
}

func NewWebhookNotificator(logger *logger.Logger, timeout time.Duration, m *metrics.Metrics) *WebhookNotificator {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	return &WebhookNotificator{
		logger:  logger,
		client:  client,
		metrics: m,
		clock:   time.Now,
	}
}

// SendNotification POSTs event to url. A transport error or a non-2xx
// response is returned to the caller, who only logs it.
func (w *WebhookNotificator) SendNotification(ctx context.Context, url, event string, data map[string]interface{}) error {
	payload := WebhookPayload{
		Event:     event,
		Data:      data,
		Timestamp: w.clock().UTC().Format(time.RFC3339),
	}

	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader(EventHeader, event).
		SetBody(payload).
		Post(url)
	if err != nil {
		w.metrics.IncWebhookDelivery(event, metrics.DeliveryFailed)
		return fmt.Errorf("failed to deliver webhook: %w", err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		w.metrics.IncWebhookDelivery(event, metrics.DeliveryRejected)
		return fmt.Errorf("webhook returned non-2xx status: %d", resp.StatusCode())
	}

	w.metrics.IncWebhookDelivery(event, metrics.DeliveryDelivered)
	w.logger.Debugw("Webhook delivered", "event", event, "url", url, "status", resp.StatusCode(), "duration", resp.Time())
	return nil
}
