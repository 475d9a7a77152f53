package notificator

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/core-coin/solvere/internal/models"
	"github.com/core-coin/solvere/pkg/logger"
)

// Notificator implements models.NotificationService. It delivers an event to
// the merchant webhook, if one is configured, and mirrors it to the operator
// chat when Telegram is enabled.
type Notificator struct {
	logger *logger.Logger
	db     models.Repository

	WebhookNotificator  *WebhookNotificator
	TelegramNotificator *TelegramNotificator
}

func NewNotificator(logger *logger.Logger, db models.Repository, webhookNotif *WebhookNotificator, telNotif *TelegramNotificator) *Notificator {
	return &Notificator{logger: logger, db: db, WebhookNotificator: webhookNotif, TelegramNotificator: telNotif}
}

// safeCall runs a function with panic recovery (synchronous, no goroutine spawning)
func (n *Notificator) safeCall(fn func(), context string) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Errorw("Function panicked",
				"context", context,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

func (n *Notificator) Notify(ctx context.Context, merchantID, event string, data map[string]interface{}) {
	merchant, err := n.db.GetMerchantByID(ctx, merchantID)
	if err != nil {
		n.logger.Errorw("Failed to resolve merchant for notification", "merchant_id", merchantID, "event", event, "error", err)
		return
	}

	if merchant.WebhookURL != "" && n.WebhookNotificator != nil {
		n.safeCall(func() {
			if err := n.WebhookNotificator.SendNotification(ctx, merchant.WebhookURL, event, data); err != nil {
				n.logger.Warnw("Webhook delivery failed", "merchant_id", merchantID, "event", event, "error", err)
			}
		}, "webhookNotification")
	}

	if n.TelegramNotificator != nil {
		message := formatOpsMessage(merchant, event, data)
		n.safeCall(func() { n.TelegramNotificator.SendNotification(ctx, message) }, "telegramNotification")
	}
}

func formatOpsMessage(merchant *models.Merchant, event string, data map[string]interface{}) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\nmerchant: %s", event, merchant.Wallet)
	for _, k := range keys {
		fmt.Fprintf(&sb, "\n%s: %v", k, data[k])
	}
	return sb.String()
}
