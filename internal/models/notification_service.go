package models

import "context"

// Lifecycle events delivered to merchants.
const (
	EventPaymentSucceeded            = "payment_succeeded"
	EventSubscriptionCreated         = "subscription_created"
	EventSubscriptionRenewed         = "subscription_renewed"
	EventSubscriptionCanceled        = "subscription_canceled"
	EventSubscriptionExpired         = "subscription_expired"
	EventSubscriptionPaymentRequired = "subscription_payment_required"
)

// NotificationService delivers lifecycle events. Delivery is best effort:
// implementations log failures and never return them.
type NotificationService interface {
	Notify(ctx context.Context, merchantID, event string, data map[string]interface{})
}
