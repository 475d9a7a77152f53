package models

import "context"

// Repository is the relational store behind the ledger. Implementations
// report a missing row as ErrNotFound and a uniqueness violation as
// ErrDuplicate.
type Repository interface {
	// Transaction runs fn against a repository bound to one storage
	// transaction. Returning an error from fn rolls everything back.
	Transaction(ctx context.Context, fn func(repo Repository) error) error

	CreateMerchant(ctx context.Context, merchant *Merchant) error
	GetMerchantByID(ctx context.Context, id string) (*Merchant, error)
	GetMerchantByWallet(ctx context.Context, wallet string) (*Merchant, error)
	GetMerchantByAPIKey(ctx context.Context, apiKey string) (*Merchant, error)
	UpdateMerchantWebhook(ctx context.Context, id, webhookURL string) error

	CreatePayment(ctx context.Context, payment *Payment) error
	GetPaymentByID(ctx context.Context, id string) (*Payment, error)
	GetPaymentByTxHash(ctx context.Context, txHash string) (*Payment, error)
	ListPayments(ctx context.Context, merchantID string) ([]*Payment, error)
	ListPaymentsPendingInvoice(ctx context.Context, limit int) ([]*Payment, error)
	MarkInvoiceSent(ctx context.Context, id string) error

	CreatePlan(ctx context.Context, plan *Plan) error
	GetPlan(ctx context.Context, id string) (*Plan, error)
	ListPlans(ctx context.Context, merchantID string) ([]*Plan, error)

	CreateSubscription(ctx context.Context, subscription *Subscription) error
	// GetSubscription loads a subscription together with its plan.
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	ListSubscriptions(ctx context.Context, filter SubscriptionFilter) ([]*Subscription, error)
	// UpdateSubscription applies column updates to one subscription.
	UpdateSubscription(ctx context.Context, id string, updates map[string]interface{}) error
	// ListDueSubscriptions returns active subscriptions whose period ended
	// before now, with their plans.
	ListDueSubscriptions(ctx context.Context, now int64, limit int) ([]*Subscription, error)
	// ExpireSubscriptions moves the given subscriptions to expired if they
	// are still active and past now. It returns the number of rows changed.
	ExpireSubscriptions(ctx context.Context, ids []string, now int64) (int64, error)
}

// MerchantCache remembers the wallet to merchant id mapping, which never
// changes once a merchant exists.
type MerchantCache interface {
	// GetMerchantID returns "" without error on a cache miss.
	GetMerchantID(ctx context.Context, wallet string) (string, error)
	SetMerchantID(ctx context.Context, wallet, merchantID string) error
}
