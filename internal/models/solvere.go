package models

import "context"

// SolvereI is the core of the service: payment verification, the
// subscription state machine and access evaluation.
type SolvereI interface {
	// Start starts the background jobs of the application
	Start(ctx context.Context) error
	// Wait blocks until all in-flight notifications are done
	Wait()

	// VerifyPayment proves a payment on chain and records it exactly once.
	VerifyPayment(ctx context.Context, req *VerifyRequest) (*VerifyResult, error)
	ListPayments(ctx context.Context, merchant string) ([]*Payment, error)
	ListPendingInvoices(ctx context.Context, limit int) ([]*Payment, error)
	MarkInvoiceSent(ctx context.Context, paymentID string) error

	ResolveOrCreateMerchant(ctx context.Context, wallet string) (string, error)
	GetMerchant(ctx context.Context, merchant string) (*Merchant, error)
	GetMerchantByAPIKey(ctx context.Context, apiKey string) (*Merchant, error)
	SetMerchantWebhook(ctx context.Context, merchantID, webhookURL string) error

	CreatePlan(ctx context.Context, merchantID, name, amount, interval string) (*Plan, error)
	ListPlans(ctx context.Context, merchant string) ([]*Plan, error)

	CreateSubscription(ctx context.Context, params CreateSubscriptionParams) (*Subscription, error)
	RenewSubscription(ctx context.Context, subscriptionID, txHash string) (*Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	ListSubscriptions(ctx context.Context, merchant, customer string) ([]*Subscription, error)
	SweepExpired(ctx context.Context, now int64) (int64, error)
	MarkPaymentRequired(ctx context.Context, subscriptionID string, nextPeriodEnd int64) error
	RunRenewalReminders(ctx context.Context, now int64) (int, error)

	CheckAccess(ctx context.Context, wallet, merchant, planID string) (*AccessResult, error)
}

// VerifyRequest is a request to verify an on-chain payment.
// Amount is informational only; the recorded amount comes from the chain.
type VerifyRequest struct {
	TxHash   string
	Merchant string
	Amount   string
	// PlanID, when set, creates or renews the payer's subscription to the plan.
	PlanID string
	// Customer is stored on a newly created subscription.
	Customer string
}

// VerifyResult is the outcome of a successful verification. AlreadyRecorded
// marks an idempotent replay of a transaction that is already in the ledger.
type VerifyResult struct {
	AlreadyRecorded bool
	Payment         *Payment
	Event           *PaymentEvent
	Subscription    *Subscription
}

// AccessResult answers whether a wallet may use a merchant's product.
type AccessResult struct {
	Access       bool
	Reason       string
	Subscription *Subscription
}

// APIServer represents the API server
type APIServer interface {
	Start()
	Shutdown() error
}
