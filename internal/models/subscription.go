package models

import "time"

const (
	SubscriptionStatusActive          = "active"
	SubscriptionStatusCanceled        = "canceled"
	SubscriptionStatusExpired         = "expired"
	SubscriptionStatusPaymentRequired = "payment_required"
)

// Subscription grants a customer wallet access to a merchant plan for the
// current billing period.
type Subscription struct {
	// ID is the unique identifier for the subscription.
	ID string `json:"id" gorm:"column:id;primaryKey;size:36"`
	// MerchantID is the merchant owning the subscription.
	MerchantID string `json:"merchant_id" gorm:"column:merchant_id;index;not null"`
	// Customer is a free-form customer reference. Defaults to the payer wallet.
	Customer string `json:"customer" gorm:"column:customer"`
	// PayerWallet is the canonical address of the paying wallet.
	PayerWallet string `json:"payer_wallet" gorm:"column:payer_wallet;index;not null"`
	// PlanID references the plan the subscription is billed on.
	PlanID string `json:"plan_id" gorm:"column:plan_id;index;not null"`
	// Plan is loaded on demand.
	Plan *Plan `json:"plan,omitempty" gorm:"foreignKey:PlanID;references:ID"`
	// Status is one of active, canceled, expired, payment_required.
	Status string `json:"status" gorm:"column:status;index;not null"`
	// CurrentPeriodEnd is the Unix timestamp at which the paid period ends.
	CurrentPeriodEnd int64 `json:"current_period_end" gorm:"column:current_period_end;index"`
	// LastPaymentTx is the transaction hash of the payment that last funded it.
	LastPaymentTx string `json:"last_payment_tx,omitempty" gorm:"column:last_payment_tx"`
	CreatedAt     time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"column:updated_at"`
}

// SubscriptionFilter narrows a subscription listing. Empty fields match all.
type SubscriptionFilter struct {
	MerchantID  string
	PayerWallet string
	PlanID      string
	Status      string
}

// CreateSubscriptionParams are the inputs of a new subscription.
type CreateSubscriptionParams struct {
	MerchantID string
	Customer   string
	Wallet     string
	PlanID     string
	TxHash     string
}
