package models

import "time"

const (
	PaymentStatusPending  = "pending"
	PaymentStatusVerified = "verified"
	PaymentStatusFailed   = "failed"
)

// Payment is an immutable record of one verified on-chain transfer.
type Payment struct {
	// ID is the unique identifier for the payment.
	ID string `json:"id" gorm:"column:id;primaryKey;size:36"`
	// MerchantID is the owner of the payment.
	MerchantID string `json:"merchant_id" gorm:"column:merchant_id;index;not null"`
	// Payer is the canonical address of the wallet that paid.
	Payer string `json:"payer" gorm:"column:payer;index;not null"`
	// Amount is the paid amount in the smallest chain unit, as a decimal string.
	Amount string `json:"amount" gorm:"column:amount;not null"`
	// TxHash is the canonical transaction hash. It is the idempotency key.
	TxHash string `json:"tx_hash" gorm:"column:tx_hash;uniqueIndex;not null"`
	// Timestamp is the payment time reported by the on-chain event.
	Timestamp int64 `json:"timestamp" gorm:"column:timestamp"`
	// Status is always verified for rows written by the ledger.
	Status string `json:"status" gorm:"column:status;index;not null"`
	// InvoiceSent is flipped by the invoicing collaborator.
	InvoiceSent bool `json:"invoice_sent" gorm:"column:invoice_sent;default:false"`
	// CreatedAt is the moment the payment was recorded.
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
}

// PaymentEvent is a decoded PaymentReceived log. It is the only source of
// truth for what gets recorded.
type PaymentEvent struct {
	Merchant    string
	Payer       string
	Amount      string
	Timestamp   int64
	TxHash      string
	BlockNumber uint64
}
