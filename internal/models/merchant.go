package models

import "time"

// Merchant is a payee identity keyed by its wallet address.
type Merchant struct {
	// ID is the unique identifier for the merchant.
	ID string `json:"id" gorm:"column:id;primaryKey;size:36"`
	// Wallet is the canonical (lowercase, no 0x) wallet address of the merchant.
	Wallet string `json:"wallet" gorm:"column:wallet;uniqueIndex;not null"`
	// APIKey authenticates the merchant's own management calls.
	APIKey string `json:"-" gorm:"column:api_key;uniqueIndex;not null"`
	// WebhookURL is where lifecycle events are delivered. Empty means none.
	WebhookURL string `json:"webhook_url,omitempty" gorm:"column:webhook_url"`
	// CreatedAt is the moment the merchant was first seen.
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
}
