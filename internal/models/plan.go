package models

import "time"

// Plan is a merchant-defined recurring billing template.
type Plan struct {
	ID         string    `json:"id" gorm:"column:id;primaryKey;size:36"`
	MerchantID string    `json:"merchant_id" gorm:"column:merchant_id;index;not null"`
	Name       string    `json:"name" gorm:"column:name;not null"`
	Amount     string    `json:"amount" gorm:"column:amount;not null"`
	Interval   string    `json:"interval" gorm:"column:interval;not null"`
	CreatedAt  time.Time `json:"created_at" gorm:"column:created_at"`
}
