package models

import (
	"time"
)

// Environments reported by the App Store.
const (
	EnvironmentSandbox    = "Sandbox"
	EnvironmentProduction = "Production"
)

// Subscription is one stored entitlement record.
// transaction_id is the idempotency key: repeat writes for the same
// transaction merge into the existing row.
type Subscription struct {
	BaseModel

	UserID    string `json:"user_id" gorm:"not null;size:64;index"`
	ProductID string `json:"product_id" gorm:"not null;size:100"`

	TransactionID         string `json:"transaction_id" gorm:"not null;size:100;uniqueIndex"`
	OriginalTransactionID string `json:"original_transaction_id" gorm:"size:100;index"`
	Environment           string `json:"environment" gorm:"size:20"`

	PurchasedAt time.Time  `json:"purchased_at" gorm:"index"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`

	// Maintained by webhook notifications.
	Expired bool `json:"expired" gorm:"not null;default:false"`
}

// TableName 指定表名
func (Subscription) TableName() string {
	return "subscriptions"
}
