package models

import (
	"time"
)

// BaseModel provides common fields for all database models
type BaseModel struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Profile is the per-user entitlement row. The user-management subsystem owns
// the table; this service only flips the subscription flags.
type Profile struct {
	UserID string `json:"user_id" gorm:"primaryKey;size:64"`

	Subscribed bool `json:"subscribed" gorm:"not null;default:false"`
	// Monotonic: set once, never cleared.
	HasPurchasedSubscriptionBefore bool `json:"has_purchased_subscription_before" gorm:"not null;default:false"`
	// Set by the one-time purchase flow.
	OneTimeUnlock         bool       `json:"one_time_unlock" gorm:"not null;default:false"`
	SubscribedUpdatedTime *time.Time `json:"subscribed_updated_time"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Profile) TableName() string {
	return "profiles"
}
