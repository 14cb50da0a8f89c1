package services

import (
	"context"

	"entitlement-api/internal/models"
)

// EntitlementStore is the persistence the reconciliation services need.
// database.Store implements it.
type EntitlementStore interface {
	UpsertSubscription(ctx context.Context, record *models.Subscription) (*models.Subscription, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*models.Subscription, error)
	MarkExpired(ctx context.Context, transactionID string, expired bool) error
	SetSubscribed(ctx context.Context, userID string, subscribed bool) error
	SetEverPurchased(ctx context.Context, userID string) error
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
}

// TransactionDecoder verifies and decodes signed transactions.
type TransactionDecoder interface {
	DecodeTransaction(token string) (*models.Transaction, error)
}

// NotificationDecoder verifies and decodes notification envelopes and the
// tokens embedded in them.
type NotificationDecoder interface {
	TransactionDecoder
	DecodeNotification(token string) (*models.Notification, error)
	DecodeRenewalInfo(token string) (*models.RenewalInfo, error)
}
