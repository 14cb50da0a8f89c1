package database

import (
	"context"
	"errors"
	"fmt"

	"entitlement-api/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// upsertColumns are overwritten when a write hits an existing transaction_id.
// user_id stays with the first writer.
var upsertColumns = []string{
	"product_id",
	"original_transaction_id",
	"environment",
	"purchased_at",
	"expires_at",
	"expired",
	"updated_at",
}

// UpsertSubscription inserts the record, or merges it into the row that
// already holds its transaction_id. It returns the stored row.
func (s *Store) UpsertSubscription(ctx context.Context, record *models.Subscription) (*models.Subscription, error) {
	if record.TransactionID == "" {
		return nil, fmt.Errorf("%w: transaction_id is required", ErrStore)
	}

	row := *record
	row.ID = 0
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_id"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).
		Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("%w: upsert subscription %s: %v", ErrStore, record.TransactionID, err)
	}

	stored, err := s.FindByTransactionID(ctx, record.TransactionID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("%w: subscription %s missing after upsert", ErrStore, record.TransactionID)
	}
	return stored, nil
}

// FindByTransactionID returns the record for transactionID, or nil when none exists.
func (s *Store) FindByTransactionID(ctx context.Context, transactionID string) (*models.Subscription, error) {
	var subscription models.Subscription
	err := s.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&subscription).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: find subscription %s: %v", ErrStore, transactionID, err)
	}
	return &subscription, nil
}

// ListSubscriptions returns the user's records, most recent purchase first.
func (s *Store) ListSubscriptions(ctx context.Context, userID string) ([]models.Subscription, error) {
	var subscriptions []models.Subscription
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("purchased_at DESC").
		Order("id DESC").
		Find(&subscriptions).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list subscriptions for %s: %v", ErrStore, userID, err)
	}
	return subscriptions, nil
}

// MarkExpired sets the expired flag on the record holding transactionID.
func (s *Store) MarkExpired(ctx context.Context, transactionID string, expired bool) error {
	result := s.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("transaction_id = ?", transactionID).
		Update("expired", expired)
	if result.Error != nil {
		return fmt.Errorf("%w: mark %s expired: %v", ErrStore, transactionID, result.Error)
	}
	return nil
}
