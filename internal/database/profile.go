package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"entitlement-api/internal/models"

	"gorm.io/gorm"
)

// SetSubscribed sets the user's subscribed flag.
func (s *Store) SetSubscribed(ctx context.Context, userID string, subscribed bool) error {
	now := time.Now().UTC()
	return s.updateProfile(ctx, userID, map[string]interface{}{
		"subscribed":              subscribed,
		"subscribed_updated_time": now,
	})
}

// SetEverPurchased marks that the user has bought a subscription at least once.
// The flag is never cleared, so repeating the call is harmless.
func (s *Store) SetEverPurchased(ctx context.Context, userID string) error {
	return s.updateProfile(ctx, userID, map[string]interface{}{
		"has_purchased_subscription_before": true,
	})
}

func (s *Store) updateProfile(ctx context.Context, userID string, updates map[string]interface{}) error {
	result := s.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("user_id = ?", userID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("%w: update profile %s: %v", ErrStore, userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %w: %s", ErrStore, ErrProfileNotFound, userID)
	}
	return nil
}

// GetProfile returns the user's profile, or nil when none exists.
func (s *Store) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var profile models.Profile
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: get profile %s: %v", ErrStore, userID, err)
	}
	return &profile, nil
}

// CreateProfile inserts a profile row. Profiles normally come from the user
// subsystem; this exists for seeding and tests.
func (s *Store) CreateProfile(ctx context.Context, profile *models.Profile) error {
	if err := s.db.WithContext(ctx).Create(profile).Error; err != nil {
		return fmt.Errorf("%w: create profile %s: %v", ErrStore, profile.UserID, err)
	}
	return nil
}
