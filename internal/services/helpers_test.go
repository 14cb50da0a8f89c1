package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"entitlement-api/internal/database"
	"entitlement-api/internal/models"
	"entitlement-api/internal/services/signingtest"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

const (
	testUserID    = "7f1c6c7e-5a0b-4c36-9a52-9a0f5b3f1d11"
	otherUserID   = "0b8e62f4-2d1c-4a8e-8f53-6c1e0d2a9b77"
	testProductID = "premium.monthly"
)

var testNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type testEnv struct {
	store     *database.Store
	authority *signingtest.Authority
	verifier  *SignatureVerifier
	catalog   *ProductCatalog
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := database.Open(database.Options{
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
		LogLevel:   logger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	authority := signingtest.NewAuthority(t)
	return &testEnv{
		store:     store,
		authority: authority,
		verifier:  NewSignatureVerifier(authority.Roots, WithClock(fixedClock)),
		catalog:   NewProductCatalog(testProductID, "premium.yearly"),
	}
}

func (e *testEnv) validator() *ReceiptValidator {
	return NewReceiptValidator(e.verifier, e.store, e.catalog, fixedClock)
}

func (e *testEnv) processor(guard OrderingGuard) *NotificationProcessor {
	return NewNotificationProcessor(e.verifier, e.store, guard)
}

func (e *testEnv) createProfile(t *testing.T, profile models.Profile) {
	t.Helper()
	require.NoError(t, e.store.CreateProfile(context.Background(), &profile))
}

func (e *testEnv) profile(t *testing.T, userID string) *models.Profile {
	t.Helper()
	profile, err := e.store.GetProfile(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, profile)
	return profile
}

func (e *testEnv) countSubscriptions(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, e.store.DB().Model(&models.Subscription{}).Count(&count).Error)
	return count
}

func (e *testEnv) seedSubscription(t *testing.T, userID, originalTransactionID string) {
	t.Helper()
	_, err := e.store.UpsertSubscription(context.Background(), &models.Subscription{
		UserID:                userID,
		ProductID:             testProductID,
		TransactionID:         originalTransactionID,
		OriginalTransactionID: originalTransactionID,
		Environment:           models.EnvironmentSandbox,
		PurchasedAt:           testNow.Add(-30 * 24 * time.Hour),
	})
	require.NoError(t, err)
}

func expiresAt(d time.Duration) *time.Time {
	ts := testNow.Add(d)
	return &ts
}

// purchase is a signed transaction owned by testUserID.
func purchase(originalTransactionID string, expires *time.Time) signingtest.Transaction {
	return signingtest.Transaction{
		TransactionID:         originalTransactionID,
		OriginalTransactionID: originalTransactionID,
		ProductID:             testProductID,
		AppAccountToken:       testUserID,
		PurchaseDate:          testNow.Add(-24 * time.Hour),
		ExpiresDate:           expires,
	}
}
