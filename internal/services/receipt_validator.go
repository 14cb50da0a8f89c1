package services

import (
	"context"
	"fmt"
	"time"

	"entitlement-api/internal/models"
	"entitlement-api/pkg/logging"

	"github.com/google/uuid"
)

// ValidateRequest is a client-submitted purchase.
type ValidateRequest struct {
	PurchaseToken string
	UserID        string
	ProductID     string
	TransactionID string // informational
	Environment   string // used when the token carries none
}

// ValidationResult is the outcome of a validation.
type ValidationResult struct {
	Active        bool
	TransactionID string
	ExpiresDate   *time.Time
}

// ReceiptValidator validates purchase tokens and records new entitlements.
type ReceiptValidator struct {
	decoder TransactionDecoder
	store   EntitlementStore
	catalog *ProductCatalog
	now     func() time.Time
}

// NewReceiptValidator creates a validator. now defaults to time.Now.
func NewReceiptValidator(decoder TransactionDecoder, store EntitlementStore, catalog *ProductCatalog, now func() time.Time) *ReceiptValidator {
	if now == nil {
		now = time.Now
	}
	return &ReceiptValidator{
		decoder: decoder,
		store:   store,
		catalog: catalog,
		now:     now,
	}
}

// Validate decodes the token, checks that it belongs to the requesting user
// and, when the transaction is active, records it and flips the user's flags.
//
// A flag update failing after the record was written returns the result
// together with an error wrapping ErrDegradedSuccess.
func (v *ReceiptValidator) Validate(ctx context.Context, req ValidateRequest) (*ValidationResult, error) {
	tx, err := v.decoder.DecodeTransaction(req.PurchaseToken)
	if err != nil {
		logging.Errorf("Receipt validation failed - user_id: %s, error: %v", req.UserID, err)
		return nil, err
	}

	if !sameAccount(tx.AppAccountToken, req.UserID) {
		logging.Logger().Warn("ownership mismatch",
			"user_id", req.UserID,
			"app_account_token", tx.AppAccountToken,
			"original_transaction_id", tx.OriginalTransactionID,
		)
		return nil, fmt.Errorf("%w: token for %q submitted by %q", ErrOwnershipMismatch, tx.AppAccountToken, req.UserID)
	}

	if tx.RevocationDate != nil {
		logging.Logger().Warn("revoked transaction submitted",
			"user_id", req.UserID,
			"original_transaction_id", tx.OriginalTransactionID,
			"revocation_date", tx.RevocationDate.Format(time.RFC3339),
		)
	}

	if req.ProductID != "" && req.ProductID != tx.ProductID {
		logging.Warnf("Requested product %s differs from signed product %s - transaction: %s", req.ProductID, tx.ProductID, tx.OriginalTransactionID)
	}

	result := &ValidationResult{
		Active:        v.isActive(tx),
		TransactionID: tx.OriginalTransactionID,
		ExpiresDate:   tx.ExpiresDate,
	}
	if !result.Active {
		logging.Infof("Transaction inactive - user_id: %s, product_id: %s, transaction: %s", req.UserID, tx.ProductID, tx.OriginalTransactionID)
		return result, nil
	}

	record := &models.Subscription{
		UserID:                req.UserID,
		ProductID:             tx.ProductID,
		TransactionID:         tx.OriginalTransactionID,
		OriginalTransactionID: tx.OriginalTransactionID,
		Environment:           environmentOf(tx.Environment, req.Environment),
		PurchasedAt:           tx.PurchaseDate,
		ExpiresAt:             tx.ExpiresDate,
	}
	if _, err := v.store.UpsertSubscription(ctx, record); err != nil {
		return nil, err
	}

	if err := v.store.SetSubscribed(ctx, req.UserID, true); err != nil {
		return result, fmt.Errorf("%w: %w", ErrDegradedSuccess, err)
	}
	if err := v.store.SetEverPurchased(ctx, req.UserID); err != nil {
		return result, fmt.Errorf("%w: %w", ErrDegradedSuccess, err)
	}

	logging.Infof("Subscription recorded - user_id: %s, product_id: %s, transaction: %s", req.UserID, tx.ProductID, tx.OriginalTransactionID)
	return result, nil
}

// isActive: recognized product, and either no expiry or an expiry strictly in the future.
func (v *ReceiptValidator) isActive(tx *models.Transaction) bool {
	if !v.catalog.IsSubscription(tx.ProductID) {
		return false
	}
	if tx.ExpiresDate == nil {
		return true
	}
	return tx.ExpiresDate.After(v.now())
}

// sameAccount compares an appAccountToken with a user id. UUIDs are compared
// in canonical form; an empty token never matches.
func sameAccount(appAccountToken, userID string) bool {
	if appAccountToken == "" || userID == "" {
		return false
	}
	if appAccountToken == userID {
		return true
	}
	a, errA := uuid.Parse(appAccountToken)
	b, errB := uuid.Parse(userID)
	return errA == nil && errB == nil && a == b
}

func environmentOf(signed, requested string) string {
	if signed != "" {
		return signed
	}
	if requested != "" {
		return requested
	}
	return models.EnvironmentProduction
}
