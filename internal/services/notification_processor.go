package services

import (
	"context"
	"fmt"

	"entitlement-api/internal/models"
	"entitlement-api/pkg/logging"
)

// Outcome describes what a processed notification did.
type Outcome struct {
	Type                  models.NotificationType
	RawType               string
	NotificationUUID      string
	UserID                string
	OriginalTransactionID string
	// Applied is false when the notification was a no-op or was skipped as stale.
	Applied bool
	Stale   bool
}

// NotificationProcessor applies App Store Server Notifications to stored
// entitlement state. State lives only in the subscribed and expired fields.
type NotificationProcessor struct {
	decoder NotificationDecoder
	store   EntitlementStore
	guard   OrderingGuard
}

// NewNotificationProcessor creates a processor. A nil guard applies
// notifications in arrival order.
func NewNotificationProcessor(decoder NotificationDecoder, store EntitlementStore, guard OrderingGuard) *NotificationProcessor {
	if guard == nil {
		guard = LastWriteWins{}
	}
	return &NotificationProcessor{
		decoder: decoder,
		store:   store,
		guard:   guard,
	}
}

// Process verifies signedPayload and applies it. A transaction with no local
// record fails with ErrUnattributedTransaction and mutates nothing.
func (p *NotificationProcessor) Process(ctx context.Context, signedPayload string) (*Outcome, error) {
	notification, err := p.decoder.DecodeNotification(signedPayload)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		Type:             notification.Type,
		RawType:          notification.RawType,
		NotificationUUID: notification.NotificationUUID,
	}

	// TEST and other transaction-less notifications
	if notification.Type == models.NotificationTypeUnknown && notification.SignedTransactionInfo == "" {
		logging.Infof("Ignoring notification - type: %s, uuid: %s", notification.RawType, notification.NotificationUUID)
		return outcome, nil
	}

	tx, err := p.decoder.DecodeTransaction(notification.SignedTransactionInfo)
	if err != nil {
		return nil, err
	}
	outcome.OriginalTransactionID = tx.OriginalTransactionID

	owner, err := p.store.FindByTransactionID(ctx, tx.OriginalTransactionID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return outcome, fmt.Errorf("%w: original transaction %s", ErrUnattributedTransaction, tx.OriginalTransactionID)
	}
	outcome.UserID = owner.UserID

	admitted, err := p.guard.Admit(ctx, tx.OriginalTransactionID, notification.SignedDate)
	if err != nil {
		return nil, err
	}
	if !admitted {
		logging.Warnf("Skipping stale notification - type: %s, transaction: %s, signed: %s",
			notification.RawType, tx.OriginalTransactionID, notification.SignedDate)
		outcome.Stale = true
		return outcome, nil
	}

	applied, err := p.dispatch(ctx, notification, tx, owner)
	if err != nil {
		return nil, err
	}
	outcome.Applied = applied
	return outcome, nil
}

func (p *NotificationProcessor) dispatch(ctx context.Context, n *models.Notification, tx *models.Transaction, owner *models.Subscription) (bool, error) {
	userID := owner.UserID

	switch n.Type {
	case models.NotificationTypeSubscribed:
		if err := p.store.SetSubscribed(ctx, userID, true); err != nil {
			return false, err
		}
		if err := p.store.SetEverPurchased(ctx, userID); err != nil {
			return false, err
		}

	case models.NotificationTypeDidRenew:
		renewal := &models.Subscription{
			UserID:                userID,
			ProductID:             tx.ProductID,
			TransactionID:         tx.TransactionID,
			OriginalTransactionID: tx.OriginalTransactionID,
			Environment:           environmentOf(tx.Environment, n.Environment),
			PurchasedAt:           tx.PurchaseDate,
			ExpiresAt:             tx.ExpiresDate,
		}
		if _, err := p.store.UpsertSubscription(ctx, renewal); err != nil {
			return false, err
		}
		if err := p.store.SetSubscribed(ctx, userID, true); err != nil {
			return false, err
		}

	case models.NotificationTypeExpired, models.NotificationTypeRefund:
		if err := p.store.SetSubscribed(ctx, userID, false); err != nil {
			return false, err
		}
		if err := p.store.MarkExpired(ctx, owner.TransactionID, true); err != nil {
			return false, err
		}

	case models.NotificationTypeDidFailToRenew:
		if err := p.store.SetSubscribed(ctx, userID, false); err != nil {
			return false, err
		}

	case models.NotificationTypeDidChangeRenewalStatus:
		p.logRenewalStatus(n, userID)
		return false, nil

	default:
		logging.Infof("Unhandled notification type - type: %s, user_id: %s, transaction: %s", n.RawType, userID, tx.OriginalTransactionID)
		return false, nil
	}

	logging.Infof("Notification applied - type: %s, user_id: %s, transaction: %s", n.RawType, userID, tx.TransactionID)
	return true, nil
}

func (p *NotificationProcessor) logRenewalStatus(n *models.Notification, userID string) {
	if n.SignedRenewalInfo == "" {
		logging.Infof("Renewal status changed - user_id: %s, subtype: %s", userID, n.Subtype)
		return
	}
	info, err := p.decoder.DecodeRenewalInfo(n.SignedRenewalInfo)
	if err != nil {
		logging.Warnf("Renewal info rejected - user_id: %s, error: %v", userID, err)
		return
	}
	logging.Infof("Renewal status changed - user_id: %s, subtype: %s, auto_renew: %t, product_id: %s",
		userID, n.Subtype, info.WillAutoRenew(), info.AutoRenewProductID)
}
