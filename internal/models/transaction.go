package models

import (
	"time"
)

// Transaction is a decoded, signature-verified App Store transaction.
// Only the signature verifier constructs these from signed tokens.
type Transaction struct {
	TransactionID         string
	OriginalTransactionID string
	ProductID             string
	BundleID              string
	Type                  string
	Environment           string
	PurchaseDate          time.Time
	ExpiresDate           *time.Time // nil for non-renewing purchases
	RevocationDate        *time.Time // set once Apple refunded or revoked the transaction
	AppAccountToken       string
	Price                 int64 // milliunits of Currency
	Currency              string
	SignedDate            time.Time
}

// RenewalInfo is a decoded signedRenewalInfo payload.
type RenewalInfo struct {
	OriginalTransactionID string
	AutoRenewProductID    string
	AutoRenewStatus       int // 1 = will renew, 0 = turned off
	ProductID             string
	Environment           string
	SignedDate            time.Time
}

// WillAutoRenew reports whether the subscription is set to renew.
func (r *RenewalInfo) WillAutoRenew() bool {
	return r.AutoRenewStatus == 1
}
