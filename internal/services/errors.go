package services

import (
	"errors"

	"entitlement-api/internal/database"
)

// Typed errors for the reconciliation core. Callers branch on them with
// errors.Is; the HTTP layer maps them to status codes.
var (
	// ErrSignatureInvalid indicates a token failed chain or signature verification.
	// It never means "not a subscriber".
	ErrSignatureInvalid = errors.New("signature invalid")
	// ErrOwnershipMismatch indicates the token's appAccountToken is not the requesting user.
	ErrOwnershipMismatch = errors.New("ownership mismatch")
	// ErrUnattributedTransaction indicates a notification for a transaction with no local record.
	ErrUnattributedTransaction = errors.New("unattributed transaction")
	// ErrStore indicates a persistence failure.
	ErrStore = database.ErrStore
	// ErrDegradedSuccess indicates the record was written but a dependent flag update failed.
	ErrDegradedSuccess = errors.New("degraded success")
)

// ErrorKind labels an error for logs and metrics.
type ErrorKind string

const (
	KindNone                    ErrorKind = "none"
	KindSignatureInvalid        ErrorKind = "signature_invalid"
	KindOwnershipMismatch       ErrorKind = "ownership_mismatch"
	KindUnattributedTransaction ErrorKind = "unattributed_transaction"
	KindDegradedSuccess         ErrorKind = "degraded_success"
	KindStoreError              ErrorKind = "store_error"
	KindInternal                ErrorKind = "internal"
)

// KindOf returns the kind of err. A degraded success also wraps the store
// error that caused it, so it is checked first.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrDegradedSuccess):
		return KindDegradedSuccess
	case errors.Is(err, ErrSignatureInvalid):
		return KindSignatureInvalid
	case errors.Is(err, ErrOwnershipMismatch):
		return KindOwnershipMismatch
	case errors.Is(err, ErrUnattributedTransaction):
		return KindUnattributedTransaction
	case errors.Is(err, ErrStore):
		return KindStoreError
	default:
		return KindInternal
	}
}
