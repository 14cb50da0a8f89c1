package models

import (
	"time"
)

// NotificationWrapper is the outer body of an App Store Server Notification V2.
// Apple sends the notification as a JWS in the signedPayload field.
type NotificationWrapper struct {
	SignedPayload string `json:"signedPayload"`
}

// NotificationType is the closed set of notification types this service acts
// on. Anything else decodes to NotificationTypeUnknown.
type NotificationType string

const (
	NotificationTypeSubscribed             NotificationType = "SUBSCRIBED"
	NotificationTypeDidRenew               NotificationType = "DID_RENEW"
	NotificationTypeExpired                NotificationType = "EXPIRED"
	NotificationTypeDidFailToRenew         NotificationType = "DID_FAIL_TO_RENEW"
	NotificationTypeRefund                 NotificationType = "REFUND"
	NotificationTypeDidChangeRenewalStatus NotificationType = "DID_CHANGE_RENEWAL_STATUS"
	NotificationTypeUnknown                NotificationType = "UNKNOWN"
)

// ParseNotificationType maps the raw notificationType string onto the closed set.
func ParseNotificationType(raw string) NotificationType {
	switch t := NotificationType(raw); t {
	case NotificationTypeSubscribed,
		NotificationTypeDidRenew,
		NotificationTypeExpired,
		NotificationTypeDidFailToRenew,
		NotificationTypeRefund,
		NotificationTypeDidChangeRenewalStatus:
		return t
	default:
		return NotificationTypeUnknown
	}
}

// Notification is a decoded, signature-verified notification envelope.
type Notification struct {
	Type NotificationType
	// RawType keeps the platform string, so unknown types can still be logged.
	RawType          string
	Subtype          string
	NotificationUUID string
	Version          string
	SignedDate       time.Time

	Environment           string
	BundleID              string
	SignedTransactionInfo string
	SignedRenewalInfo     string // optional
}
