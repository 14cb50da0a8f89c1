package services

import (
	"context"

	"entitlement-api/internal/models"
)

// PremiumReason explains a premium decision.
type PremiumReason string

const (
	ReasonOneTimeUnlock      PremiumReason = "one_time_unlock"
	ReasonActiveSubscription PremiumReason = "active_subscription"
	ReasonNone               PremiumReason = "none"
	ReasonProfileNotFound    PremiumReason = "profile_not_found"
)

// PremiumStatus is a user's entitlement decision.
type PremiumStatus struct {
	Premium bool          `json:"premium"`
	Reason  PremiumReason `json:"reason"`
}

// ProfileReader reads user profiles.
type ProfileReader interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
}

// PremiumResolver answers whether a user has premium access.
type PremiumResolver struct {
	profiles ProfileReader
}

// NewPremiumResolver creates a resolver.
func NewPremiumResolver(profiles ProfileReader) *PremiumResolver {
	return &PremiumResolver{profiles: profiles}
}

// IsPremium checks the one-time unlock before the subscription flag.
func (r *PremiumResolver) IsPremium(ctx context.Context, userID string) (PremiumStatus, error) {
	profile, err := r.profiles.GetProfile(ctx, userID)
	if err != nil {
		return PremiumStatus{}, err
	}
	switch {
	case profile == nil:
		return PremiumStatus{Premium: false, Reason: ReasonProfileNotFound}, nil
	case profile.OneTimeUnlock:
		return PremiumStatus{Premium: true, Reason: ReasonOneTimeUnlock}, nil
	case profile.Subscribed:
		return PremiumStatus{Premium: true, Reason: ReasonActiveSubscription}, nil
	default:
		return PremiumStatus{Premium: false, Reason: ReasonNone}, nil
	}
}
