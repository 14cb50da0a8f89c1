package services

import (
	"context"
	"testing"

	"entitlement-api/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPremium(t *testing.T) {
	tests := []struct {
		name    string
		profile *models.Profile
		premium bool
		reason  PremiumReason
	}{
		{
			name:    "one-time unlock without subscription",
			profile: &models.Profile{UserID: "u1", OneTimeUnlock: true},
			premium: true,
			reason:  ReasonOneTimeUnlock,
		},
		{
			name:    "subscription without unlock",
			profile: &models.Profile{UserID: "u2", Subscribed: true},
			premium: true,
			reason:  ReasonActiveSubscription,
		},
		{
			name:    "unlock takes precedence",
			profile: &models.Profile{UserID: "u3", OneTimeUnlock: true, Subscribed: true},
			premium: true,
			reason:  ReasonOneTimeUnlock,
		},
		{
			name:    "neither",
			profile: &models.Profile{UserID: "u4"},
			premium: false,
			reason:  ReasonNone,
		},
		{
			name:    "no profile",
			premium: false,
			reason:  ReasonProfileNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			userID := "missing"
			if tt.profile != nil {
				env.createProfile(t, *tt.profile)
				userID = tt.profile.UserID
			}

			status, err := NewPremiumResolver(env.store).IsPremium(context.Background(), userID)
			require.NoError(t, err)
			assert.Equal(t, tt.premium, status.Premium)
			assert.Equal(t, tt.reason, status.Reason)
		})
	}
}
