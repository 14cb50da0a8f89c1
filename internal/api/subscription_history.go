package api

import (
	"net/http"
	"time"

	"entitlement-api/internal/middleware"
	"entitlement-api/internal/models"
	"entitlement-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// SubscriptionHistoryItem represents a subscription history item
type SubscriptionHistoryItem struct {
	ID                    uint       `json:"id"`
	ProductID             string     `json:"product_id"`
	TransactionID         string     `json:"transaction_id"`
	OriginalTransactionID string     `json:"original_transaction_id"`
	Environment           string     `json:"environment"`
	PurchaseDate          time.Time  `json:"purchase_date"`
	ExpiresDate           *time.Time `json:"expires_date,omitempty"`
	Expired               bool       `json:"expired"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// SubscriptionHistoryResponse represents subscription history response
type SubscriptionHistoryResponse struct {
	Success       bool                      `json:"success"`
	Message       string                    `json:"message,omitempty"`
	Subscriptions []SubscriptionHistoryItem `json:"subscriptions"`
}

// GetSubscriptionHistory gets subscription history for a user, most recent first
// GET /api/subscription/history?user_id=xxx
func (h *Handler) GetSubscriptionHistory(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, SubscriptionHistoryResponse{
			Success: false,
			Message: "user_id is required",
		})
		return
	}

	subscriptions, err := h.history.ListSubscriptions(c.Request.Context(), userID)
	if err != nil {
		logging.Errorf("Failed to list subscriptions - request_id: %s, user_id: %s, error: %v", middleware.GetRequestID(c), userID, err)
		c.JSON(http.StatusInternalServerError, SubscriptionHistoryResponse{
			Success: false,
			Message: h.clientMessage(err),
		})
		return
	}

	items := make([]SubscriptionHistoryItem, 0, len(subscriptions))
	for _, sub := range subscriptions {
		items = append(items, historyItem(sub))
	}

	c.JSON(http.StatusOK, SubscriptionHistoryResponse{
		Success:       true,
		Subscriptions: items,
	})
}

func historyItem(sub models.Subscription) SubscriptionHistoryItem {
	return SubscriptionHistoryItem{
		ID:                    sub.ID,
		ProductID:             sub.ProductID,
		TransactionID:         sub.TransactionID,
		OriginalTransactionID: sub.OriginalTransactionID,
		Environment:           sub.Environment,
		PurchaseDate:          sub.PurchasedAt,
		ExpiresDate:           sub.ExpiresAt,
		Expired:               sub.Expired,
		CreatedAt:             sub.CreatedAt,
		UpdatedAt:             sub.UpdatedAt,
	}
}
