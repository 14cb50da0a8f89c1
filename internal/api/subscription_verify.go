package api

import (
	"net/http"
	"time"

	"entitlement-api/internal/middleware"
	"entitlement-api/internal/services"
	"entitlement-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// ValidateSubscriptionRequest represents validate subscription request
type ValidateSubscriptionRequest struct {
	PurchaseToken string `json:"purchaseToken" binding:"required"` // signedTransactionInfo from StoreKit 2
	UserID        string `json:"userId" binding:"required"`
	ProductID     string `json:"productId" binding:"required"`
	TransactionID string `json:"transactionId"`
	Environment   string `json:"environment" binding:"omitempty,oneof=Sandbox Production"`
}

// ValidateSubscriptionResponse represents validate subscription response
type ValidateSubscriptionResponse struct {
	Success            bool   `json:"success"`
	SubscriptionActive bool   `json:"subscriptionActive"`
	TransactionID      string `json:"transactionId,omitempty"`
	ExpiresDate        string `json:"expiresDate,omitempty"`
	Error              string `json:"error,omitempty"`
}

// ValidateSubscription validates a purchase token and records the entitlement
// POST /api/subscription/validate
func (h *Handler) ValidateSubscription(c *gin.Context) {
	var req ValidateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationsTotal.WithLabelValues("bad_request").Inc()
		c.JSON(http.StatusBadRequest, ValidateSubscriptionResponse{
			Success: false,
			Error:   "Invalid request format: " + err.Error(),
		})
		return
	}

	result, err := h.validator.Validate(c.Request.Context(), services.ValidateRequest{
		PurchaseToken: req.PurchaseToken,
		UserID:        req.UserID,
		ProductID:     req.ProductID,
		TransactionID: req.TransactionID,
		Environment:   req.Environment,
	})
	kind := services.KindOf(err)
	validationsTotal.WithLabelValues(string(kind)).Inc()

	if err != nil && kind != services.KindDegradedSuccess {
		logging.Errorf("Subscription validation failed - request_id: %s, user_id: %s, kind: %s, error: %v", middleware.GetRequestID(c), req.UserID, kind, err)
		c.JSON(validateStatus(kind), ValidateSubscriptionResponse{
			Success: false,
			Error:   h.clientMessage(err),
		})
		return
	}

	resp := ValidateSubscriptionResponse{
		Success:            true,
		SubscriptionActive: result.Active,
		TransactionID:      result.TransactionID,
	}
	if result.ExpiresDate != nil {
		resp.ExpiresDate = result.ExpiresDate.UTC().Format(time.RFC3339)
	}
	if err != nil {
		logging.Errorf("Subscription recorded but flags not updated - request_id: %s, user_id: %s, error: %v", middleware.GetRequestID(c), req.UserID, err)
		resp.Error = h.clientMessage(err)
	}

	c.JSON(http.StatusOK, resp)
}

func validateStatus(kind services.ErrorKind) int {
	switch kind {
	case services.KindSignatureInvalid:
		return http.StatusBadRequest
	case services.KindOwnershipMismatch:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
