package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"entitlement-api/internal/middleware"
	"entitlement-api/internal/models"
	"entitlement-api/internal/response"
	"entitlement-api/internal/services"
	"entitlement-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// AppStoreNotification handles App Store Server Notifications V2
// POST /api/appstore/notifications
func (h *Handler) AppStoreNotification(c *gin.Context) {
	startTime := time.Now()

	body, err := c.GetRawData()
	if err != nil {
		logging.Errorf("Failed to read request body - request_id: %s, error: %v", middleware.GetRequestID(c), err)
		response.Fail(c, http.StatusBadRequest, "Failed to read request body")
		return
	}

	// Check if body is empty
	if len(body) == 0 {
		logging.Errorf("Empty request body - request_id: %s", middleware.GetRequestID(c))
		response.Fail(c, http.StatusBadRequest, "Empty request body")
		return
	}

	var wrapper models.NotificationWrapper
	if err := json.Unmarshal(body, &wrapper); err != nil {
		logging.Errorf("Failed to parse notification wrapper - request_id: %s, error: %v, body length: %d", middleware.GetRequestID(c), err, len(body))
		response.Fail(c, http.StatusBadRequest, "Invalid notification format")
		return
	}
	if wrapper.SignedPayload == "" {
		logging.Errorf("signedPayload is empty in notification - request_id: %s", middleware.GetRequestID(c))
		response.Fail(c, http.StatusBadRequest, "signedPayload is missing")
		return
	}

	outcome, err := h.processor.Process(c.Request.Context(), wrapper.SignedPayload)
	kind := services.KindOf(err)
	notificationsTotal.WithLabelValues(notificationLabel(outcome), string(kind)).Inc()

	switch {
	case errors.Is(err, services.ErrUnattributedTransaction):
		// Not retry-worthy: this installation never recorded the transaction.
		logging.Warnf("Unattributed notification - request_id: %s, type: %s, transaction: %s",
			middleware.GetRequestID(c), outcome.RawType, outcome.OriginalTransactionID)
		response.OK(c, gin.H{"status": "unattributed"})
		return
	case err != nil:
		logging.Errorf("Notification processing failed - request_id: %s, kind: %s, error: %v", middleware.GetRequestID(c), kind, err)
		response.Fail(c, http.StatusInternalServerError, h.clientMessage(err))
		return
	}

	logging.Infof("Notification processed - request_id: %s, type: %s, user_id: %s, applied: %t, stale: %t, duration: %v",
		middleware.GetRequestID(c), outcome.RawType, outcome.UserID, outcome.Applied, outcome.Stale, time.Since(startTime))
	response.OK(c, nil)
}

func notificationLabel(outcome *services.Outcome) string {
	if outcome == nil {
		return "undecoded"
	}
	return string(outcome.Type)
}
