package api

import (
	"net/http"

	"entitlement-api/internal/middleware"
	"entitlement-api/internal/response"
	"entitlement-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// GetPremiumStatus gets the user's premium entitlement
// GET /api/subscription/premium?user_id=xxx
func (h *Handler) GetPremiumStatus(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.Fail(c, http.StatusBadRequest, "user_id is required")
		return
	}

	status, err := h.resolver.IsPremium(c.Request.Context(), userID)
	if err != nil {
		logging.Errorf("Premium check failed - request_id: %s, user_id: %s, error: %v", middleware.GetRequestID(c), userID, err)
		response.Fail(c, http.StatusInternalServerError, h.clientMessage(err))
		return
	}

	response.OK(c, status)
}
