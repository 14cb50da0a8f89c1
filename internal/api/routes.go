package api

import (
	"context"
	"net/http"
	"time"

	"entitlement-api/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes sets up all routes
func SetupRoutes(r *gin.Engine, h *Handler) {
	r.Use(middleware.RequestID(), middleware.Metrics())

	// API route group
	api := r.Group("/api")
	{
		// Subscription routes (client API)
		subscription := api.Group("/subscription")
		{
			subscription.POST("/validate", h.ValidateSubscription)
			subscription.GET("/premium", h.GetPremiumStatus)
			subscription.GET("/history", h.GetSubscriptionHistory)
		}

		// App Store notification routes (Apple calls these). The environment
		// is read from the signed payload, so both URLs share the handler.
		appstore := api.Group("/appstore")
		{
			appstore.POST("/notifications", h.AppStoreNotification)
			appstore.POST("/notifications/production", h.AppStoreNotification)
			appstore.POST("/notifications/sandbox", h.AppStoreNotification)
		}
	}

	// Health check
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Health reports service and database status
func (h *Handler) Health(c *gin.Context) {
	if h.database != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.database.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "degraded",
				"service":  "entitlement-service",
				"database": "unreachable",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "entitlement-service",
	})
}
