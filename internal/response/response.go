// Package response writes the JSON envelope used by the query and webhook
// endpoints.
package response

import (
	"net/http"

	"entitlement-api/internal/middleware"

	"github.com/gin-gonic/gin"
)

// Envelope is the body of every enveloped response. RequestID echoes the
// X-Request-ID the request was logged under.
type Envelope struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"requestId,omitempty"`
}

// OK writes a 200 envelope carrying data.
func OK(c *gin.Context, data interface{}) {
	write(c, http.StatusOK, Envelope{Success: true, Message: "success", Data: data})
}

// Fail writes a failed envelope with status and message.
func Fail(c *gin.Context, status int, message string) {
	write(c, status, Envelope{Message: message})
}

func write(c *gin.Context, status int, body Envelope) {
	body.RequestID = middleware.GetRequestID(c)
	c.JSON(status, body)
}
