package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDContextKey = "request_id"

// requestIDFromContext reuses the caller-supplied X-Request-ID when present
// so audit records correlate across services, minting one otherwise.
func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

// userIDFromContext reads the authenticated user id set by the token
// middleware. Unauthenticated routes yield nil.
func userIDFromContext(c *gin.Context) *int64 {
	val, ok := c.Get("userID")
	if !ok {
		return nil
	}
	userID, ok := val.(int)
	if !ok || userID == 0 {
		return nil
	}
	value := int64(userID)
	return &value
}
