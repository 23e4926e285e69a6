package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/repositories"
)

// CallHandler exposes the persisted call history. Live signaling happens
// over the websocket.
type CallHandler struct {
	calls repositories.CallRepository
}

// NewCallHandler builds a CallHandler.
func NewCallHandler(calls repositories.CallRepository) *CallHandler {
	return &CallHandler{calls: calls}
}

// ListCalls returns the caller's call log, newest first.
func (h *CallHandler) ListCalls(c *gin.Context) {
	userID := c.GetInt("userID")

	calls, err := h.calls.ListCallsForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load calls"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"calls": calls})
}
