package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/models"
	"messaging-service/internal/presence"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// OnlineChecker reports whether a user has at least one live connection.
type OnlineChecker interface {
	IsOnline(userID int) bool
}

// PresenceFilter applies one of the subject's privacy scopes to an observer.
type PresenceFilter interface {
	Visible(ctx context.Context, subject models.User, scope models.PrivacyScope, observerID int) bool
}

// UserHandler manages registration, profiles, blocking and privacy settings.
type UserHandler struct {
	users    repositories.UserRepository
	online   OnlineChecker
	filter   PresenceFilter
	lastSeen presence.LastSeenStore
	emitter  *telemetry.AuditEmitter
}

// NewUserHandler builds a UserHandler.
func NewUserHandler(users repositories.UserRepository, online OnlineChecker, filter PresenceFilter, lastSeen presence.LastSeenStore, emitter *telemetry.AuditEmitter) *UserHandler {
	return &UserHandler{
		users:    users,
		online:   online,
		filter:   filter,
		lastSeen: lastSeen,
		emitter:  emitter,
	}
}

// Register creates an account with default privacy scopes.
func (h *UserHandler) Register(c *gin.Context) {
	var req struct {
		Phone     string `json:"phone" binding:"required"`
		Name      string `json:"name" binding:"required"`
		AvatarURL string `json:"avatar_url"`
		About     string `json:"about"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), models.User{
		Phone:     req.Phone,
		Name:      req.Name,
		AvatarURL: req.AvatarURL,
		About:     req.About,
		Privacy:   models.DefaultPrivacy(),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create user"})
		return
	}

	c.JSON(http.StatusCreated, user)
}

// GetUser returns another user's profile filtered by their privacy scopes.
// Online state and last seen are withheld when the caller may not see them.
func (h *UserHandler) GetUser(c *gin.Context) {
	targetID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	user, err := h.users.GetUser(c.Request.Context(), targetID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "user not found"})
		return
	}

	callerID := c.GetInt("userID")
	if callerID == targetID {
		c.JSON(http.StatusOK, user)
		return
	}

	ctx := c.Request.Context()
	view := models.UserView{
		ID:          user.ID,
		Name:        user.Name,
		IsSynthetic: user.IsSynthetic,
	}
	if h.filter.Visible(ctx, user, user.Privacy.ProfilePhoto, callerID) {
		view.AvatarURL = user.AvatarURL
	}
	if h.filter.Visible(ctx, user, user.Privacy.About, callerID) {
		view.About = user.About
	}
	if h.filter.Visible(ctx, user, user.Privacy.LastSeen, callerID) {
		view.Online = h.online.IsOnline(user.ID)
		if !view.Online {
			if at, ok, err := h.lastSeen.LastSeen(c.Request.Context(), user.ID); err == nil && ok {
				view.LastSeen = &at
			} else {
				view.LastSeen = user.LastSeen
			}
		}
	}

	c.JSON(http.StatusOK, view)
}

// UpdatePrivacy replaces the caller's visibility scopes.
func (h *UserHandler) UpdatePrivacy(c *gin.Context) {
	var req models.Privacy
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, scope := range []models.PrivacyScope{req.LastSeen, req.ProfilePhoto, req.About, req.Status} {
		switch scope {
		case models.PrivacyEveryone, models.PrivacyContacts, models.PrivacyNobody:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid privacy scope"})
			return
		}
	}

	userID := c.GetInt("userID")
	if err := h.users.UpdatePrivacy(c.Request.Context(), userID, req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update privacy"})
		return
	}

	if h.emitter != nil {
		h.emitter.Emit(c.Request.Context(), "INFO", "privacy_updated", "", requestIDFromContext(c), userIDFromContext(c))
	}
	c.JSON(http.StatusOK, req)
}

// Block adds a user to the caller's block list.
func (h *UserHandler) Block(c *gin.Context) {
	h.setBlocked(c, true)
}

// Unblock removes a user from the caller's block list.
func (h *UserHandler) Unblock(c *gin.Context) {
	h.setBlocked(c, false)
}

func (h *UserHandler) setBlocked(c *gin.Context, blocked bool) {
	targetID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	userID := c.GetInt("userID")
	if userID == targetID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot block yourself"})
		return
	}

	if exists, err := h.users.UserExists(c.Request.Context(), targetID); err != nil || !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	action := "user_blocked"
	if blocked {
		err = h.users.Block(c.Request.Context(), userID, targetID)
	} else {
		err = h.users.Unblock(c.Request.Context(), userID, targetID)
		action = "user_unblocked"
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update block list"})
		return
	}

	if h.emitter != nil {
		h.emitter.Emit(c.Request.Context(), "INFO", action,
			fmt.Sprintf("target_id=%d", targetID), requestIDFromContext(c), userIDFromContext(c))
	}
	c.Status(http.StatusNoContent)
}
