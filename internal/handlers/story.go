package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

// StoryHandler manages ephemeral story posts.
type StoryHandler struct {
	stories repositories.StoryRepository
}

// NewStoryHandler builds a StoryHandler.
func NewStoryHandler(stories repositories.StoryRepository) *StoryHandler {
	return &StoryHandler{stories: stories}
}

// PostStory publishes a story that expires after the standard TTL.
func (h *StoryHandler) PostStory(c *gin.Context) {
	var req struct {
		MediaURL string `json:"media_url" binding:"required"`
		Type     string `json:"type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	storyType := models.StoryImage
	if req.Type == string(models.StoryVideo) {
		storyType = models.StoryVideo
	}

	now := time.Now().UTC()
	story, err := h.stories.CreateStory(c.Request.Context(), models.Story{
		OwnerID:   c.GetInt("userID"),
		MediaURL:  req.MediaURL,
		Type:      storyType,
		CreatedAt: now,
		ExpiresAt: now.Add(models.StoryTTL),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create story"})
		return
	}

	c.JSON(http.StatusCreated, story)
}

// GetFeed returns unexpired stories from the caller's contacts, filtered by
// each owner's status privacy and block lists.
func (h *StoryHandler) GetFeed(c *gin.Context) {
	userID := c.GetInt("userID")

	stories, err := h.stories.FeedForUser(c.Request.Context(), userID, time.Now().UTC())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stories"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"stories": stories})
}
