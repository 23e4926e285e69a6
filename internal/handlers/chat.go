package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/models"
	"messaging-service/internal/store"
	"messaging-service/internal/telemetry"
)

// ChatService is the slice of the store the chat endpoints use.
type ChatService interface {
	CreateChat(ctx context.Context, creatorID int, participantIDs []int, chatType models.ChatType, name string) (models.Chat, error)
	ListChats(ctx context.Context, userID int) ([]models.ChatSummary, error)
	ListMessages(ctx context.Context, chatID, requesterID, afterSeq, limit int) ([]models.Message, error)
	AppendMessage(ctx context.Context, chatID, senderID int, content string, msgType models.MessageType, mediaURL string) (models.Chat, models.Message, error)
}

// MessageFanout pushes append and read-state changes to connected clients.
type MessageFanout interface {
	OnAppend(ctx context.Context, chat models.Chat, msg models.Message)
	MarkRead(ctx context.Context, chatID, readerID, uptoSeq int) (int, error)
}

// TypingSetter clears the sender's typing indicator once a message lands.
type TypingSetter interface {
	SetTyping(chatID, userID int, isTyping bool)
}

// ReplyTrigger kicks off a synthetic participant's reply, if the chat has one.
type ReplyTrigger interface {
	Trigger(chat models.Chat, latest models.Message)
}

// ChatHandler manages chat and message endpoints.
type ChatHandler struct {
	store   ChatService
	engine  MessageFanout
	typing  TypingSetter
	replies ReplyTrigger
	emitter *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(store ChatService, engine MessageFanout, typing TypingSetter, replies ReplyTrigger, emitter *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{
		store:   store,
		engine:  engine,
		typing:  typing,
		replies: replies,
		emitter: emitter,
	}
}

// CreateChat creates a group chat or creates-or-returns the individual chat
// for a participant pair.
func (h *ChatHandler) CreateChat(c *gin.Context) {
	var req struct {
		ParticipantIDs []int  `json:"participant_ids" binding:"required"`
		Type           string `json:"type"`
		Name           string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chatType := models.ChatIndividual
	if req.Type == string(models.ChatGroup) {
		chatType = models.ChatGroup
	}

	userID := c.GetInt("userID")
	chat, err := h.store.CreateChat(c.Request.Context(), userID, req.ParticipantIDs, chatType, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrInvalidParticipants):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid participant set"})
		case errors.Is(err, store.ErrUnknownUser):
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown participant"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create chat"})
		}
		return
	}

	c.JSON(http.StatusCreated, chat)
}

// ListChats returns the caller's chat summaries, most recent first.
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID := c.GetInt("userID")

	chats, err := h.store.ListChats(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// GetMessages returns a page of chat history in sequence order.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	afterSeq, _ := strconv.Atoi(c.DefaultQuery("after_seq", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	userID := c.GetInt("userID")
	msgs, err := h.store.ListMessages(c.Request.Context(), chatID, userID, afterSeq, limit)
	if err != nil {
		h.chatError(c, err, "failed to load messages")
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage appends a message, fans it out and triggers a synthetic reply
// when the chat has a gateway-backed participant.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	var req struct {
		Content  string `json:"content"`
		Type     string `json:"type"`
		MediaURL string `json:"media_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msgType := models.MessageText
	switch models.MessageType(req.Type) {
	case models.MessageImage, models.MessageVoice, models.MessageDoc:
		msgType = models.MessageType(req.Type)
	}

	userID := c.GetInt("userID")
	chat, msg, err := h.store.AppendMessage(c.Request.Context(), chatID, userID, req.Content, msgType, req.MediaURL)
	if err != nil {
		h.chatError(c, err, "failed to store message")
		return
	}

	// A send implies the sender stopped composing.
	h.typing.SetTyping(chatID, userID, false)
	h.engine.OnAppend(c.Request.Context(), chat, msg)
	h.replies.Trigger(chat, msg)

	c.JSON(http.StatusCreated, msg)
}

// MarkRead advances the caller's read receipts through upto_seq and resets
// the unread counter.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	var req struct {
		UptoSeq int `json:"upto_seq"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	unread, err := h.engine.MarkRead(c.Request.Context(), chatID, userID, req.UptoSeq)
	if err != nil {
		h.chatError(c, err, "failed to mark read")
		return
	}

	c.JSON(http.StatusOK, gin.H{"chat_id": chatID, "unread_count": unread})
}

// chatError maps store sentinels onto HTTP statuses.
func (h *ChatHandler) chatError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrUnknownChat):
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
	case errors.Is(err, store.ErrNotAParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
	case errors.Is(err, store.ErrBlockedBySender), errors.Is(err, store.ErrBlockedByRecipient):
		c.JSON(http.StatusForbidden, gin.H{"error": "messaging is blocked between these users"})
		if h.emitter != nil {
			h.emitter.Emit(c.Request.Context(), "WARN", "message_blocked",
				fmt.Sprintf("chat_id=%s", c.Param("chat_id")), requestIDFromContext(c), userIDFromContext(c))
		}
	case errors.Is(err, store.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "message has no content"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
