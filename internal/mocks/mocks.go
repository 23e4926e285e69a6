package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"messaging-service/internal/models"
)

// ChatServiceMock mocks the handler-facing slice of the chat store.
type ChatServiceMock struct {
	mock.Mock
}

func (m *ChatServiceMock) CreateChat(ctx context.Context, creatorID int, participantIDs []int, chatType models.ChatType, name string) (models.Chat, error) {
	args := m.Called(ctx, creatorID, participantIDs, chatType, name)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatServiceMock) ListChats(ctx context.Context, userID int) ([]models.ChatSummary, error) {
	args := m.Called(ctx, userID)
	var chats []models.ChatSummary
	if val := args.Get(0); val != nil {
		chats = val.([]models.ChatSummary)
	}
	return chats, args.Error(1)
}

func (m *ChatServiceMock) ListMessages(ctx context.Context, chatID, requesterID, afterSeq, limit int) ([]models.Message, error) {
	args := m.Called(ctx, chatID, requesterID, afterSeq, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *ChatServiceMock) AppendMessage(ctx context.Context, chatID, senderID int, content string, msgType models.MessageType, mediaURL string) (models.Chat, models.Message, error) {
	args := m.Called(ctx, chatID, senderID, content, msgType, mediaURL)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	var msg models.Message
	if val := args.Get(1); val != nil {
		msg = val.(models.Message)
	}
	return chat, msg, args.Error(2)
}

// MessageFanoutMock mocks the delivery engine surface the handlers call.
type MessageFanoutMock struct {
	mock.Mock
}

func (m *MessageFanoutMock) OnAppend(ctx context.Context, chat models.Chat, msg models.Message) {
	m.Called(ctx, chat, msg)
}

func (m *MessageFanoutMock) MarkRead(ctx context.Context, chatID, readerID, uptoSeq int) (int, error) {
	args := m.Called(ctx, chatID, readerID, uptoSeq)
	return args.Int(0), args.Error(1)
}

// TypingSetterMock mocks the typing surface of the presence broadcaster.
type TypingSetterMock struct {
	mock.Mock
}

func (m *TypingSetterMock) SetTyping(chatID, userID int, isTyping bool) {
	m.Called(chatID, userID, isTyping)
}

// ReplyTriggerMock mocks the responder gateway trigger.
type ReplyTriggerMock struct {
	mock.Mock
}

func (m *ReplyTriggerMock) Trigger(chat models.Chat, latest models.Message) {
	m.Called(chat, latest)
}

// StoryRepositoryMock mocks story persistence.
type StoryRepositoryMock struct {
	mock.Mock
}

func (m *StoryRepositoryMock) CreateStory(ctx context.Context, story models.Story) (models.Story, error) {
	args := m.Called(ctx, story)
	var out models.Story
	if val := args.Get(0); val != nil {
		out = val.(models.Story)
	}
	return out, args.Error(1)
}

func (m *StoryRepositoryMock) FeedForUser(ctx context.Context, userID int, now time.Time) ([]models.Story, error) {
	args := m.Called(ctx, userID, now)
	var stories []models.Story
	if val := args.Get(0); val != nil {
		stories = val.([]models.Story)
	}
	return stories, args.Error(1)
}

// CallRepositoryMock mocks call persistence.
type CallRepositoryMock struct {
	mock.Mock
}

func (m *CallRepositoryMock) SaveCall(ctx context.Context, call models.Call) error {
	args := m.Called(ctx, call)
	return args.Error(0)
}

func (m *CallRepositoryMock) ListCallsForUser(ctx context.Context, userID int) ([]models.Call, error) {
	args := m.Called(ctx, userID)
	var calls []models.Call
	if val := args.Get(0); val != nil {
		calls = val.([]models.Call)
	}
	return calls, args.Error(1)
}
