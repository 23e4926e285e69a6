package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/store"
)

func setupChatRouter(handler *ChatHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.POST("/chats", handler.CreateChat)
	r.GET("/chats", handler.ListChats)
	r.GET("/chats/:chat_id/messages", handler.GetMessages)
	r.POST("/chats/:chat_id/messages", handler.PostMessage)
	r.POST("/chats/:chat_id/read", handler.MarkRead)
	return r
}

func newChatHandlerMocks() (*ChatHandler, *mocks.ChatServiceMock, *mocks.MessageFanoutMock, *mocks.TypingSetterMock, *mocks.ReplyTriggerMock) {
	service := new(mocks.ChatServiceMock)
	fanout := new(mocks.MessageFanoutMock)
	typing := new(mocks.TypingSetterMock)
	replies := new(mocks.ReplyTriggerMock)
	return NewChatHandler(service, fanout, typing, replies, nil), service, fanout, typing, replies
}

func TestCreateChatSuccess(t *testing.T) {
	handler, service, _, _, _ := newChatHandlerMocks()
	router := setupChatRouter(handler)

	service.On("CreateChat", mock.Anything, 1, []int{2}, models.ChatIndividual, "").
		Return(models.Chat{ID: 10, Type: models.ChatIndividual}, nil).Once()

	body := bytes.NewBufferString(`{"participant_ids":[2]}`)
	req := httptest.NewRequest(http.MethodPost, "/chats", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	service.AssertExpectations(t)
}

func TestCreateChatUnknownParticipant(t *testing.T) {
	handler, service, _, _, _ := newChatHandlerMocks()
	router := setupChatRouter(handler)

	service.On("CreateChat", mock.Anything, 1, []int{99}, models.ChatIndividual, "").
		Return(models.Chat{}, store.ErrUnknownUser).Once()

	body := bytes.NewBufferString(`{"participant_ids":[99]}`)
	req := httptest.NewRequest(http.MethodPost, "/chats", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	service.AssertExpectations(t)
}

func TestListChatsSuccess(t *testing.T) {
	handler, service, _, _, _ := newChatHandlerMocks()
	router := setupChatRouter(handler)

	service.On("ListChats", mock.Anything, 1).
		Return([]models.ChatSummary{{ChatID: 3, UnreadCount: 2}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Chats []models.ChatSummary `json:"chats"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Chats, 1)
	assert.Equal(t, 2, resp.Chats[0].UnreadCount)
	service.AssertExpectations(t)
}

func TestListChatsServiceError(t *testing.T) {
	handler, service, _, _, _ := newChatHandlerMocks()
	router := setupChatRouter(handler)

	service.On("ListChats", mock.Anything, 1).
		Return(([]models.ChatSummary)(nil), assert.AnError).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	service.AssertExpectations(t)
}

func TestGetMessagesPagination(t *testing.T) {
	handler, service, _, _, _ := newChatHandlerMocks()
	router := setupChatRouter(handler)

	service.On("ListMessages", mock.Anything, 5, 1, 10, 20).
		Return([]models.Message{{ID: 1, Seq: 11}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats/5/messages?after_seq=10&limit=20", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	service.AssertExpectations(t)
}

func TestGetMessagesForbidden(t *testing.T) {
	handler, service, _, _, _ := newChatHandlerMocks()
	router := setupChatRouter(handler)

	service.On("ListMessages", mock.Anything, 5, 1, 0, 50).
		Return(([]models.Message)(nil), store.ErrNotAParticipant).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats/5/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	service.AssertExpectations(t)
}

func TestPostMessageSuccess(t *testing.T) {
	handler, service, fanout, typing, replies := newChatHandlerMocks()
	router := setupChatRouter(handler)

	chat := models.Chat{ID: 5, Type: models.ChatIndividual}
	msg := models.Message{ID: 9, ChatID: 5, SenderID: 1, Seq: 1, Content: "hi", Status: models.StatusSent}

	service.On("AppendMessage", mock.Anything, 5, 1, "hi", models.MessageText, "").
		Return(chat, msg, nil).Once()
	typing.On("SetTyping", 5, 1, false).Once()
	fanout.On("OnAppend", mock.Anything, chat, msg).Once()
	replies.On("Trigger", chat, msg).Once()

	body := bytes.NewBufferString(`{"content":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/chats/5/messages", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var got models.Message
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, 1, got.Seq)
	assert.Equal(t, models.StatusSent, got.Status)

	service.AssertExpectations(t)
	fanout.AssertExpectations(t)
	typing.AssertExpectations(t)
	replies.AssertExpectations(t)
}

func TestPostMessageErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"unknown chat", store.ErrUnknownChat, http.StatusNotFound},
		{"not a member", store.ErrNotAParticipant, http.StatusForbidden},
		{"blocked by recipient", store.ErrBlockedByRecipient, http.StatusForbidden},
		{"blocked by sender", store.ErrBlockedBySender, http.StatusForbidden},
		{"empty message", store.ErrEmptyMessage, http.StatusBadRequest},
		{"storage failure", assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler, service, _, _, _ := newChatHandlerMocks()
			router := setupChatRouter(handler)

			service.On("AppendMessage", mock.Anything, 5, 1, "hi", models.MessageText, "").
				Return(models.Chat{}, models.Message{}, tc.err).Once()

			body := bytes.NewBufferString(`{"content":"hi"}`)
			req := httptest.NewRequest(http.MethodPost, "/chats/5/messages", body)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, tc.status, rec.Code)
			service.AssertExpectations(t)
		})
	}
}

func TestMarkReadReturnsUnread(t *testing.T) {
	handler, _, fanout, _, _ := newChatHandlerMocks()
	router := setupChatRouter(handler)

	fanout.On("MarkRead", mock.Anything, 5, 1, 7).Return(3, nil).Once()

	body := bytes.NewBufferString(`{"upto_seq":7}`)
	req := httptest.NewRequest(http.MethodPost, "/chats/5/read", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]int
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 3, resp["unread_count"])
	fanout.AssertExpectations(t)
}

func TestMarkReadUnknownChat(t *testing.T) {
	handler, _, fanout, _, _ := newChatHandlerMocks()
	router := setupChatRouter(handler)

	fanout.On("MarkRead", mock.Anything, 5, 1, 7).Return(0, store.ErrUnknownChat).Once()

	body := bytes.NewBufferString(`{"upto_seq":7}`)
	req := httptest.NewRequest(http.MethodPost, "/chats/5/read", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	fanout.AssertExpectations(t)
}
