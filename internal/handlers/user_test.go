package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
)

type stubOnline struct{ online map[int]bool }

func (s stubOnline) IsOnline(userID int) bool { return s.online[userID] }

type stubFilter struct{ visible bool }

func (s stubFilter) Visible(ctx context.Context, subject models.User, scope models.PrivacyScope, observerID int) bool {
	if scope == models.PrivacyNobody {
		return false
	}
	return s.visible
}

type stubLastSeenStore struct {
	at time.Time
	ok bool
}

func (s stubLastSeenStore) Touch(ctx context.Context, userID int) error { return nil }
func (s stubLastSeenStore) MarkOffline(ctx context.Context, userID int, at time.Time) error {
	return nil
}
func (s stubLastSeenStore) LastSeen(ctx context.Context, userID int) (time.Time, bool, error) {
	return s.at, s.ok, nil
}

func setupUserRouter(handler *UserHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.POST("/users", handler.Register)
	r.GET("/users/:user_id", handler.GetUser)
	r.PUT("/users/me/privacy", handler.UpdatePrivacy)
	r.POST("/users/:user_id/block", handler.Block)
	r.DELETE("/users/:user_id/block", handler.Unblock)
	return r
}

func TestRegisterCreatesUserWithDefaultPrivacy(t *testing.T) {
	users := mocks.NewMemoryUserRepo()
	handler := NewUserHandler(users, stubOnline{}, stubFilter{}, stubLastSeenStore{}, nil)
	router := setupUserRouter(handler)

	body := bytes.NewBufferString(`{"phone":"+15550100","name":"ana"}`)
	req := httptest.NewRequest(http.MethodPost, "/users", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var user models.User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&user))
	assert.NotZero(t, user.ID)
	assert.Equal(t, models.PrivacyEveryone, user.Privacy.LastSeen)
}

func TestRegisterRejectsMissingFields(t *testing.T) {
	handler := NewUserHandler(mocks.NewMemoryUserRepo(), stubOnline{}, stubFilter{}, stubLastSeenStore{}, nil)
	router := setupUserRouter(handler)

	body := bytes.NewBufferString(`{"phone":"+15550100"}`)
	req := httptest.NewRequest(http.MethodPost, "/users", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUserVisibleShowsPresence(t *testing.T) {
	users := mocks.NewMemoryUserRepo()
	users.Seed(models.User{ID: 1, Name: "me", Privacy: models.DefaultPrivacy()})
	users.Seed(models.User{ID: 2, Name: "bob", Privacy: models.DefaultPrivacy()})
	handler := NewUserHandler(users, stubOnline{online: map[int]bool{2: true}}, stubFilter{visible: true}, stubLastSeenStore{}, nil)
	router := setupUserRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/users/2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var view models.UserView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.True(t, view.Online)
	assert.Nil(t, view.LastSeen)
}

func TestGetUserHiddenPresence(t *testing.T) {
	users := mocks.NewMemoryUserRepo()
	users.Seed(models.User{ID: 1, Privacy: models.DefaultPrivacy()})
	users.Seed(models.User{ID: 2, Name: "bob", Privacy: models.DefaultPrivacy()})
	handler := NewUserHandler(users, stubOnline{online: map[int]bool{2: true}}, stubFilter{visible: false}, stubLastSeenStore{}, nil)
	router := setupUserRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/users/2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var view models.UserView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.False(t, view.Online)
	assert.Nil(t, view.LastSeen)
	assert.Equal(t, "bob", view.Name)
}

func TestGetUserHidesProfileFieldsPerScope(t *testing.T) {
	users := mocks.NewMemoryUserRepo()
	users.Seed(models.User{ID: 1, Privacy: models.DefaultPrivacy()})
	users.Seed(models.User{
		ID:        2,
		Name:      "bob",
		AvatarURL: "https://cdn.example/bob.png",
		About:     "hey there",
		Privacy: models.Privacy{
			LastSeen:     models.PrivacyEveryone,
			ProfilePhoto: models.PrivacyNobody,
			About:        models.PrivacyNobody,
			Status:       models.PrivacyEveryone,
		},
	})
	handler := NewUserHandler(users, stubOnline{online: map[int]bool{2: true}}, stubFilter{visible: true}, stubLastSeenStore{}, nil)
	router := setupUserRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/users/2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var view models.UserView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.Equal(t, "bob", view.Name)
	assert.Empty(t, view.AvatarURL)
	assert.Empty(t, view.About)
	assert.True(t, view.Online)
}

func TestGetUserOfflineFallsBackToCachedLastSeen(t *testing.T) {
	cached := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	users := mocks.NewMemoryUserRepo()
	users.Seed(models.User{ID: 1, Privacy: models.DefaultPrivacy()})
	users.Seed(models.User{ID: 2, Privacy: models.DefaultPrivacy()})
	handler := NewUserHandler(users, stubOnline{}, stubFilter{visible: true}, stubLastSeenStore{at: cached, ok: true}, nil)
	router := setupUserRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/users/2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var view models.UserView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	require.NotNil(t, view.LastSeen)
	assert.WithinDuration(t, cached, *view.LastSeen, time.Second)
}

func TestGetUserNotFound(t *testing.T) {
	handler := NewUserHandler(mocks.NewMemoryUserRepo(), stubOnline{}, stubFilter{}, stubLastSeenStore{}, nil)
	router := setupUserRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/users/42", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdatePrivacyValidatesScopes(t *testing.T) {
	users := mocks.NewMemoryUserRepo()
	users.Seed(models.User{ID: 1, Privacy: models.DefaultPrivacy()})
	handler := NewUserHandler(users, stubOnline{}, stubFilter{}, stubLastSeenStore{}, nil)
	router := setupUserRouter(handler)

	body := bytes.NewBufferString(`{"privacy_last_seen":"contacts","privacy_profile_photo":"everyone","privacy_about":"everyone","privacy_status":"nobody"}`)
	req := httptest.NewRequest(http.MethodPut, "/users/me/privacy", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	user, err := users.GetUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.PrivacyContacts, user.Privacy.LastSeen)
	assert.Equal(t, models.PrivacyNobody, user.Privacy.Status)

	body = bytes.NewBufferString(`{"privacy_last_seen":"friends-of-friends","privacy_profile_photo":"everyone","privacy_about":"everyone","privacy_status":"everyone"}`)
	req = httptest.NewRequest(http.MethodPut, "/users/me/privacy", body)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBlockUnblockLifecycle(t *testing.T) {
	users := mocks.NewMemoryUserRepo()
	users.Seed(models.User{ID: 1, Privacy: models.DefaultPrivacy()})
	users.Seed(models.User{ID: 2, Privacy: models.DefaultPrivacy()})
	handler := NewUserHandler(users, stubOnline{}, stubFilter{}, stubLastSeenStore{}, nil)
	router := setupUserRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/users/2/block", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	blocked, err := users.HasBlocked(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.True(t, blocked)

	req = httptest.NewRequest(http.MethodDelete, "/users/2/block", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	blocked, err = users.HasBlocked(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestBlockSelfRejected(t *testing.T) {
	users := mocks.NewMemoryUserRepo()
	users.Seed(models.User{ID: 1, Privacy: models.DefaultPrivacy()})
	handler := NewUserHandler(users, stubOnline{}, stubFilter{}, stubLastSeenStore{}, nil)
	router := setupUserRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/users/1/block", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
