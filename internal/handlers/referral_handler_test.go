package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/referly/backend/internal/models"
	"github.com/referly/backend/internal/referral"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryStore is an in-memory referral.Store for handler tests.
type memoryStore struct {
	mu     sync.Mutex
	nextID uint
	users  map[uint]*models.User
}

func newMemoryStore() *memoryStore {
	return &memoryStore{nextID: 1, users: make(map[uint]*models.User)}
}

func (m *memoryStore) addUser(email string) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	user := &models.User{ID: m.nextID, Email: email, CreatedAt: time.Now()}
	m.users[user.ID] = user
	m.nextID++
	return user
}

func (m *memoryStore) GetUser(_ context.Context, id uint) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return nil, referral.ErrUserNotFound
	}
	copy := *user
	return &copy, nil
}

func (m *memoryStore) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email == email {
			copy := *user
			return &copy, nil
		}
	}
	return nil, referral.ErrUserNotFound
}

func (m *memoryStore) FindUserByCode(_ context.Context, code string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.ReferralCode != nil && *user.ReferralCode == code {
			copy := *user
			return &copy, nil
		}
	}
	return nil, referral.ErrUserNotFound
}

func (m *memoryStore) ListUsersByReferer(_ context.Context, refererID uint) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var users []models.User
	for id := uint(1); id < m.nextID; id++ {
		user, ok := m.users[id]
		if ok && user.RefererID != nil && *user.RefererID == refererID {
			users = append(users, *user)
		}
	}
	return users, nil
}

func (m *memoryStore) SaveReferralCode(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.users[user.ID]
	if !ok {
		return referral.ErrUserNotFound
	}
	stored.ReferralCode = user.ReferralCode
	stored.ReferralCodeExpiry = user.ReferralCodeExpiry
	return nil
}

func (m *memoryStore) SetRefererID(_ context.Context, userID, refererID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return referral.ErrUserNotFound
	}
	if user.RefererID != nil {
		return referral.ErrRefererAlreadySet
	}
	user.RefererID = &refererID
	return nil
}

// setupReferralRouter mirrors the route layout in internal/routes with the
// auth middleware replaced by a stub that injects the acting user.
func setupReferralRouter(store *memoryStore, actingUser uint) *gin.Engine {
	gin.SetMode(gin.TestMode)

	svc := referral.NewService(store, nil)
	handler := NewReferralHandler(svc, nil)

	router := gin.New()
	group := router.Group("/api/referrals")
	group.GET("/email/:email/code", handler.GetCodeByEmail)
	group.GET("/:referer_id", handler.ListReferrals)

	authed := group.Group("")
	authed.Use(func(c *gin.Context) {
		c.Set("user_id", actingUser)
		c.Next()
	})
	authed.POST("/code", handler.CreateCode)
	authed.DELETE("/code", handler.DeleteCode)
	authed.POST("/code/apply", handler.ApplyCode)

	return router
}

func TestCreateCodeEndpoint(t *testing.T) {
	store := newMemoryStore()
	user := store.addUser("alice@example.com")
	router := setupReferralRouter(store, user.ID)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/referrals/code?days=30", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var info referral.Info
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, user.ID, info.UserID)
	assert.Len(t, info.ReferralCode, referral.CodeLength)
	assert.False(t, info.IsExpired)
}

func TestCreateCodeEndpointRejectsBadDays(t *testing.T) {
	store := newMemoryStore()
	user := store.addUser("alice@example.com")
	router := setupReferralRouter(store, user.ID)

	for _, days := range []string{"abc", "0", "-3"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/referrals/code?days="+days, nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "days=%s", days)
	}
}

func TestDeleteCodeEndpointIsIdempotent(t *testing.T) {
	store := newMemoryStore()
	user := store.addUser("alice@example.com")
	router := setupReferralRouter(store, user.ID)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/referrals/code", nil))
	require.Equal(t, http.StatusCreated, w.Code)

	for i := 0; i < 2; i++ {
		w = httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/referrals/code", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestGetCodeByEmailEndpoint(t *testing.T) {
	store := newMemoryStore()
	user := store.addUser("alice@example.com")
	router := setupReferralRouter(store, user.ID)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/referrals/code", nil))
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/referrals/email/alice@example.com/code", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var info referral.Info
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, user.ID, info.UserID)
	assert.Len(t, info.ReferralCode, referral.CodeLength)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/referrals/email/nobody@example.com/code", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListReferralsEndpoint(t *testing.T) {
	store := newMemoryStore()
	referer := store.addUser("alice@example.com")
	first := store.addUser("bob@example.com")
	second := store.addUser("carol@example.com")
	first.RefererID = &referer.ID
	second.RefererID = &referer.ID
	router := setupReferralRouter(store, referer.ID)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/referrals/%d", referer.ID), nil))
	require.Equal(t, http.StatusOK, w.Code)

	var summaries []UserSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summaries))
	require.Len(t, summaries, 2)
	assert.Equal(t, "bob@example.com", summaries[0].Email)
	assert.Equal(t, "carol@example.com", summaries[1].Email)

	// No referrals is an empty list, not an error
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/referrals/%d", first.ID), nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/referrals/not-a-number", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApplyCodeEndpoint(t *testing.T) {
	store := newMemoryStore()
	referer := store.addUser("alice@example.com")
	redeemer := store.addUser("bob@example.com")

	refererRouter := setupReferralRouter(store, referer.ID)
	w := httptest.NewRecorder()
	refererRouter.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/referrals/code", nil))
	require.Equal(t, http.StatusCreated, w.Code)
	var info referral.Info
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))

	router := setupReferralRouter(store, redeemer.ID)
	apply := func(code string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(gin.H{"referral_code": code})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/referrals/code/apply", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		return w
	}

	resp := apply(info.ReferralCode)
	assert.Equal(t, http.StatusCreated, resp.Code)

	resp = apply(info.ReferralCode)
	assert.Equal(t, http.StatusConflict, resp.Code)

	// A fresh account redeeming a code that does not exist
	other := store.addUser("carol@example.com")
	otherRouter := setupReferralRouter(store, other.ID)
	body, _ := json.Marshal(gin.H{"referral_code": "NOSUCH99"})
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/referrals/code/apply", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	otherRouter.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
