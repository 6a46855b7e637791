package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	authdomain "cochat-backend/internal/auth/domain"
	authdto "cochat-backend/internal/auth/dto"
	authrepo "cochat-backend/internal/auth/repository"
	authusecase "cochat-backend/internal/auth/usecase"
	msgdelivery "cochat-backend/internal/message/delivery"
	msgdomain "cochat-backend/internal/message/domain"
	msgrepo "cochat-backend/internal/message/repository"
	msgusecase "cochat-backend/internal/message/usecase"
	messengerdelivery "cochat-backend/internal/messenger/delivery"
	"cochat-backend/internal/notification"
	"cochat-backend/pkg/config"
	"cochat-backend/pkg/database"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.NewInMemory(&authdomain.User{}, &authdomain.RefreshToken{}, &authdomain.FCMToken{}, &msgdomain.Message{})
	require.NoError(t, err)
	cfg := &config.Config{JWTSecret: "router-secret", JWTAccessExpiry: time.Minute, JWTRefreshExpiry: time.Hour}
	authUc := authusecase.NewAuthUsecase(authrepo.NewUserRepository(db), authrepo.NewFCMTokenRepository(db), cfg)

	h := NewHandler(
		authUc,
		msgdelivery.NewMessageHandler(msgusecase.NewMessageUsecase(msgrepo.NewMessageRepository(db))),
		messengerdelivery.NewMessengerHandler(nil),
		notification.NewWebhookHandler(nil, "verify-me", ""),
		nil,
	)
	return h.Engine()
}

func TestHealthAndPreflight(t *testing.T) {
	r := newEngine(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodOptions, "/messages", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMessagesRequireAuth(t *testing.T) {
	r := newEngine(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/messages", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	body := `{"email":"ana@example.com","password":"secret123","name":"Ana"}`
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var tokens authdto.TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tokens))

	req := httptest.NewRequest(http.MethodGet, "/messages", nil)
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInstagramVerifyIsPublic(t *testing.T) {
	r := newEngine(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/instagram/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=42", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "42", w.Body.String())
}
