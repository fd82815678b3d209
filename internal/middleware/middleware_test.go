package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dreamlog/backend/internal/auth"
	"dreamlog/backend/internal/models"
)

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(2, time.Minute)
	key := "client"
	assert.True(t, limiter.Allow(key))
	assert.True(t, limiter.Allow(key))
	assert.False(t, limiter.Allow(key))
	assert.True(t, limiter.Allow("other"))
}

func TestRateLimiterWindowResets(t *testing.T) {
	limiter := NewRateLimiter(1, 10*time.Millisecond)
	require.True(t, limiter.Allow("k"))
	require.False(t, limiter.Allow("k"))
	time.Sleep(20 * time.Millisecond)
	limiter.Sweep()
	assert.Empty(t, limiter.items)
	assert.True(t, limiter.Allow("k"))
}

func TestAuthenticate(t *testing.T) {
	service, err := auth.NewService("secret", time.Hour)
	require.NoError(t, err)
	token, err := service.GenerateToken(models.User{ID: 5, Username: "luna"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/dreams", nil)
	_, err = Authenticate(req, service)
	assert.True(t, errors.Is(err, ErrMissingAuthorization))

	req.Header.Set("Authorization", "Basic abc")
	_, err = Authenticate(req, service)
	assert.True(t, errors.Is(err, ErrInvalidAuthorization))

	req.Header.Set("Authorization", "Bearer "+token)
	user, err := Authenticate(req, service)
	require.NoError(t, err)
	assert.Equal(t, int64(5), user.ID)

	ws := httptest.NewRequest(http.MethodGet, "/api/ws?token="+token, nil)
	user, err = Authenticate(ws, service)
	require.NoError(t, err)
	assert.Equal(t, "luna", user.Username)
}

func TestRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	req := RequestID(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	id := RequestIDFromContext(req.Context())
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	in := httptest.NewRequest(http.MethodGet, "/", nil)
	in.Header.Set("X-Request-ID", "abc-123")
	req = RequestID(rec, in)
	assert.Equal(t, "abc-123", RequestIDFromContext(req.Context()))
}

func TestHandleCORSPreflight(t *testing.T) {
	rec := httptest.NewRecorder()
	handled := HandleCORS(rec, httptest.NewRequest(http.MethodOptions, "/api/dreams", nil), "http://localhost:5173")
	assert.True(t, handled)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
