package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"contentstudio/internal/auth"
	"contentstudio/internal/middleware"
	"contentstudio/internal/studio"
	"contentstudio/internal/workflow"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// noSessions 所有想法都不存在
type noSessions struct{}

func (noSessions) Create(context.Context, workflow.IdeaInput) (*studio.Session, error) {
	return nil, studio.ErrSessionClosed
}

func (noSessions) Open(context.Context, string) (*studio.Session, error) {
	return nil, studio.ErrSessionNotFound
}

func (noSessions) Close(context.Context, string) error { return studio.ErrSessionNotFound }

func newTestRouter(t *testing.T, verifier *auth.Verifier) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewRouter(Dependencies{
		Sessions:  noSessions{},
		Verifier:  verifier,
		RateLimit: middleware.RateLimiterConfig{RequestsPerSecond: 0.001, BurstSize: 1},
		Logger:    zaptest.NewLogger(t),
	})
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthAndMetrics(t *testing.T) {
	r := newTestRouter(t, nil)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))

	w = serve(r, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "contentstudio_")
}

func TestAPIRequiresToken(t *testing.T) {
	verifier := auth.NewVerifier("secret", "contentstudio", nil)
	r := newTestRouter(t, verifier)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/formats", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := verifier.Issue("user-1", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/formats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGenerateIsRateLimited(t *testing.T) {
	r := newTestRouter(t, nil)

	w := serve(r, httptest.NewRequest(http.MethodPost, "/api/v1/ideas/x/generate", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodPost, "/api/v1/ideas/x/generate", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/ideas/x", nil))
	assert.Equal(t, http.StatusNotFound, w.Code, "非生成接口不限流")
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/ideas", nil)
	req.Header.Set("Origin", "https://studio.example.com")
	w := serve(r, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
