package middlewares

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fixmyarea-be/identity"
	"fixmyarea-be/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAuth map[string]*identity.Caller

func (s stubAuth) CurrentCaller(_ context.Context, raw string) (*identity.Caller, error) {
	if raw == "broken" {
		return nil, errors.New("redis: connection refused")
	}
	if caller, ok := s[raw]; ok {
		return caller, nil
	}
	return nil, identity.ErrUnauthenticated
}

func authRouter() *gin.Engine {
	r := gin.New()
	auth := stubAuth{"good": {ID: "u1", SessionID: "s1"}}
	r.GET("/me", AuthMiddleware(auth, slog.New(slog.NewTextHandler(io.Discard, nil))), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString(UserIDKey), "session": CallerFrom(c).SessionID})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		header string
		cookie string
		status int
	}{
		{"bearer header", "Bearer good", "", http.StatusOK},
		{"bare header", "good", "", http.StatusOK},
		{"cookie", "", "good", http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"invalid", "Bearer nope", "", http.StatusUnauthorized},
		{"token store down", "Bearer broken", "", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: utils.AuthCookieName, Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			authRouter().ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.JSONEq(t, `{"user_id":"u1","session":"s1"}`, w.Body.String())
			}
		})
	}
}

func TestCallerFrom_Missing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, CallerFrom(c))
}

func TestLocalLimiter(t *testing.T) {
	l := NewLocalLimiter(2, time.Hour)
	now := time.Unix(1_000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _, err := l.Allow(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, retry, err := l.Allow(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.InDelta(t, (30 * time.Minute).Seconds(), retry.Seconds(), 1)

	ok, _, _ = l.Allow(ctx, "u2")
	assert.True(t, ok, "limits are per key")

	now = now.Add(30 * time.Minute)
	ok, _, _ = l.Allow(ctx, "u1")
	assert.True(t, ok)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, time.Duration, error) {
	return false, 0, errors.New("boom")
}

func TestIssueRateLimiter(t *testing.T) {
	limiter := NewLocalLimiter(1, 24*time.Hour)
	r := gin.New()
	r.POST("/issues",
		func(c *gin.Context) { c.Set(UserIDKey, c.GetHeader("X-User")) },
		IssueRateLimiter(limiter, slog.New(slog.NewTextHandler(io.Discard, nil))),
		func(c *gin.Context) { c.Status(http.StatusCreated) })

	send := func(user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/issues", nil)
		req.Header.Set("X-User", user)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusCreated, send("u1").Code)
	w := send("u1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate limit exceeded")
	assert.Equal(t, http.StatusCreated, send("u2").Code)
	assert.Equal(t, http.StatusUnauthorized, send("").Code)
}

func TestIssueRateLimiter_LimiterError(t *testing.T) {
	r := gin.New()
	r.POST("/issues",
		func(c *gin.Context) { c.Set(UserIDKey, "u1") },
		IssueRateLimiter(failingLimiter{}, slog.New(slog.NewTextHandler(io.Discard, nil))),
		func(c *gin.Context) { c.Status(http.StatusCreated) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/issues", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRecoveryAndRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	r := gin.New()
	r.Use(RequestLogger(log), Recovery(log))
	r.GET("/panic", func(*gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, buf.String(), "panic recovered")
	assert.Contains(t, buf.String(), "kaboom")
	assert.Contains(t, buf.String(), "status=500")
}
