package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dom/rally-league/internal/api/middleware"
	"github.com/dom/rally-league/internal/config"
	"github.com/dom/rally-league/internal/domain"
	"github.com/dom/rally-league/internal/service"
	"github.com/dom/rally-league/internal/testutil"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRateLimit(t *testing.T) {
	limiter := middleware.NewKeyedRateLimiter(rate.Every(time.Hour), 2)
	handler := middleware.RateLimit(limiter)(ok)

	call := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1:1234"))
	assert.Equal(t, http.StatusOK, call("10.0.0.1:5678"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:9999"), "same ip, different port")
	assert.Equal(t, http.StatusOK, call("10.0.0.2:1234"))
}

func TestRateLimit_ZeroRateDisables(t *testing.T) {
	handler := middleware.RateLimit(middleware.NewKeyedRateLimiter(0, 0))(ok)
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestKeyedRateLimiter_SameKeySameBucket(t *testing.T) {
	limiter := middleware.NewKeyedRateLimiter(1, 1)
	assert.Same(t, limiter.GetLimiter("user:a"), limiter.GetLimiter("user:a"))
	assert.NotSame(t, limiter.GetLimiter("user:a"), limiter.GetLimiter("user:b"))
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantHeader string
		wantStatus int
	}{
		{"listed origin", []string{"https://rally.gg"}, "https://rally.gg", http.MethodGet, "https://rally.gg", http.StatusOK},
		{"unlisted origin", []string{"https://rally.gg"}, "https://evil.example", http.MethodGet, "", http.StatusOK},
		{"wildcard", []string{"*"}, "https://any.example", http.MethodGet, "https://any.example", http.StatusOK},
		{"preflight", []string{"https://rally.gg"}, "https://rally.gg", http.MethodOptions, "https://rally.gg", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reached = true
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(tt.method, "/", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			middleware.CORS(tt.allowed)(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantHeader, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.method != http.MethodOptions, reached)
		})
	}
}

func signToken(t *testing.T, secret, sub, sid string, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  sub,
		"name": "tester",
		"exp":  exp.Unix(),
		"iat":  time.Now().Unix(),
	}
	if sid != "" {
		claims["sid"] = sid
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestAuth(t *testing.T) {
	cfg := config.Defaults()
	cfg.JWTSecret = "middleware-test-secret"
	sessions := testutil.NewMemorySessions()
	authService := service.NewAuthService(nil, sessions, nil, nil, cfg, nil)

	userID := uuid.New()
	live := &domain.UserSession{ID: uuid.New(), UserID: userID, ExpiresAt: time.Now().Add(time.Hour)}
	expired := &domain.UserSession{ID: uuid.New(), UserID: userID, ExpiresAt: time.Now().Add(-time.Minute)}
	require.NoError(t, sessions.Create(context.Background(), live))
	require.NoError(t, sessions.Create(context.Background(), expired))

	var seen uuid.UUID
	handler := middleware.Auth(authService)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = middleware.GetUserID(r.Context())
		principal, ok := middleware.GetPrincipal(r.Context())
		if assert.True(t, ok) {
			assert.Equal(t, "tester", principal.Handle)
		}
		w.WriteHeader(http.StatusOK)
	}))

	sign := func(secret, sub, sid string, exp time.Time) string {
		return "Bearer " + signToken(t, secret, sub, sid, exp)
	}
	soon := time.Now().Add(time.Hour)
	sid := live.ID.String()

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", sign(cfg.JWTSecret, userID.String(), sid, soon), http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"expired", sign(cfg.JWTSecret, userID.String(), sid, time.Now().Add(-time.Hour)), http.StatusUnauthorized},
		{"wrong secret", sign("other", userID.String(), sid, soon), http.StatusUnauthorized},
		{"bad subject", sign(cfg.JWTSecret, "not-a-uuid", sid, soon), http.StatusUnauthorized},
		{"no session claim", sign(cfg.JWTSecret, userID.String(), "", soon), http.StatusUnauthorized},
		{"ended session", sign(cfg.JWTSecret, userID.String(), uuid.NewString(), soon), http.StatusUnauthorized},
		{"expired session", sign(cfg.JWTSecret, userID.String(), expired.ID.String(), soon), http.StatusUnauthorized},
		{"someone else's session", sign(cfg.JWTSecret, uuid.NewString(), sid, soon), http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = uuid.Nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, userID, seen)
			}
		})
	}

	t.Run("logout revokes", func(t *testing.T) {
		require.NoError(t, sessions.DeleteByUserID(context.Background(), userID))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", sign(cfg.JWTSecret, userID.String(), sid, soon))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
