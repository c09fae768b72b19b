package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dom/rally-league/internal/domain"
	"github.com/dom/rally-league/internal/service"
	"github.com/google/uuid"
)

type contextKey string

const (
	UserIDKey    contextKey = "userID"
	PrincipalKey contextKey = "principal"
)

func Auth(authService *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Invalid authorization header", http.StatusUnauthorized)
				return
			}

			principal, err := authService.Authenticate(r.Context(), parts[1])
			if err != nil {
				if !errors.Is(err, service.ErrInvalidToken) {
					slog.ErrorContext(r.Context(), "authenticate request", "error", err)
					http.Error(w, "Internal server error", http.StatusInternalServerError)
					return
				}
				slog.WarnContext(r.Context(), "token validation failed", "error", err)
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, principal.UserID)
			ctx = context.WithValue(ctx, PrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRiotID rejects callers that have not linked a Riot ID with 412.
// It must run after Auth.
func RequireRiotID(authService *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := GetUserID(r.Context())
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			user, err := authService.GetUserByID(r.Context(), userID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
				slog.ErrorContext(r.Context(), "load user for riot id check", "user_id", userID, "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			if !user.HasRiotID() {
				http.Error(w, domain.ErrRiotIDRequired.Error(), http.StatusPreconditionFailed)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return userID, ok
}

func GetPrincipal(ctx context.Context) (*service.Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(*service.Principal)
	return p, ok
}
