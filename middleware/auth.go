package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"dmchat/database"
	"dmchat/models"
)

type contextKey string

const UserContextKey contextKey = "user"

// UserResolver looks a user up by public id
type UserResolver interface {
	ResolveUser(ctx context.Context, userID string) (models.UserRef, error)
}

// Auth checks the bearer token and adds the caller to the request context.
// Browsers cannot set headers on websocket upgrades, so ?token= works too.
func Auth(tokens *Tokens, users UserResolver, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			userID, err := tokens.Verify(raw)
			if err != nil {
				msg := "Invalid token"
				if errors.Is(err, ErrTokenExpired) {
					msg = "Token expired"
				}
				writeError(w, http.StatusUnauthorized, msg)
				return
			}

			user, err := users.ResolveUser(r.Context(), userID)
			if err != nil {
				if !errors.Is(err, database.ErrUserNotFound) {
					log.Error("auth_user_lookup_failed", zap.String("user_id", userID), zap.Error(err))
				}
				writeError(w, http.StatusUnauthorized, "User not found")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// GetUserFromContext retrieves the authenticated user from the request context
func GetUserFromContext(r *http.Request) (models.UserRef, bool) {
	user, ok := r.Context().Value(UserContextKey).(models.UserRef)
	return user, ok
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": msg})
}
