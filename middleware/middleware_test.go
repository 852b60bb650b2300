package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dmchat/database"
	"dmchat/metrics"
	"dmchat/models"
)

type stubUsers map[string]models.UserRef

func (s stubUsers) ResolveUser(_ context.Context, userID string) (models.UserRef, error) {
	u, ok := s[userID]
	if !ok {
		return models.UserRef{}, database.ErrUserNotFound
	}
	return u, nil
}

var alice = models.UserRef{ID: 1, UserID: "u-alice", Username: "alice"}

func echoUser(w http.ResponseWriter, r *http.Request) {
	user, ok := GetUserFromContext(r)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Write([]byte(user.Username))
}

func TestTokensRoundTrip(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)

	signed, err := tokens.Issue("u-alice")
	require.NoError(t, err)
	userID, err := tokens.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "u-alice", userID)

	_, err = NewTokens("other", time.Hour).Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = tokens.Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokensExpired(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Subject:   "u-alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewTokens("secret", time.Hour).Verify(signed)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestAuth(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	handler := Auth(tokens, stubUsers{alice.UserID: alice}, zap.NewNop())(http.HandlerFunc(echoUser))

	good, err := tokens.Issue(alice.UserID)
	require.NoError(t, err)
	ghost, err := tokens.Issue("u-ghost")
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{"bearer header", "Bearer " + good, "", http.StatusOK},
		{"lowercase scheme", "bearer " + good, "", http.StatusOK},
		{"query token", "", "?token=" + good, http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + good, "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", "", http.StatusUnauthorized},
		{"unknown user", "Bearer " + ghost, "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/users/me"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, "alice", rec.Body.String())
			} else {
				assert.Contains(t, rec.Body.String(), `"message"`)
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewRateLimiter(1, 2, time.Minute)

	assert.True(t, l.Allow("a", now))
	assert.True(t, l.Allow("a", now))
	assert.False(t, l.Allow("a", now))
	assert.True(t, l.Allow("b", now), "keys are independent")
	assert.True(t, l.Allow("a", now.Add(time.Second)), "tokens refill")
	assert.True(t, l.Allow("", now))

	var disabled *RateLimiter
	assert.Nil(t, NewRateLimiter(0, 5, 0))
	assert.True(t, disabled.Allow("a", now))
}

func TestRateLimitMiddlewareKeysByUser(t *testing.T) {
	limited := RateLimit(NewRateLimiter(0.001, 1, time.Minute), metrics.New())(http.HandlerFunc(echoUser))

	serve := func(user *models.UserRef) int {
		req := httptest.NewRequest("GET", "/", nil)
		if user != nil {
			req = req.WithContext(context.WithValue(req.Context(), UserContextKey, *user))
		}
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		return rec.Code
	}

	bob := models.UserRef{ID: 2, UserID: "u-bob", Username: "bob"}
	assert.Equal(t, http.StatusOK, serve(&alice))
	assert.Equal(t, http.StatusTooManyRequests, serve(&alice))
	assert.Equal(t, http.StatusOK, serve(&bob))
}

func TestLoggingKeepsStatus(t *testing.T) {
	handler := Logging(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
