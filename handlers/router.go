package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"dmchat/chat"
	"dmchat/metrics"
	"dmchat/middleware"
	"dmchat/models"
	"dmchat/presence"
	"dmchat/realtime"
)

// Directory is the part of the user directory the API reads
type Directory interface {
	ResolveUser(ctx context.Context, userID string) (models.UserRef, error)
	Friends(ctx context.Context, u models.UserRef) ([]models.UserRef, error)
}

type Deps struct {
	Chat     *chat.Service
	Users    Directory
	Presence *presence.Tracker
	Hub      *realtime.Hub
	Tokens   *middleware.Tokens
	Limiter  *middleware.RateLimiter
	Metrics  *metrics.Metrics
	Log      *zap.Logger
}

type Handler struct {
	chat     *chat.Service
	users    Directory
	presence *presence.Tracker
	hub      *realtime.Hub
	log      *zap.Logger
}

// NewRouter wires every route of the API
func NewRouter(d Deps) *mux.Router {
	h := &Handler{
		chat:     d.Chat,
		users:    d.Users,
		presence: d.Presence,
		hub:      d.Hub,
		log:      d.Log,
	}

	r := mux.NewRouter()
	r.Use(middleware.Logging(d.Log))

	r.HandleFunc("/healthz", h.Health).Methods("GET")
	r.Handle("/metrics", d.Metrics.Handler()).Methods("GET")

	auth := middleware.Auth(d.Tokens, d.Users, d.Log)
	limit := middleware.RateLimit(d.Limiter, d.Metrics)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(auth, limit)

	// Chat routes
	api.HandleFunc("/chat/messages", h.SendMessage).Methods("POST")
	api.HandleFunc("/chat/messages", h.GetMessages).Methods("GET")
	api.HandleFunc("/chat/messages", h.DeleteConversation).Methods("DELETE")
	api.HandleFunc("/chat/messages/delete", h.DeleteConversation).Methods("POST")
	api.HandleFunc("/chat/typing", h.Typing).Methods("POST")

	// User routes
	api.HandleFunc("/users/me", h.Me).Methods("GET")
	api.HandleFunc("/users/search", h.SearchUser).Methods("GET")
	api.HandleFunc("/users/presence/heartbeat", h.Heartbeat).Methods("POST")
	api.HandleFunc("/users/status", h.Status).Methods("GET")
	api.HandleFunc("/friends", h.GetFriends).Methods("GET")

	r.Handle("/ws", auth(http.HandlerFunc(h.HandleWebSocket))).Methods("GET")

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// writeError maps service errors to HTTP statuses
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request_failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeMessage(w, status, "Internal server error")
		return
	}
	writeMessage(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, chat.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrNotFriends):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// currentUser fetches the caller set by middleware.Auth
func currentUser(w http.ResponseWriter, r *http.Request) (models.UserRef, bool) {
	user, ok := middleware.GetUserFromContext(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
	}
	return user, ok
}
