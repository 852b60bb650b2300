package handlers

import (
	"errors"
	"net/http"
	"strings"

	"dmchat/database"
	"dmchat/models"
)

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.withPresence(user))
}

// SearchUser looks a user up by their public id
func (h *Handler) SearchUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r); !ok {
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		writeMessage(w, http.StatusBadRequest, "userId is required")
		return
	}

	found, err := h.users.ResolveUser(r.Context(), userID)
	if errors.Is(err, database.ErrUserNotFound) {
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.withPresence(found))
}

// Heartbeat marks the caller online for the next online window
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	h.presence.Heartbeat(user.UserID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status reports presence for ?userId=. Unknown ids are simply offline.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r); !ok {
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		writeMessage(w, http.StatusBadRequest, "userId is required")
		return
	}

	lastSeen, seen := h.presence.LastSeen(userID)
	writeJSON(w, http.StatusOK, models.NewStatusResponse(userID, h.presence.IsOnline(userID), lastSeen, seen))
}

func (h *Handler) withPresence(u models.UserRef) models.UserResponse {
	resp := u.ToResponse()
	online := h.presence.IsOnline(u.UserID)
	resp.Online = &online
	return resp
}
