package handlers

import (
	"net/http"

	"dmchat/models"
)

// GetFriends returns all friends for the current user with their online status
func (h *Handler) GetFriends(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	friends, err := h.users.Friends(r.Context(), user)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]models.UserResponse, 0, len(friends))
	for _, f := range friends {
		resp = append(resp, h.withPresence(f))
	}
	writeJSON(w, http.StatusOK, resp)
}
