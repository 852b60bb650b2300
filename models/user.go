package models

import "time"

// UserRef identifies a user for the messaging core.
// ID is the internal key, UserID the public one and Username the routing
// handle live connections register under.
type UserRef struct {
	ID          int64
	UserID      string
	Username    string
	DisplayName string
}

// UserResponse is the safe version of UserRef for API responses
type UserResponse struct {
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Online      *bool  `json:"online,omitempty"`
}

// ToResponse converts UserRef to UserResponse
func (u UserRef) ToResponse() UserResponse {
	return UserResponse{
		UserID:      u.UserID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
	}
}

// StatusResponse reports the presence of one user
type StatusResponse struct {
	UserID     string  `json:"userId"`
	Online     bool    `json:"online"`
	LastSeenAt *string `json:"lastSeenAt"`
}

// NewStatusResponse builds a StatusResponse. LastSeenAt stays nil unless seen.
func NewStatusResponse(userID string, online bool, lastSeen time.Time, seen bool) StatusResponse {
	resp := StatusResponse{UserID: userID, Online: online}
	if seen {
		ts := lastSeen.UTC().Format(time.RFC3339Nano)
		resp.LastSeenAt = &ts
	}
	return resp
}
