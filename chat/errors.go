package chat

import "errors"

var (
	// ErrValidation means the request itself is malformed
	ErrValidation = errors.New("invalid request")
	// ErrNotFound means a referenced user does not exist
	ErrNotFound   = errors.New("user not found")
	ErrNotFriends = errors.New("users are not friends")
	// ErrStorage wraps any failure of the message store or the overlay
	ErrStorage = errors.New("storage failure")
)
