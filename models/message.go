package models

import (
	"fmt"
	"strings"
	"time"
)

// MessageType is the kind of payload a message carries
type MessageType string

const (
	MessageTypeText  MessageType = "TEXT"
	MessageTypeImage MessageType = "IMAGE"
	MessageTypeFile  MessageType = "FILE"
	MessageTypeVoice MessageType = "VOICE"
)

// ParseMessageType maps a client supplied type name to a MessageType.
// An empty name means TEXT.
func ParseMessageType(name string) (MessageType, error) {
	switch MessageType(strings.ToUpper(strings.TrimSpace(name))) {
	case "", MessageTypeText:
		return MessageTypeText, nil
	case MessageTypeImage:
		return MessageTypeImage, nil
	case MessageTypeFile:
		return MessageTypeFile, nil
	case MessageTypeVoice:
		return MessageTypeVoice, nil
	}
	return "", fmt.Errorf("unknown message type %q", name)
}

// Message represents a stored message between two users
type Message struct {
	ID       int64
	Sender   UserRef
	Receiver UserRef
	Content  *string
	FileURL  *string
	Type     MessageType
	SentAt   time.Time
}

// MessagePayload is the shape pushed to clients and returned by the API
type MessagePayload struct {
	ID             int64  `json:"id"`
	SenderUserID   string `json:"senderUserId"`
	ReceiverUserID string `json:"receiverUserId"`
	Content        string `json:"content"`
	FileURL        string `json:"fileUrl"`
	Type           string `json:"type"`
	SentAt         string `json:"sentAt"`
}

// ToPayload converts a Message to its client facing form
func (m *Message) ToPayload() MessagePayload {
	p := MessagePayload{
		ID:             m.ID,
		SenderUserID:   m.Sender.UserID,
		ReceiverUserID: m.Receiver.UserID,
		Type:           string(m.Type),
		SentAt:         m.SentAt.UTC().Format(time.RFC3339Nano),
	}
	if m.Content != nil {
		p.Content = *m.Content
	}
	if m.FileURL != nil {
		p.FileURL = *m.FileURL
	}
	return p
}

// TypingEvent is broadcast on the typing topic and never stored
type TypingEvent struct {
	SenderUserID   string `json:"senderUserId"`
	ReceiverUserID string `json:"receiverUserId"`
	Typing         bool   `json:"typing"`
}

// DeleteResult is returned when a user hides a conversation
type DeleteResult struct {
	Status       string `json:"status"`
	DeletedCount int64  `json:"deletedCount"`
}

// WebSocketMessage is the format for real-time frames
type WebSocketMessage struct {
	Type    string      `json:"type"` // "message", "typing", "ack", "error"
	Topic   string      `json:"topic,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}
