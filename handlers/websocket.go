package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dmchat/chat"
	"dmchat/models"
	"dmchat/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; the token is the access check
	},
}

const frameTimeout = 10 * time.Second

// clientFrame is what browsers send over the socket
type clientFrame struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// HandleWebSocket upgrades the connection and serves it until it closes
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket_upgrade_failed", zap.Error(err))
		return
	}

	client := h.hub.NewClient(conn, user.Username, user.UserID)
	client.Serve(func(c *realtime.Client, data []byte) {
		h.handleFrame(user, c, data)
	})
}

func (h *Handler) handleFrame(user models.UserRef, c *realtime.Client, data []byte) {
	var frame clientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.replyError(c, "Invalid frame")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
	defer cancel()

	switch frame.Type {
	case "subscribe":
		if frame.Topic != realtime.TopicTyping {
			h.replyError(c, "Unknown topic")
			return
		}
		h.hub.Subscribe(c, frame.Topic)
		h.ack(c, frame.Type, frame.Topic, nil)

	case "unsubscribe":
		h.hub.Unsubscribe(c, frame.Topic)
		h.ack(c, frame.Type, frame.Topic, nil)

	case "heartbeat":
		h.presence.Heartbeat(user.UserID)
		h.ack(c, frame.Type, "", nil)

	case "typing":
		var req chat.TypingRequest
		if err := json.Unmarshal(frame.Payload, &req); err != nil {
			h.replyError(c, "Invalid typing payload")
			return
		}
		if err := h.chat.SendTyping(ctx, user, req); err != nil {
			h.replyServiceError(c, err)
		}

	case "message.send":
		var req chat.SendMessageRequest
		if err := json.Unmarshal(frame.Payload, &req); err != nil {
			h.replyError(c, "Invalid message payload")
			return
		}
		payload, err := h.chat.SendMessage(ctx, user, req)
		if err != nil {
			h.replyServiceError(c, err)
			return
		}
		h.ack(c, frame.Type, "", map[string]int64{"id": payload.ID})

	default:
		h.replyError(c, "Unknown frame type")
	}
}

func (h *Handler) ack(c *realtime.Client, of, topic string, extra interface{}) {
	body := map[string]interface{}{"of": of}
	if topic != "" {
		body["topic"] = topic
	}
	if extra != nil {
		body["result"] = extra
	}
	h.hub.Reply(c, models.WebSocketMessage{Type: realtime.FrameAck, Payload: body})
}

func (h *Handler) replyError(c *realtime.Client, msg string) {
	h.hub.Reply(c, models.WebSocketMessage{
		Type:    realtime.FrameError,
		Payload: map[string]string{"message": msg},
	})
}

func (h *Handler) replyServiceError(c *realtime.Client, err error) {
	if statusFor(err) == http.StatusInternalServerError {
		h.log.Error("websocket_frame_failed", zap.String("user_id", c.UserID), zap.Error(err))
		h.replyError(c, "Internal server error")
		return
	}
	h.replyError(c, err.Error())
}
