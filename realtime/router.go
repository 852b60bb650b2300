package realtime

import (
	"go.uber.org/zap"

	"dmchat/metrics"
	"dmchat/models"
)

const (
	TopicTyping = "typing"

	FrameMessage = "message"
	FrameTyping  = "typing"
	FrameError   = "error"
	FrameAck     = "ack"
)

// Pusher delivers a frame to every live session of one user
type Pusher interface {
	PushToUser(handle string, frame models.WebSocketMessage) error
}

// Publisher delivers a frame to every subscriber of a topic
type Publisher interface {
	PublishTopic(topic string, frame models.WebSocketMessage) int
}

// Router fans stored events out to live connections. Delivery is best
// effort: nothing is retried and nothing is reported back to the caller.
type Router struct {
	users   Pusher
	topics  Publisher
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewRouter(users Pusher, topics Publisher, log *zap.Logger, m *metrics.Metrics) *Router {
	return &Router{users: users, topics: topics, log: log, metrics: m}
}

// DeliverMessage pushes payload to the receiver and then to the sender,
// so the sender's other sessions see their own message too.
func (r *Router) DeliverMessage(payload models.MessagePayload, senderHandle, receiverHandle string) {
	frame := models.WebSocketMessage{Type: FrameMessage, Payload: payload}
	r.push(receiverHandle, frame, payload.ID)
	r.push(senderHandle, frame, payload.ID)
}

func (r *Router) push(handle string, frame models.WebSocketMessage, messageID int64) {
	if err := r.users.PushToUser(handle, frame); err != nil {
		r.metrics.Push("dropped")
		r.log.Debug("push_dropped",
			zap.String("handle", handle),
			zap.Int64("message_id", messageID),
			zap.Error(err),
		)
		return
	}
	r.metrics.Push("delivered")
}

// BroadcastTyping publishes event to every subscriber of the typing topic.
// Clients filter by receiverUserId themselves.
func (r *Router) BroadcastTyping(event models.TypingEvent) {
	n := r.topics.PublishTopic(TopicTyping, models.WebSocketMessage{Type: FrameTyping, Payload: event})
	r.metrics.Typing()
	r.log.Debug("typing_broadcast",
		zap.String("sender", event.SenderUserID),
		zap.String("receiver", event.ReceiverUserID),
		zap.Int("subscribers", n),
	)
}
