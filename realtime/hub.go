package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"dmchat/metrics"
	"dmchat/models"
)

var ErrNotConnected = errors.New("no live connection for user")

// Hub maintains the set of active clients. Clients are keyed by routing
// handle; one user may hold several sessions at once.
type Hub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mutex      sync.RWMutex

	sendBuffer int
	log        *zap.Logger
	metrics    *metrics.Metrics
}

func NewHub(sendBuffer int, log *zap.Logger, m *metrics.Metrics) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		sendBuffer: sendBuffer,
		log:        log,
		metrics:    m,
	}
}

// Run processes registrations until ctx is cancelled, then closes every client
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			sessions, ok := h.clients[client.Handle]
			if !ok {
				sessions = make(map[*Client]struct{})
				h.clients[client.Handle] = sessions
			}
			sessions[client] = struct{}{}
			h.mutex.Unlock()
			close(client.registered)

			h.metrics.ConnectionOpened()
			h.log.Info("client_connected",
				zap.String("handle", client.Handle),
				zap.String("user_id", client.UserID),
			)

		case client := <-h.unregister:
			if h.drop(client) {
				h.log.Info("client_disconnected",
					zap.String("handle", client.Handle),
					zap.String("user_id", client.UserID),
				)
			}

		case <-ctx.Done():
			h.mutex.Lock()
			for _, sessions := range h.clients {
				for client := range sessions {
					client.closed = true
					close(client.send)
					h.metrics.ConnectionClosed()
				}
			}
			h.clients = make(map[string]map[*Client]struct{})
			h.mutex.Unlock()
			return
		}
	}
}

// Register adds client to the hub and returns once it can receive pushes.
// It reports false if the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		<-client.registered
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// drop removes client and closes its send channel. It reports whether the
// client was still registered.
func (h *Hub) drop(client *Client) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if client.closed {
		return false
	}
	client.closed = true
	close(client.send)
	if sessions, ok := h.clients[client.Handle]; ok {
		delete(sessions, client)
		if len(sessions) == 0 {
			delete(h.clients, client.Handle)
		}
	}
	h.metrics.ConnectionClosed()
	return true
}

// IsConnected checks if handle has at least one open session
func (h *Hub) IsConnected(handle string) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients[handle]) > 0
}

// PushToUser enqueues frame on every session of handle without blocking.
// Sessions whose buffer is full are disconnected.
func (h *Hub) PushToUser(handle string, frame models.WebSocketMessage) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	var slow []*Client
	delivered := 0
	h.mutex.RLock()
	for client := range h.clients[handle] {
		if client.enqueue(data) {
			delivered++
		} else {
			slow = append(slow, client)
		}
	}
	h.mutex.RUnlock()

	h.dropSlow(slow)
	if delivered == 0 {
		return ErrNotConnected
	}
	return nil
}

// PublishTopic enqueues frame on every session subscribed to topic and
// returns how many sessions received it.
func (h *Hub) PublishTopic(topic string, frame models.WebSocketMessage) int {
	frame.Topic = topic
	data, err := json.Marshal(frame)
	if err != nil {
		h.log.Error("frame_marshal_failed", zap.String("topic", topic), zap.Error(err))
		return 0
	}

	var slow []*Client
	delivered := 0
	h.mutex.RLock()
	for _, sessions := range h.clients {
		for client := range sessions {
			if _, ok := client.topics[topic]; !ok {
				continue
			}
			if client.enqueue(data) {
				delivered++
			} else {
				slow = append(slow, client)
			}
		}
	}
	h.mutex.RUnlock()

	h.dropSlow(slow)
	return delivered
}

func (h *Hub) dropSlow(slow []*Client) {
	for _, client := range slow {
		if h.drop(client) {
			h.log.Warn("slow_client_dropped",
				zap.String("handle", client.Handle),
				zap.String("user_id", client.UserID),
			)
		}
	}
}

// Subscribe adds topic to client's subscriptions
func (h *Hub) Subscribe(client *Client, topic string) {
	h.mutex.Lock()
	client.topics[topic] = struct{}{}
	h.mutex.Unlock()
}

func (h *Hub) Unsubscribe(client *Client, topic string) {
	h.mutex.Lock()
	delete(client.topics, topic)
	h.mutex.Unlock()
}

// Reply enqueues frame for this one session only
func (h *Hub) Reply(client *Client, frame models.WebSocketMessage) bool {
	data, err := json.Marshal(frame)
	if err != nil {
		return false
	}
	h.mutex.RLock()
	ok := client.enqueue(data)
	h.mutex.RUnlock()
	if !ok {
		h.dropSlow([]*Client{client})
	}
	return ok
}
