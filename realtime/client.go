package realtime

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client represents one websocket session of a user
type Client struct {
	Handle string
	UserID string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// guarded by hub.mutex
	topics map[string]struct{}
	closed bool

	registered chan struct{}
}

func (h *Hub) NewClient(conn *websocket.Conn, handle, userID string) *Client {
	return &Client{
		Handle:     handle,
		UserID:     userID,
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, h.sendBuffer),
		topics:     make(map[string]struct{}),
		registered: make(chan struct{}),
	}
}

// enqueue must be called with hub.mutex held (read or write)
func (c *Client) enqueue(data []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Serve registers the client and pumps frames until the connection ends.
// Every inbound text frame is passed to onFrame on the read goroutine.
func (c *Client) Serve(onFrame func(*Client, []byte)) {
	if !c.hub.Register(c) {
		c.conn.Close()
		return
	}
	go c.writePump()
	c.readPump(onFrame)
}

func (c *Client) readPump(onFrame func(*Client, []byte)) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("websocket_read_failed", zap.String("handle", c.Handle), zap.Error(err))
			}
			return
		}
		onFrame(c, message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
