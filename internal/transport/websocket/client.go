package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/tacmap/tacsim/internal/channel"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// client is one viewer connection with a single write goroutine.
type client struct {
	id     string
	conn   *ws.Conn
	send   *channel.Buffered[[]byte]
	logger *slog.Logger

	mu       sync.Mutex
	closed   bool
	sessions map[string]struct{}
}

func newClient(id string, conn *ws.Conn, buffer int, logger *slog.Logger) *client {
	return &client{
		id:       id,
		conn:     conn,
		send:     channel.NewBuffered[[]byte](buffer),
		logger:   logger.With("clientId", id),
		sessions: make(map[string]struct{}),
	}
}

// enqueue hands data to the write loop. Non-blocking; drops if the queue is full.
func (c *client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if !c.send.TrySend(data) {
		c.logger.Warn("client send queue full, dropping message", "queued", c.send.Len())
		return false
	}
	return true
}

func (c *client) enqueueJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("failed to marshal reply", "error", err)
		return
	}
	c.enqueue(data)
}

// shutdown stops the write loop once the queue drains.
func (c *client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.send.Close()
}

func (c *client) joined(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sessions[sessionID]
	return ok
}

// writeLoop drains the send queue and keeps the connection alive with pings.
// It closes the socket when it returns, which also ends readLoop.
func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send.Receive():
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("WebSocket SetWriteDeadline error", "error", err)
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.logger.Debug("WebSocket write error", "error", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(ws.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop feeds every frame to handle until the connection fails.
func (c *client) readLoop(handle func(*client, []byte)) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				c.logger.Warn("WebSocket read error", "error", err)
			}
			return
		}
		handle(c, message)
	}
}
