package session

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"relay/internal/metrics"
	"relay/internal/models"
	"relay/internal/utils"
)

const (
	writeWait  = 10 * time.Second
	PongWait   = 60 * time.Second
	pingPeriod = (PongWait * 9) / 10

	// DefaultSendQueueSize bounds a client's outbound queue when no
	// explicit size is configured.
	DefaultSendQueueSize = 64
)

// Client is one participant's live channel. Outbound frames go through a
// bounded queue drained by a write pump so a slow receiver never stalls the
// sender; on overflow the frame is dropped and counted.
type Client struct {
	SocketID string
	Username string
	RoomID   string

	conn *websocket.Conn
	send chan models.Envelope

	mu     sync.Mutex
	hook   func(models.Envelope)
	closed bool
}

// NewClient wires a connection into the session layer. A non-positive
// queueSize falls back to DefaultSendQueueSize.
func NewClient(conn *websocket.Conn, socketID, username, roomID string, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = DefaultSendQueueSize
	}
	c := &Client{
		SocketID: socketID,
		Username: username,
		RoomID:   roomID,
		conn:     conn,
		send:     make(chan models.Envelope, queueSize),
	}
	if conn != nil {
		go c.writePump()
	}
	return c
}

// SetSendHook replaces WebSocket delivery (used in tests).
func (c *Client) SetSendHook(fn func(models.Envelope)) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

// Send enqueues a frame for delivery. It never blocks: a full queue drops the
// frame rather than stalling the broadcasting room.
func (c *Client) Send(env models.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hook != nil {
		c.hook(env)
		return
	}
	if c.closed {
		return
	}
	select {
	case c.send <- env:
	default:
		metrics.FrameDropped()
		utils.GetLogger().Warn("send queue full, dropping frame",
			zap.String("socketId", c.SocketID),
			zap.String("action", env.Action))
	}
}

// Close stops the write pump. Idempotent; safe to call concurrently with Send.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				utils.GetLogger().Debug("write failed",
					zap.String("socketId", c.SocketID), zap.Error(err))
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
