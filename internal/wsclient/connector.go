package wsclient

import (
	"context"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"relay/internal/history"
	"relay/internal/models"
	"relay/internal/utils"
)

// State is the connector lifecycle position. Closed and Errored are
// terminal: resuming a session takes a fresh Connector and a fresh JOIN.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	}
	return "unknown"
}

var ErrNotOpen = errors.New("connection is not open")

// EventHandler receives session events on the read goroutine. Implementations
// must not block; the UI layer typically marshals onto its own loop.
type EventHandler interface {
	// OnJoined delivers the authoritative member list after any join,
	// including this connector's own.
	OnJoined(event models.JoinedEvent)
	// OnPeerLeft fires when another member disconnects.
	OnPeerLeft(event models.DisconnectedEvent)
	// OnContent delivers a remote document replacement.
	OnContent(content string)
	// OnError fires once on transport failure; the connector is terminal
	// afterwards and the caller should navigate away.
	OnError(err error)
}

// Connector is one participant's session: it dials the relay, issues the
// JOIN, pumps inbound events to the handler, and keeps the local version
// history of the participant's own edits.
type Connector struct {
	url      string
	roomID   string
	username string
	handler  EventHandler
	log      *zap.Logger

	mu    sync.Mutex
	state State
	conn  *websocket.Conn

	History *history.Log
}

func NewConnector(url, roomID, username string, handler EventHandler) *Connector {
	return &Connector{
		url:      url,
		roomID:   roomID,
		username: username,
		handler:  handler,
		log:      utils.GetLogger(),
		state:    StateConnecting,
		History:  history.NewLog(),
	}
}

func (c *Connector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the relay and sends the JOIN envelope. On success the
// connector is Open and the read loop is running; on failure it is Errored
// and OnError has fired.
func (c *Connector) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.fail(err)
		return err
	}

	join := models.Envelope{
		Action: models.ActionJoin,
		Data: models.JoinRequest{
			RoomID:   c.roomID,
			Username: c.username,
		},
	}
	if err := conn.WriteJSON(join); err != nil {
		_ = conn.Close()
		c.fail(err)
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateOpen
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

// SendEdit records a locally-typed snapshot and propagates it to the room.
func (c *Connector) SendEdit(content string) error {
	c.History.Record(content)
	return c.sendContent(content)
}

// Revert restores the previous snapshot, re-broadcasts it so remote peers
// converge on the same text, and returns it for local display. The reverted
// text is not recorded again.
func (c *Connector) Revert() (string, error) {
	prev, err := c.History.Revert()
	if err != nil {
		return "", err
	}
	// the log shrinks before the send; a failed send leaves the connector
	// terminal, so the trimmed history is never consulted again
	if err := c.sendContent(prev); err != nil {
		return prev, err
	}
	return prev, nil
}

// Leave closes the session cleanly. The connector is terminal afterwards.
func (c *Connector) Leave() {
	c.mu.Lock()
	if c.state != StateOpen {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	conn := c.conn
	c.mu.Unlock()

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()
}

func (c *Connector) sendContent(content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return ErrNotOpen
	}
	return c.conn.WriteJSON(models.Envelope{
		Action: models.ActionContentChange,
		Data: models.ContentChange{
			RoomID:  c.roomID,
			Content: content,
		},
	})
}

func (c *Connector) readLoop(conn *websocket.Conn) {
	for {
		var env models.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			c.mu.Lock()
			closed := c.state == StateClosed
			c.mu.Unlock()
			if !closed {
				c.fail(err)
			}
			return
		}
		c.dispatch(env)
	}
}

func (c *Connector) dispatch(env models.Envelope) {
	switch env.Action {
	case models.ActionJoined:
		var event models.JoinedEvent
		if err := models.Decode(env.Data, &event); err != nil {
			c.log.Warn("dropping malformed JOINED", zap.Error(err))
			return
		}
		c.handler.OnJoined(event)

	case models.ActionDisconnected:
		var event models.DisconnectedEvent
		if err := models.Decode(env.Data, &event); err != nil {
			c.log.Warn("dropping malformed DISCONNECTED", zap.Error(err))
			return
		}
		c.handler.OnPeerLeft(event)

	case models.ActionContentChange:
		var change models.ContentChange
		if err := models.Decode(env.Data, &change); err != nil {
			c.log.Warn("dropping malformed content-change", zap.Error(err))
			return
		}
		// remote content is displayed but never recorded locally
		c.handler.OnContent(change.Content)

	default:
		c.log.Debug("ignoring unrecognized action", zap.String("action", env.Action))
	}
}

// fail moves the connector to Errored and notifies the handler exactly once.
func (c *Connector) fail(err error) {
	c.mu.Lock()
	if c.state == StateErrored || c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateErrored
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.handler.OnError(err)
}
