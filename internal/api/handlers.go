package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"relay/internal/metrics"
	"relay/internal/models"
	"relay/internal/roomdir"
	"relay/internal/session"
)

const maxFrameSize = 1024 * 1024

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Handlers struct {
	log       *zap.Logger
	hub       *session.Hub
	dir       *roomdir.Directory
	queueSize int
}

func NewHandlers(log *zap.Logger, hub *session.Hub, dir *roomdir.Directory, queueSize int) *Handlers {
	return &Handlers{log: log, hub: hub, dir: dir, queueSize: queueSize}
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

// CreateRoom mints a fresh room id. The room itself materializes on the
// first JOIN.
func (h *Handlers) CreateRoom(w http.ResponseWriter, r *http.Request) {
	roomID, err := h.dir.CreateRoom(r.Context())
	if err != nil {
		h.log.Error("create room failed", zap.Error(err))
		roomID = uuid.New().String() // directory is advisory; still hand out an id
	}
	writeJSON(w, map[string]string{"roomId": roomID})
}

func (h *Handlers) RoomStatus(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	status, err := h.dir.Status(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, roomdir.ErrNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		h.log.Error("room status failed", zap.String("roomId", roomID), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	// live member list comes from the hub, not Redis
	if room, ok := h.hub.Get(roomID); ok {
		status.MemberCount = room.MemberCount()
	}
	writeJSON(w, status)
}

// SessionWS is the relay endpoint. The first frame must be a JOIN naming the
// room and display name; everything after that is the session event loop.
func (h *Handlers) SessionWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(session.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(session.PongWait))
	})

	client, room, ok := h.handshake(conn)
	if !ok {
		return
	}
	metrics.ClientConnected()
	h.log.Info("client joined",
		zap.String("roomId", room.ID),
		zap.String("socketId", client.SocketID),
		zap.String("username", client.Username))

	defer func() {
		metrics.ClientDisconnected()
		h.teardown(client, room)
	}()

	h.eventLoop(conn, client, room)
}

// handshake reads the JOIN frame and registers the connection. Anything
// other than a well-formed JOIN closes the socket.
func (h *Handlers) handshake(conn *websocket.Conn) (*session.Client, *session.Room, bool) {
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, nil, false
	}
	var env models.Envelope
	if err := json.Unmarshal(msg, &env); err != nil || env.Action != models.ActionJoin {
		h.log.Warn("handshake rejected: expected JOIN")
		return nil, nil, false
	}
	var join models.JoinRequest
	if err := models.Decode(env.Data, &join); err != nil || join.RoomID == "" || join.Username == "" {
		h.log.Warn("handshake rejected: malformed JOIN payload")
		return nil, nil, false
	}

	client := session.NewClient(conn, uuid.New().String(), join.Username, join.RoomID, h.queueSize)
	room := h.hub.GetOrCreate(join.RoomID)
	room.Join(client)
	h.dir.Touch(context.Background(), join.RoomID, room.MemberCount())
	metrics.SetActiveRooms(h.hub.RoomCount())
	return client, room, true
}

func (h *Handlers) eventLoop(conn *websocket.Conn, client *session.Client, room *session.Room) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env models.Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			h.log.Warn("dropping malformed frame",
				zap.String("socketId", client.SocketID), zap.Error(err))
			continue
		}

		switch env.Action {
		case models.ActionContentChange:
			var change models.ContentChange
			if err := models.Decode(env.Data, &change); err != nil {
				h.log.Warn("dropping malformed content-change",
					zap.String("socketId", client.SocketID), zap.Error(err))
				continue
			}
			room.Relay(client.SocketID, change.Content)

		case models.ActionJoin:
			// re-JOIN with the same socket id replaces stale state; a
			// different room on a live connection is not supported
			var join models.JoinRequest
			if err := models.Decode(env.Data, &join); err != nil || join.RoomID != room.ID {
				h.log.Warn("ignoring JOIN for different room",
					zap.String("socketId", client.SocketID))
				continue
			}
			room.Join(client)

		default:
			h.log.Debug("ignoring unrecognized action",
				zap.String("action", env.Action),
				zap.String("socketId", client.SocketID))
		}
	}
}

func (h *Handlers) teardown(client *session.Client, room *session.Room) {
	username, remaining, ok := room.Leave(client.SocketID)
	client.Close()
	if !ok {
		return
	}
	h.log.Info("client left",
		zap.String("roomId", room.ID),
		zap.String("socketId", client.SocketID),
		zap.String("username", username))

	if remaining == 0 && h.hub.DeleteIfEmpty(room.ID) {
		h.dir.Forget(context.Background(), room.ID)
	} else {
		// a joiner may have repopulated the room since the leave
		h.dir.Touch(context.Background(), room.ID, room.MemberCount())
	}
	metrics.SetActiveRooms(h.hub.RoomCount())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
