package models

import "encoding/json"

// Wire actions exchanged between editor clients and the relay.
const (
	ActionJoin          = "JOIN"
	ActionJoined        = "JOINED"
	ActionDisconnected  = "DISCONNECTED"
	ActionContentChange = "content-change"
)

// Envelope is the single frame format on the wire: an action name plus an
// action-specific payload.
type Envelope struct {
	Action string `json:"action"`
	Data   any    `json:"data"`
}

// Member identifies one participant in a room. Usernames are not unique
// within a room; the socket id is.
type Member struct {
	Username string `json:"username"`
	SocketID string `json:"socketId"`
}

type JoinRequest struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

// JoinedEvent carries the full authoritative member list so every receiver
// converges on the same view without a separate roster query.
type JoinedEvent struct {
	Clients  []Member `json:"clients"`
	Username string   `json:"username"`
	SocketID string   `json:"socketId"`
}

type DisconnectedEvent struct {
	SocketID string `json:"socketId"`
	Username string `json:"username"`
}

type ContentChange struct {
	RoomID  string `json:"roomId"`
	Content string `json:"content"`
}

// RoomStatus is the directory view of a room, served over REST.
type RoomStatus struct {
	RoomID      string `json:"roomId"`
	MemberCount int    `json:"memberCount"`
	CreatedAt   string `json:"createdAt"`
}

// Decode unpacks an envelope's Data into a typed payload. Payloads arrive as
// loosely-typed JSON, so this goes through a marshal round trip.
func Decode(in any, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
