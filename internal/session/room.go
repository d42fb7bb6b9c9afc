package session

import (
	"sort"
	"sync"

	"relay/internal/metrics"
	"relay/internal/models"
)

// Room is one broadcast domain. A single mutex serializes membership changes
// AND the broadcasts they trigger, so every member observes presence events
// in the same relative order.
type Room struct {
	ID string

	mu      sync.Mutex
	members map[string]*Client // keyed by socket id
}

func NewRoom(id string) *Room {
	return &Room{
		ID:      id,
		members: make(map[string]*Client),
	}
}

// Join registers the client and announces it to every member of the room,
// including the joiner, with the full current member list. Re-joining with
// the same socket id replaces the stale entry rather than duplicating it.
func (r *Room) Join(c *Client) []models.Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[c.SocketID] = c

	list := r.memberListLocked()
	env := models.Envelope{
		Action: models.ActionJoined,
		Data: models.JoinedEvent{
			Clients:  list,
			Username: c.Username,
			SocketID: c.SocketID,
		},
	}
	for _, m := range r.members {
		m.Send(env)
	}
	metrics.MessageRelayed(models.ActionJoined)
	return list
}

// Leave removes the member and announces the departure to the remaining
// members only. Unknown socket ids are a benign no-op.
func (r *Room) Leave(socketID string) (username string, remaining int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.members[socketID]
	if !ok {
		return "", len(r.members), false
	}
	delete(r.members, socketID)

	env := models.Envelope{
		Action: models.ActionDisconnected,
		Data: models.DisconnectedEvent{
			SocketID: c.SocketID,
			Username: c.Username,
		},
	}
	for _, m := range r.members {
		m.Send(env)
	}
	metrics.MessageRelayed(models.ActionDisconnected)
	return c.Username, len(r.members), true
}

// Relay fans a content-change out to every member except the originator.
// Last write wins at the receiver; there is no ack and no retry.
func (r *Room) Relay(originID, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	env := models.Envelope{
		Action: models.ActionContentChange,
		Data: models.ContentChange{
			RoomID:  r.ID,
			Content: content,
		},
	}
	for id, m := range r.members {
		if id == originID {
			continue
		}
		m.Send(env)
	}
	metrics.MessageRelayed(models.ActionContentChange)
}

func (r *Room) Members() []models.Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.memberListLocked()
}

func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

func (r *Room) memberListLocked() []models.Member {
	list := make([]models.Member, 0, len(r.members))
	for _, m := range r.members {
		list = append(list, models.Member{Username: m.Username, SocketID: m.SocketID})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].SocketID < list[j].SocketID })
	return list
}
