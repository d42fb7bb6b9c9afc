package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"relay/internal/models"
)

type frameCapture struct {
	mu     sync.Mutex
	frames []models.Envelope
}

func newFrameCapture() *frameCapture { return &frameCapture{} }

func (c *frameCapture) hook(env models.Envelope) {
	c.mu.Lock()
	c.frames = append(c.frames, env)
	c.mu.Unlock()
}

func (c *frameCapture) list() []models.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Envelope, len(c.frames))
	copy(out, c.frames)
	return out
}

func newHookedClient(socketID, username string) (*Client, *frameCapture) {
	c := NewClient(nil, socketID, username, "room", 0)
	capture := newFrameCapture()
	c.SetSendHook(capture.hook)
	return c, capture
}

func TestClientSendWithHook(t *testing.T) {
	client := NewClient(nil, "s1", "alice", "r1", 0)
	capture := newFrameCapture()
	client.SetSendHook(capture.hook)

	client.Send(models.Envelope{Action: "ping"})

	got := capture.list()
	if len(got) != 1 || got[0].Action != "ping" {
		t.Fatalf("expected frame captured, got %#v", got)
	}
}

func TestClientSendWithoutConnDoesNotBlock(t *testing.T) {
	client := NewClient(nil, "s1", "alice", "r1", 0)
	done := make(chan struct{})
	go func() {
		// well past the queue bound; every extra frame must be dropped,
		// never block
		for i := 0; i < 200; i++ {
			client.Send(models.Envelope{Action: "noop"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Send blocked on a full queue")
	}
}

func TestClientQueueSizeIsConfigurable(t *testing.T) {
	client := NewClient(nil, "s1", "alice", "r1", 3)
	if got := cap(client.send); got != 3 {
		t.Fatalf("expected queue capacity 3, got %d", got)
	}

	fallback := NewClient(nil, "s2", "bob", "r1", 0)
	if got := cap(fallback.send); got != DefaultSendQueueSize {
		t.Fatalf("expected default queue capacity, got %d", got)
	}
}

func TestClientSendAfterCloseIsNoop(t *testing.T) {
	client := NewClient(nil, "s1", "alice", "r1", 0)
	client.Close()
	client.Close() // idempotent
	client.Send(models.Envelope{Action: "noop"})
}

func TestClientSendWritesToConn(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan models.Envelope, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var env models.Envelope
		if err := conn.ReadJSON(&env); err == nil {
			received <- env
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	client := NewClient(conn, "s1", "alice", "r1", 0)
	defer client.Close()
	client.Send(models.Envelope{Action: "ping"})

	select {
	case env := <-received:
		if env.Action != "ping" {
			t.Fatalf("unexpected frame: %#v", env)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected frame to be received")
	}
}

func joinedEvent(t *testing.T, env models.Envelope) models.JoinedEvent {
	t.Helper()
	if env.Action != models.ActionJoined {
		t.Fatalf("expected JOINED, got %q", env.Action)
	}
	var event models.JoinedEvent
	if err := models.Decode(env.Data, &event); err != nil {
		t.Fatalf("decode JOINED: %v", err)
	}
	return event
}

func TestRoomJoinBroadcastsToAllIncludingJoiner(t *testing.T) {
	room := NewRoom("r1")

	alice, aliceCap := newHookedClient("s-alice", "alice")
	list := room.Join(alice)
	if len(list) != 1 || list[0].Username != "alice" {
		t.Fatalf("unexpected member list: %#v", list)
	}

	bob, bobCap := newHookedClient("s-bob", "bob")
	room.Join(bob)

	// alice saw her own JOINED plus bob's
	aliceFrames := aliceCap.list()
	if len(aliceFrames) != 2 {
		t.Fatalf("expected 2 frames for alice, got %#v", aliceFrames)
	}
	event := joinedEvent(t, aliceFrames[1])
	if event.Username != "bob" || event.SocketID != "s-bob" {
		t.Fatalf("unexpected joiner identity: %#v", event)
	}
	if len(event.Clients) != 2 {
		t.Fatalf("expected full member list, got %#v", event.Clients)
	}

	// bob receives his own JOINED with the identical list
	bobFrames := bobCap.list()
	if len(bobFrames) != 1 {
		t.Fatalf("expected 1 frame for bob, got %#v", bobFrames)
	}
	bobEvent := joinedEvent(t, bobFrames[0])
	if len(bobEvent.Clients) != 2 {
		t.Fatalf("expected full member list for joiner, got %#v", bobEvent.Clients)
	}
	for i := range event.Clients {
		if event.Clients[i] != bobEvent.Clients[i] {
			t.Fatalf("member views diverge: %#v vs %#v", event.Clients, bobEvent.Clients)
		}
	}
}

func TestRoomJoinIdempotentPerSocketID(t *testing.T) {
	room := NewRoom("r1")
	first, _ := newHookedClient("s1", "alice")
	room.Join(first)

	rejoin, _ := newHookedClient("s1", "alice")
	list := room.Join(rejoin)
	if len(list) != 1 {
		t.Fatalf("re-join duplicated the member entry: %#v", list)
	}
	if room.MemberCount() != 1 {
		t.Fatalf("expected member count 1, got %d", room.MemberCount())
	}
}

func TestRoomLeaveNotifiesRemainingOnly(t *testing.T) {
	room := NewRoom("r1")
	alice, aliceCap := newHookedClient("s-alice", "alice")
	bob, bobCap := newHookedClient("s-bob", "bob")
	room.Join(alice)
	room.Join(bob)

	beforeBob := len(bobCap.list())

	username, remaining, ok := room.Leave("s-bob")
	if !ok || username != "bob" || remaining != 1 {
		t.Fatalf("unexpected leave result: %q %d %v", username, remaining, ok)
	}

	// bob must not see his own DISCONNECTED
	if got := bobCap.list(); len(got) != beforeBob {
		t.Fatalf("departed member received frames: %#v", got[beforeBob:])
	}

	frames := aliceCap.list()
	last := frames[len(frames)-1]
	if last.Action != models.ActionDisconnected {
		t.Fatalf("expected DISCONNECTED, got %q", last.Action)
	}
	var event models.DisconnectedEvent
	if err := models.Decode(last.Data, &event); err != nil {
		t.Fatalf("decode DISCONNECTED: %v", err)
	}
	if event.Username != "bob" || event.SocketID != "s-bob" {
		t.Fatalf("unexpected departure identity: %#v", event)
	}
}

func TestRoomLeaveUnknownSocketIsNoop(t *testing.T) {
	room := NewRoom("r1")
	alice, aliceCap := newHookedClient("s-alice", "alice")
	room.Join(alice)
	before := len(aliceCap.list())

	if _, _, ok := room.Leave("never-joined"); ok {
		t.Fatal("expected no-op leave")
	}
	if got := aliceCap.list(); len(got) != before {
		t.Fatalf("no-op leave broadcast frames: %#v", got[before:])
	}
}

func TestRoomRelayExcludesOrigin(t *testing.T) {
	room := NewRoom("r1")
	alice, aliceCap := newHookedClient("s-alice", "alice")
	bob, bobCap := newHookedClient("s-bob", "bob")
	carol, carolCap := newHookedClient("s-carol", "carol")
	room.Join(alice)
	room.Join(bob)
	room.Join(carol)

	beforeAlice := len(aliceCap.list())

	room.Relay("s-alice", "hello")

	if got := aliceCap.list(); len(got) != beforeAlice {
		t.Fatalf("origin received its own content-change: %#v", got[beforeAlice:])
	}
	for name, capture := range map[string]*frameCapture{"bob": bobCap, "carol": carolCap} {
		frames := capture.list()
		last := frames[len(frames)-1]
		if last.Action != models.ActionContentChange {
			t.Fatalf("%s: expected content-change, got %q", name, last.Action)
		}
		var change models.ContentChange
		if err := models.Decode(last.Data, &change); err != nil {
			t.Fatalf("%s: decode content-change: %v", name, err)
		}
		if change.Content != "hello" || change.RoomID != "r1" {
			t.Fatalf("%s: unexpected payload: %#v", name, change)
		}
	}
}

func TestHubLifecycle(t *testing.T) {
	hub := NewHub()
	roomA := hub.GetOrCreate("a")
	roomB := hub.GetOrCreate("a")
	if roomA != roomB {
		t.Fatalf("expected same room instance")
	}
	if hub.RoomCount() != 1 {
		t.Fatalf("expected 1 room, got %d", hub.RoomCount())
	}

	if _, ok := hub.Get("missing"); ok {
		t.Fatalf("expected missing room")
	}

	hub.Delete("a")
	if _, ok := hub.Get("a"); ok {
		t.Fatalf("expected room to be deleted")
	}
	if hub.RoomCount() != 0 {
		t.Fatalf("expected 0 rooms, got %d", hub.RoomCount())
	}
}

func TestHubDeleteIfEmptySparesRepopulatedRoom(t *testing.T) {
	hub := NewHub()
	room := hub.GetOrCreate("r1")

	alice, _ := newHookedClient("s-alice", "alice")
	room.Join(alice)
	if _, remaining, _ := room.Leave("s-alice"); remaining != 0 {
		t.Fatalf("expected empty room, got %d members", remaining)
	}

	// bob's join lands between alice's leave and the collection
	bob, _ := newHookedClient("s-bob", "bob")
	room.Join(bob)

	if hub.DeleteIfEmpty("r1") {
		t.Fatal("repopulated room was collected")
	}
	if again := hub.GetOrCreate("r1"); again != room {
		t.Fatal("registry handed out a fresh room over the live one")
	}

	room.Leave("s-bob")
	if !hub.DeleteIfEmpty("r1") {
		t.Fatal("empty room survived collection")
	}
	if hub.DeleteIfEmpty("r1") {
		t.Fatal("expected no-op on an unregistered room")
	}
	if hub.RoomCount() != 0 {
		t.Fatalf("expected 0 rooms, got %d", hub.RoomCount())
	}
}

func TestHubRoomsLockIndependently(t *testing.T) {
	hub := NewHub()
	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			room := hub.GetOrCreate(id)
			for i := 0; i < 50; i++ {
				c, _ := newHookedClient(id+"-s", "u")
				room.Join(c)
				room.Relay(id+"-s", "doc")
				room.Leave(id + "-s")
			}
		}(id)
	}
	wg.Wait()
}
