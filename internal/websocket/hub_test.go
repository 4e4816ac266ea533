package websocket

import (
	"testing"
	"time"

	"github.com/adi-253/Talkie/relay/internal/clock"
	"github.com/adi-253/Talkie/relay/internal/models"
)

const quiet = 150 * time.Millisecond

func TestSessionInfoAndPresence(t *testing.T) {
	relay := startRelay(t)

	alice := relay.connect(t)
	if alice.info.SelfID == "" {
		t.Fatal("session-info carried no self id")
	}
	if len(alice.info.Peers) != 1 || alice.info.Peers[0] != alice.info.SelfID {
		t.Fatalf("first peer snapshot = %v", alice.info.Peers)
	}

	bob := relay.connect(t)
	if len(bob.info.Peers) != 2 {
		t.Fatalf("second peer snapshot = %v", bob.info.Peers)
	}
	if bob.info.SelfID == alice.info.SelfID {
		t.Fatal("two live connections share an id")
	}

	var joined models.PeerEvent
	alice.expect(t, models.EventPeerConnected, &joined)
	if joined.PeerID != bob.info.SelfID {
		t.Fatalf("peer-connected for %q, want %q", joined.PeerID, bob.info.SelfID)
	}
	bob.expectNone(t, quiet)

	bob.leave(t)
	var left models.PeerEvent
	alice.expect(t, models.EventPeerDisconnected, &left)
	if left.PeerID != bob.info.SelfID {
		t.Fatalf("peer-disconnected for %q, want %q", left.PeerID, bob.info.SelfID)
	}
}

func TestMessageFanOutAndReconciliationNotice(t *testing.T) {
	relay := startRelay(t)
	alice := relay.connect(t)
	bob := relay.connect(t)
	alice.expect(t, models.EventPeerConnected, nil)

	alice.send(t, models.EventMessageSend, models.MessageSend{Body: "hi", ProvisionalID: "p1"})

	var got models.MessageBroadcast
	bob.expect(t, models.EventMessageBroadcast, &got)
	want := models.MessageBroadcast{Body: "hi", From: alice.info.SelfID, CanonicalID: "c1"}
	if got != want {
		t.Fatalf("broadcast = %+v, want %+v", got, want)
	}

	var assigned models.MessageIDAssigned
	alice.expect(t, models.EventMessageIDAssigned, &assigned)
	if assigned.ProvisionalID != "p1" || assigned.CanonicalID != "c1" {
		t.Fatalf("id assignment = %+v", assigned)
	}

	// a sent message implicitly ends typing
	var stop models.Typing
	bob.expect(t, models.EventTypingStop, &stop)
	if stop.UserID != alice.info.SelfID {
		t.Fatalf("typing-stop for %q", stop.UserID)
	}

	alice.expectNone(t, quiet)
	if n := relay.hub.Stats().GetStats().MessageCount; n != 1 {
		t.Fatalf("message count = %d, want 1", n)
	}
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	relay := startRelay(t)
	alice := relay.connect(t)
	bob := relay.connect(t)
	alice.expect(t, models.EventPeerConnected, nil)

	alice.sendRaw(t, []byte("not json at all"))
	alice.sendRaw(t, []byte(`{"payload":{"body":"no type"}}`))
	alice.sendRaw(t, []byte(`{"type":"message-send","payload":{"body":"","provisionalId":"p1"}}`))
	alice.sendRaw(t, []byte(`{"type":"message-send","payload":{"body":"no id"}}`))
	alice.sendRaw(t, []byte(`{"type":"message-send","payload":"hi"}`))
	alice.sendRaw(t, []byte(`{"type":"session-info","payload":{}}`))

	bob.expectNone(t, quiet)
	alice.expectNone(t, quiet)

	// the connection survives and still relays valid traffic
	alice.send(t, models.EventMessageSend, models.MessageSend{Body: "still here", ProvisionalID: "p2"})
	var got models.MessageBroadcast
	bob.expect(t, models.EventMessageBroadcast, &got)
	if got.Body != "still here" || got.CanonicalID != "c1" {
		t.Fatalf("broadcast = %+v", got)
	}
	if n := relay.hub.Stats().GetStats().MessageCount; n != 1 {
		t.Fatalf("message count = %d, want 1", n)
	}
}

func TestTypingStopsAfterDebounce(t *testing.T) {
	relay := startRelay(t)
	alice := relay.connect(t)
	bob := relay.connect(t)
	alice.expect(t, models.EventPeerConnected, nil)

	alice.send(t, models.EventTypingStart, nil)
	var start models.Typing
	bob.expect(t, models.EventTypingStart, &start)
	if start.UserID != alice.info.SelfID {
		t.Fatalf("typing-start for %q", start.UserID)
	}
	alice.expectNone(t, quiet)

	relay.clock.Advance(999 * time.Millisecond)
	bob.expectNone(t, quiet)

	relay.clock.Advance(time.Millisecond)
	var stop models.Typing
	bob.expect(t, models.EventTypingStop, &stop)
	if stop.UserID != alice.info.SelfID {
		t.Fatalf("typing-stop for %q", stop.UserID)
	}
}

func TestTypingRefreshKeepsSingleTimer(t *testing.T) {
	relay := startRelay(t)
	alice := relay.connect(t)
	bob := relay.connect(t)
	alice.expect(t, models.EventPeerConnected, nil)

	alice.send(t, models.EventTypingStart, nil)
	bob.expect(t, models.EventTypingStart, nil)

	relay.clock.Advance(600 * time.Millisecond)
	alice.send(t, models.EventTypingStart, nil)
	bob.expect(t, models.EventTypingStart, nil)

	if n := relay.clock.Pending(); n != 1 {
		t.Fatalf("pending timers = %d, want 1", n)
	}

	// the first timer would have fired here
	relay.clock.Advance(600 * time.Millisecond)
	bob.expectNone(t, quiet)

	relay.clock.Advance(400 * time.Millisecond)
	bob.expect(t, models.EventTypingStop, nil)
	bob.expectNone(t, quiet)
}

func TestDisconnectCancelsTypingTimer(t *testing.T) {
	relay := startRelay(t)
	alice := relay.connect(t)
	bob := relay.connect(t)
	alice.expect(t, models.EventPeerConnected, nil)

	alice.send(t, models.EventTypingStart, nil)
	bob.expect(t, models.EventTypingStart, nil)

	alice.leave(t)
	bob.expect(t, models.EventPeerDisconnected, nil)
	if n := relay.clock.Pending(); n != 0 {
		t.Fatalf("pending timers after disconnect = %d", n)
	}

	relay.clock.Advance(2 * time.Second)
	bob.expectNone(t, quiet)
}

func TestMessageCancelsTypingTimer(t *testing.T) {
	relay := startRelay(t)
	alice := relay.connect(t)
	bob := relay.connect(t)
	alice.expect(t, models.EventPeerConnected, nil)

	alice.send(t, models.EventTypingStart, nil)
	bob.expect(t, models.EventTypingStart, nil)

	alice.send(t, models.EventMessageSend, models.MessageSend{Body: "done", ProvisionalID: "p1"})
	bob.expect(t, models.EventMessageBroadcast, nil)
	bob.expect(t, models.EventTypingStop, nil)

	relay.clock.Advance(2 * time.Second)
	bob.expectNone(t, quiet)
}

func TestEmphasizeBroadcastsRequesterID(t *testing.T) {
	relay := startRelay(t)
	alice := relay.connect(t)
	bob := relay.connect(t)
	carol := relay.connect(t)
	alice.expect(t, models.EventPeerConnected, nil)
	alice.expect(t, models.EventPeerConnected, nil)
	bob.expect(t, models.EventPeerConnected, nil)

	alice.send(t, models.EventEmphasizeRequest, nil)

	for _, p := range []*testPeer{bob, carol} {
		var got models.Emphasize
		p.expect(t, models.EventEmphasizeBroadcast, &got)
		if got.ID != alice.info.SelfID {
			t.Fatalf("emphasize id = %q, want %q", got.ID, alice.info.SelfID)
		}
	}
	alice.expectNone(t, quiet)
}

func TestShutdownClosesConnections(t *testing.T) {
	relay := startRelay(t)
	alice := relay.connect(t)

	relay.cancel()
	<-relay.hub.Done()
	alice.expectClosed(t)
	if n := relay.hub.ClientCount(); n != 0 {
		t.Fatalf("client count after shutdown = %d", n)
	}
}

func TestSlowClientIsDropped(t *testing.T) {
	hub := NewHub(nil, HubConfig{SendBuffer: 1})
	slow := NewClient(hub, nil, "slow", "test")

	// drive the hub state directly; Run is not started
	hub.registerClient(slow)
	if hub.ClientCount() != 1 {
		t.Fatalf("client count = %d", hub.ClientCount())
	}

	hub.broadcast(nil, models.EventTypingStop, models.Typing{UserID: "x"})
	if hub.ClientCount() != 0 {
		t.Fatalf("slow client still registered")
	}

	if _, ok := <-slow.send; !ok {
		t.Fatal("expected the queued session-info before close")
	}
	if _, ok := <-slow.send; ok {
		t.Fatal("send queue was not closed")
	}

	// a late unregister from the pumps is a no-op
	hub.unregisterClient(slow)
}

// drainQueue returns the event types queued for client without blocking.
func drainQueue(t *testing.T, client *Client) []models.EventType {
	t.Helper()
	var types []models.EventType
	for {
		select {
		case frame, ok := <-client.send:
			if !ok {
				return types
			}
			env, err := models.DecodeEnvelope(frame)
			if err != nil {
				t.Fatalf("queued frame: %v", err)
			}
			types = append(types, env.Type)
		default:
			return types
		}
	}
}

func TestSlowAuthorDroppedDuringFanOut(t *testing.T) {
	hub := NewHub(nil, HubConfig{SendBuffer: 2})
	author := NewClient(hub, nil, "author", "test")
	peer := NewClient(hub, nil, "peer", "test")

	// author's queue: session-info, peer-connected (full)
	// peer's queue: session-info, filler (full)
	hub.registerClient(author)
	hub.registerClient(peer)
	peer.send <- []byte(`{"type":"typing-stop"}`)

	// the peer overflows, and its peer-disconnected overflows the author
	hub.handleMessageSend(author, models.MessageSend{Body: "hi", ProvisionalID: "p1"})

	if hub.ClientCount() != 0 {
		t.Fatalf("client count = %d, want 0", hub.ClientCount())
	}
	if got := drainQueue(t, author); len(got) != 2 {
		t.Fatalf("author queue = %v", got)
	}
	if _, ok := <-author.send; ok {
		t.Fatal("author queue was not closed")
	}
	if got := hub.Stats().GetStats().MessageCount; got != 1 {
		t.Fatalf("message count = %d", got)
	}
}

func TestStaleTypingExpiryAfterRearm(t *testing.T) {
	hub := NewHub(nil, HubConfig{Clock: clock.Fake(epoch)})
	alice := NewClient(hub, nil, "alice", "test")
	bob := NewClient(hub, nil, "bob", "test")
	hub.registerClient(alice)
	hub.registerClient(bob)
	drainQueue(t, bob)

	// alice's timer fires but its expiry has not reached the hub yet
	hub.armTyping(alice)
	stale := typingExpiry{client: alice, generation: hub.typing[alice].generation}

	// a message cancels typing and alice starts typing again
	hub.cancelTyping(alice)
	hub.armTyping(alice)

	hub.handleTypingExpired(stale)
	if got := drainQueue(t, bob); len(got) != 0 {
		t.Fatalf("bob received %v for a stale expiry", got)
	}
	slot, ok := hub.typing[alice]
	if !ok {
		t.Fatal("stale expiry removed the fresh typing slot")
	}

	hub.handleTypingExpired(typingExpiry{client: alice, generation: slot.generation})
	if got := drainQueue(t, bob); len(got) != 1 || got[0] != models.EventTypingStop {
		t.Fatalf("bob queue = %v, want typing-stop", got)
	}
}

func TestParseRequest(t *testing.T) {
	client := &Client{ID: "a1"}

	req, err := parseRequest(client, []byte(`{"type":"message-send","payload":{"body":"hi","provisionalId":"p1"}}`))
	if err != nil {
		t.Fatalf("parseRequest: %v", err)
	}
	if req.kind != models.EventMessageSend || req.message.Body != "hi" || req.message.ProvisionalID != "p1" {
		t.Fatalf("unexpected request %+v", req)
	}

	req, err = parseRequest(client, []byte(`{"type":"typing-start","payload":{"userId":"spoofed"}}`))
	if err != nil {
		t.Fatalf("parseRequest typing: %v", err)
	}
	if req.client != client {
		t.Fatal("request not bound to its connection")
	}

	if _, err := parseRequest(client, []byte(`{"type":"peer-connected"}`)); err == nil {
		t.Fatal("relay-only event accepted from a client")
	}
}
