package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/adi-253/Talkie/relay/internal/clock"
	"github.com/adi-253/Talkie/relay/internal/models"
	"github.com/adi-253/Talkie/relay/internal/services"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type testRelay struct {
	hub    *Hub
	clock  *clock.FakeClock
	url    string
	cancel context.CancelFunc
}

// startRelay runs a hub on a fake clock behind an httptest server.
// Canonical ids are issued as c1, c2, ...
func startRelay(t *testing.T) *testRelay {
	t.Helper()

	clk := clock.Fake(epoch)
	hub := NewHub(services.NewStatsService(clk), HubConfig{
		TypingDebounce: time.Second,
		Clock:          clk,
	})
	issued := 0
	hub.canonicalID = func() (string, error) {
		issued++
		return fmt.Sprintf("c%d", issued), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(NewHandler(hub).ServeWS))
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
		server.Close()
	})

	return &testRelay{
		hub:    hub,
		clock:  clk,
		url:    "ws" + strings.TrimPrefix(server.URL, "http"),
		cancel: cancel,
	}
}

// testPeer is a raw WebSocket client whose frames are collected by a
// background reader so tests can wait with timeouts without breaking the
// connection.
type testPeer struct {
	conn   *websocket.Conn
	events chan models.Envelope
	closed chan struct{}
	info   models.SessionInfo
}

// connect dials the relay and consumes the session-info snapshot.
func (r *testRelay) connect(t *testing.T) *testPeer {
	t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(r.url, nil)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial relay: %v", err)
	}

	p := &testPeer{
		conn:   conn,
		events: make(chan models.Envelope, 64),
		closed: make(chan struct{}),
	}
	go p.readLoop()
	t.Cleanup(func() { conn.Close() })

	p.expect(t, models.EventSessionInfo, &p.info)
	return p
}

func (p *testPeer) readLoop() {
	defer close(p.closed)
	for {
		_, raw, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := models.DecodeEnvelope(raw)
		if err != nil {
			continue
		}
		p.events <- env
	}
}

// expect waits for the next event and requires it to be of eventType.
func (p *testPeer) expect(t *testing.T, eventType models.EventType, payload any) {
	t.Helper()

	select {
	case env := <-p.events:
		if env.Type != eventType {
			t.Fatalf("expected %s, got %s (%s)", eventType, env.Type, env.Payload)
		}
		if payload != nil {
			if err := env.DecodePayload(payload); err != nil {
				t.Fatalf("decode %s: %v", eventType, err)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", eventType)
	}
}

// expectNone fails if any event arrives within d.
func (p *testPeer) expectNone(t *testing.T, d time.Duration) {
	t.Helper()

	select {
	case env := <-p.events:
		t.Fatalf("expected no event, got %s (%s)", env.Type, env.Payload)
	case <-time.After(d):
	}
}

// expectClosed waits for the relay to hang up.
func (p *testPeer) expectClosed(t *testing.T) {
	t.Helper()

	select {
	case <-p.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not closed by the relay")
	}
}

func (p *testPeer) send(t *testing.T, eventType models.EventType, payload any) {
	t.Helper()

	frame, err := models.Encode(eventType, payload)
	if err != nil {
		t.Fatalf("encode %s: %v", eventType, err)
	}
	p.sendRaw(t, frame)
}

func (p *testPeer) sendRaw(t *testing.T, frame []byte) {
	t.Helper()

	if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

// leave closes the connection the way a browser tab would.
func (p *testPeer) leave(t *testing.T) {
	t.Helper()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = p.conn.Close()
}
