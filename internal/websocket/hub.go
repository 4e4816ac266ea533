package websocket

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/adi-253/Talkie/relay/internal/clock"
	"github.com/adi-253/Talkie/relay/internal/models"
	"github.com/adi-253/Talkie/relay/internal/services"
)

// Hub is the relay dispatcher. It owns the set of live connections and
// every per-connection typing timer, and it is the only goroutine that
// mutates them: read pumps and timers hand work to it over channels.
type Hub struct {
	// clients is the live connection set, touched only by Run
	clients map[*Client]bool

	// typing holds at most one pending typing-stop timer per connection
	typing map[*Client]*typingSlot

	// typingGeneration numbers every armed timer across all connections
	typingGeneration uint64

	register      chan *Client
	unregister    chan *Client
	inbound       chan *request
	typingExpired chan typingExpiry

	// done is closed when Run returns
	done chan struct{}

	clientCount atomic.Int64

	stats          *services.StatsService
	clock          clock.Clock
	typingDebounce time.Duration
	sendBuffer     int
	maxMessageSize int64
	canonicalID    func() (string, error)
}

// HubConfig tunes a Hub. Zero fields take the defaults.
type HubConfig struct {
	// TypingDebounce is the silence after which typing-stop is broadcast
	TypingDebounce time.Duration

	// SendBuffer is the outbound queue length per connection
	SendBuffer int

	// MaxMessageSize caps inbound frames
	MaxMessageSize int64

	// Clock drives the typing timers; defaults to the real clock
	Clock clock.Clock
}

const (
	defaultTypingDebounce = time.Second
	defaultSendBuffer     = 256
	defaultMaxMessageSize = 64 * 1024
)

// NewHub creates a new Hub instance
func NewHub(stats *services.StatsService, cfg HubConfig) *Hub {
	if cfg.TypingDebounce <= 0 {
		cfg.TypingDebounce = defaultTypingDebounce
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if stats == nil {
		stats = services.NewStatsService(cfg.Clock)
	}
	return &Hub{
		clients:        make(map[*Client]bool),
		typing:         make(map[*Client]*typingSlot),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		inbound:        make(chan *request),
		typingExpired:  make(chan typingExpiry),
		done:           make(chan struct{}),
		stats:          stats,
		clock:          cfg.Clock,
		typingDebounce: cfg.TypingDebounce,
		sendBuffer:     cfg.SendBuffer,
		maxMessageSize: cfg.MaxMessageSize,
		canonicalID:    newCanonicalID,
	}
}

// newCanonicalID issues time-based ids so canonical ids sort roughly by
// the order the relay accepted them.
func newCanonicalID() (string, error) {
	id, err := uuid.NewUUID()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Run starts the hub's main event loop and blocks until ctx is cancelled.
// This should be called in a goroutine: go hub.Run(ctx)
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case req := <-h.inbound:
			h.dispatch(req)

		case expiry := <-h.typingExpired:
			h.handleTypingExpired(expiry)
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// ClientCount returns the number of registered connections. Safe to call
// from any goroutine.
func (h *Hub) ClientCount() int {
	return int(h.clientCount.Load())
}

// Stats exposes the message counters fed by this hub.
func (h *Hub) Stats() *services.StatsService {
	return h.stats
}

// registerClient adds a client, hands it the presence snapshot and tells
// everyone else it arrived.
func (h *Hub) registerClient(client *Client) {
	if client == nil {
		log.Printf("[Hub] Received nil client registration; skipping")
		return
	}
	if h.clients[client] {
		return
	}

	h.clients[client] = true
	h.clientCount.Store(int64(len(h.clients)))
	log.Printf("[Hub] Client %s connected from %s (total: %d)", client.ID, client.addr, len(h.clients))

	peers := make([]string, 0, len(h.clients))
	for c := range h.clients {
		peers = append(peers, c.ID)
	}
	h.sendTo(client, models.EventSessionInfo, models.SessionInfo{SelfID: client.ID, Peers: peers})
	h.broadcast(client, models.EventPeerConnected, models.PeerEvent{PeerID: client.ID})
}

// unregisterClient removes a client, cancels its typing timer and tells
// the remaining peers. Unknown clients are ignored so both pumps can
// report the same disconnect.
func (h *Hub) unregisterClient(client *Client) {
	if !h.removeClient(client) {
		return
	}
	log.Printf("[Hub] Client %s disconnected (remaining: %d)", client.ID, len(h.clients))
	h.broadcast(nil, models.EventPeerDisconnected, models.PeerEvent{PeerID: client.ID})
}

func (h *Hub) removeClient(client *Client) bool {
	if client == nil || !h.clients[client] {
		return false
	}
	delete(h.clients, client)
	h.clientCount.Store(int64(len(h.clients)))
	h.cancelTyping(client)
	close(client.send)
	return true
}

// dispatch routes a decoded client request to its handler.
func (h *Hub) dispatch(req *request) {
	if !h.clients[req.client] {
		// the connection was dropped while this frame was in flight
		return
	}

	switch req.kind {
	case models.EventMessageSend:
		h.handleMessageSend(req.client, req.message)
	case models.EventTypingStart:
		h.handleTyping(req.client)
	case models.EventEmphasizeRequest:
		h.handleEmphasize(req.client)
	default:
		log.Printf("[Hub] Unhandled event %q from %s", req.kind, req.client.ID)
	}
}

// handleMessageSend assigns the canonical id, fans the message out, then
// acknowledges the author. The acknowledgement is queued after every
// peer's copy so no peer can reference the message before its canonical
// id exists on the author's side too.
func (h *Hub) handleMessageSend(author *Client, msg models.MessageSend) {
	canonicalID, err := h.canonicalID()
	if err != nil {
		log.Printf("[Hub] Failed to generate canonical id for %s: %v", author.ID, err)
		return
	}
	h.stats.IncrementMessageCount()

	log.Printf("[Hub] Message %s from %s assigned canonical id %s", msg.ProvisionalID, author.ID, canonicalID)
	h.broadcast(author, models.EventMessageBroadcast, models.MessageBroadcast{
		Body:        msg.Body,
		From:        author.ID,
		CanonicalID: canonicalID,
	})
	if !h.clients[author] {
		// dropped as a slow consumer during the fan-out
		return
	}
	h.sendTo(author, models.EventMessageIDAssigned, models.MessageIDAssigned{
		ProvisionalID: msg.ProvisionalID,
		CanonicalID:   canonicalID,
	})

	// sending a message ends typing
	h.cancelTyping(author)
	h.broadcast(author, models.EventTypingStop, models.Typing{UserID: author.ID})
}

func (h *Hub) handleTyping(client *Client) {
	h.armTyping(client)
	h.broadcast(client, models.EventTypingStart, models.Typing{UserID: client.ID})
}

// handleEmphasize broadcasts the requester's connection id as the message
// reference. Escalation only ever targets the requester's own latest
// message, so receivers resolve the id against that peer.
// TODO: carry the clicked message's canonical id once clients send it and
// receivers no longer need the peer fallback.
func (h *Hub) handleEmphasize(client *Client) {
	log.Printf("[Hub] Emphasize requested by %s", client.ID)
	h.broadcast(client, models.EventEmphasizeBroadcast, models.Emphasize{ID: client.ID})
}

// broadcast sends an event to every client except sender. Clients whose
// queue is full are dropped once the fan-out is complete.
func (h *Hub) broadcast(sender *Client, eventType models.EventType, payload any) {
	frame, err := models.Encode(eventType, payload)
	if err != nil {
		log.Printf("[Hub] Failed to encode %s: %v", eventType, err)
		return
	}

	var failed []*Client
	for client := range h.clients {
		if client == sender {
			continue
		}
		if !h.enqueue(client, frame) {
			failed = append(failed, client)
		}
	}
	h.dropSlowClients(failed)
}

// sendTo queues an event for a single client. Clients that are no longer
// registered are skipped.
func (h *Hub) sendTo(client *Client, eventType models.EventType, payload any) {
	if !h.clients[client] {
		return
	}
	frame, err := models.Encode(eventType, payload)
	if err != nil {
		log.Printf("[Hub] Failed to encode %s: %v", eventType, err)
		return
	}
	if !h.enqueue(client, frame) {
		h.dropSlowClients([]*Client{client})
	}
}

// enqueue reports false if the client's queue is full. A client that was
// already removed has a closed queue and is never written to.
func (h *Hub) enqueue(client *Client, frame []byte) bool {
	if !h.clients[client] {
		return false
	}
	select {
	case client.send <- frame:
		return true
	default:
		return false
	}
}

// dropSlowClients disconnects clients whose send buffer overflowed. The
// resulting peer-disconnected broadcast may overflow further clients,
// which are dropped the same way.
func (h *Hub) dropSlowClients(clients []*Client) {
	for _, client := range clients {
		if !h.removeClient(client) {
			continue
		}
		log.Printf("[Hub] Client %s removed due to full send buffer", client.ID)
		h.broadcast(nil, models.EventPeerDisconnected, models.PeerEvent{PeerID: client.ID})
	}
}

// shutdown closes every send queue so the write pumps hang up.
func (h *Hub) shutdown() {
	log.Printf("[Hub] Shutting down %d client connections", len(h.clients))
	for client := range h.clients {
		h.removeClient(client)
	}
}

// submit hands a request from a pump to the hub. It gives up once the hub
// has stopped.
func (h *Hub) submit(req *request) bool {
	select {
	case h.inbound <- req:
		return true
	case <-h.done:
		return false
	}
}

// Register adds a client to the hub. It returns false if the hub has
// already stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
