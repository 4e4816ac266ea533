package websocket

import (
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/adi-253/Talkie/relay/internal/models"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10
)

// Client represents a single WebSocket connection
type Client struct {
	hub *Hub

	// WebSocket connection
	conn *websocket.Conn

	// Buffered channel of outbound frames, closed by the hub on removal
	send chan []byte

	// ID is the connection identifier assigned by the relay
	ID string

	// remote address, for logging
	addr string
}

// NewClient creates a new Client instance
func NewClient(hub *Hub, conn *websocket.Conn, id, addr string) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, hub.sendBuffer),
		ID:   id,
		addr: addr,
	}
}

// request is a decoded client frame on its way to the hub.
type request struct {
	client  *Client
	kind    models.EventType
	message models.MessageSend
}

// parseRequest decodes a raw frame. Errors wrap models.ErrMalformedPayload.
func parseRequest(client *Client, raw []byte) (*request, error) {
	env, err := models.DecodeEnvelope(raw)
	if err != nil {
		return nil, err
	}

	req := &request{client: client, kind: env.Type}
	switch env.Type {
	case models.EventMessageSend:
		if err := env.DecodePayload(&req.message); err != nil {
			return nil, err
		}
		if err := req.message.Validate(); err != nil {
			return nil, err
		}
	case models.EventTypingStart, models.EventEmphasizeRequest:
		// the sender is implied by the connection
	default:
		return nil, fmt.Errorf("%w: unknown event type %q", models.ErrMalformedPayload, env.Type)
	}
	return req, nil
}

// ReadPump pumps frames from the WebSocket connection to the hub
// This runs in its own goroutine per client
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("[WebSocket] Read error from %s: %v", c.ID, err)
			}
			return
		}

		req, err := parseRequest(c, raw)
		if err != nil {
			// malformed frames are dropped; the connection stays open
			log.Printf("[WebSocket] Dropping frame from %s: %v", c.ID, err)
			continue
		}

		if !c.hub.submit(req) {
			return
		}
	}
}

// WritePump pumps frames from the hub to the WebSocket connection
// This runs in its own goroutine per client
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// Each event goes out as its own frame so clients can decode
			// frames independently
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Printf("[WebSocket] Write error to %s: %v", c.ID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
