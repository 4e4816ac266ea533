package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/adi-253/Talkie/relay/internal/models"
)

const writeWait = 10 * time.Second

// Conn is a client connection to the relay. It implements Sender.
type Conn struct {
	ws *websocket.Conn

	// gorilla allows one concurrent writer
	writeMu sync.Mutex
}

// Dial connects to the relay's WebSocket endpoint, e.g.
// ws://localhost:8080/ws.
func Dial(ctx context.Context, url string) (*Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Conn{ws: ws}, nil
}

// Send writes one event as a text frame.
func (c *Conn) Send(env models.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(env)
}

// Run feeds every frame from the relay into session until ctx is
// cancelled or the connection drops. Frames that are malformed or refer to
// unknown messages are logged and skipped.
func (c *Conn) Run(ctx context.Context, session *Session) error {
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read from relay: %w", err)
		}

		if err := session.ApplyFrame(raw); err != nil {
			switch {
			case errors.Is(err, ErrUnknownReference):
				log.Printf("[Chat] Ignoring event: %v", err)
			default:
				log.Printf("[Chat] Dropping frame: %v", err)
			}
		}
	}
}

// Close sends a close frame and closes the connection.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.ws.Close()
}
