package websocket

import (
	"github.com/adi-253/Talkie/relay/internal/clock"
	"github.com/adi-253/Talkie/relay/internal/models"
)

// typingSlot is the single pending typing-stop timer for a connection.
// generation comes from a hub-wide counter that is never reused, so an
// expiry that raced with a refresh or a cancel is recognised as stale and
// ignored even after the slot was deleted and re-created.
type typingSlot struct {
	timer      *clock.Timer
	generation uint64
}

type typingExpiry struct {
	client     *Client
	generation uint64
}

// armTyping starts or refreshes the client's typing-stop timer. The
// previous timer is always stopped first.
func (h *Hub) armTyping(client *Client) {
	slot, ok := h.typing[client]
	if !ok {
		slot = &typingSlot{}
		h.typing[client] = slot
	}
	if slot.timer != nil {
		slot.timer.Stop()
	}
	h.typingGeneration++
	slot.generation = h.typingGeneration

	expiry := typingExpiry{client: client, generation: slot.generation}
	slot.timer = h.clock.AfterFunc(h.typingDebounce, func() {
		select {
		case h.typingExpired <- expiry:
		case <-h.done:
		}
	})
}

// cancelTyping stops the client's timer without announcing anything.
func (h *Hub) cancelTyping(client *Client) {
	slot, ok := h.typing[client]
	if !ok {
		return
	}
	slot.timer.Stop()
	delete(h.typing, client)
}

// handleTypingExpired broadcasts typing-stop for a timer that was not
// refreshed or cancelled in the meantime.
func (h *Hub) handleTypingExpired(expiry typingExpiry) {
	slot, ok := h.typing[expiry.client]
	if !ok || slot.generation != expiry.generation {
		return
	}
	delete(h.typing, expiry.client)
	h.broadcast(expiry.client, models.EventTypingStop, models.Typing{UserID: expiry.client.ID})
}
