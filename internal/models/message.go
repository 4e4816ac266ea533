package models

import (
	"fmt"
	"strings"
)

// MessageSend is sent by a client when it posts a new message. The message
// has already been rendered locally under ProvisionalID.
type MessageSend struct {
	// Body is the message text
	Body string `json:"body"`

	// ProvisionalID is generated by the sending client and is only
	// meaningful to that client
	ProvisionalID string `json:"provisionalId"`
}

// Validate reports ErrMalformedPayload when a required field is missing.
func (m MessageSend) Validate() error {
	if strings.TrimSpace(m.Body) == "" {
		return fmt.Errorf("%w: empty body", ErrMalformedPayload)
	}
	if m.ProvisionalID == "" {
		return fmt.Errorf("%w: missing provisional id", ErrMalformedPayload)
	}
	return nil
}

// MessageBroadcast is the relay's fan-out of an accepted message to every
// peer except its author.
type MessageBroadcast struct {
	Body string `json:"body"`

	// From is the author's connection id
	From string `json:"from"`

	// CanonicalID is assigned by the relay and valid on every peer
	CanonicalID string `json:"canonicalId"`
}

// MessageIDAssigned tells the author which canonical id replaced its
// provisional one.
type MessageIDAssigned struct {
	ProvisionalID string `json:"provisionalId"`
	CanonicalID   string `json:"canonicalId"`
}

// Emphasize is the payload of emphasize-broadcast. ID carries the
// requesting connection's id rather than a message id; receivers resolve
// it to that peer's most recent message.
type Emphasize struct {
	ID string `json:"id"`
}
