package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventType names one entry of the wire vocabulary shared by the relay and
// its clients.
type EventType string

const (
	EventSessionInfo        EventType = "session-info"
	EventPeerConnected      EventType = "peer-connected"
	EventPeerDisconnected   EventType = "peer-disconnected"
	EventMessageSend        EventType = "message-send"
	EventMessageBroadcast   EventType = "message-broadcast"
	EventMessageIDAssigned  EventType = "message-id-assigned"
	EventTypingStart        EventType = "typing-start"
	EventTypingStop         EventType = "typing-stop"
	EventEmphasizeRequest   EventType = "emphasize-request"
	EventEmphasizeBroadcast EventType = "emphasize-broadcast"
)

// ErrMalformedPayload is returned when a frame cannot be decoded or lacks a
// required field.
var ErrMalformedPayload = errors.New("malformed payload")

// Envelope is the format of every WebSocket frame in both directions.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope wraps payload under the given event type. A nil payload
// produces an envelope without a payload field.
func NewEnvelope(eventType EventType, payload any) (Envelope, error) {
	env := Envelope{Type: eventType}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	env.Payload = raw
	return env, nil
}

// Encode marshals an event into a single text frame.
func Encode(eventType EventType, payload any) ([]byte, error) {
	env, err := NewEnvelope(eventType, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// DecodeEnvelope parses a raw frame into its envelope. A frame without a
// type is malformed.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing event type", ErrMalformedPayload)
	}
	return env, nil
}

// DecodePayload unmarshals the envelope payload into target. An absent
// payload leaves target at its zero value.
func (e Envelope) DecodePayload(target any) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, e.Type, err)
	}
	return nil
}
