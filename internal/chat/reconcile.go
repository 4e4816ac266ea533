package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrUnknownReference is returned when an event names a message or
	// peer this client has no record of. Callers treat it as a no-op.
	ErrUnknownReference = errors.New("unknown reference")

	// ErrIdentityConflict is returned when a canonical id is already used
	// by a different message.
	ErrIdentityConflict = errors.New("canonical id already in use")

	// ErrEmptyMessage is returned when asked to send a blank message.
	ErrEmptyMessage = errors.New("empty message")
)

// Emphasis is the highlight state of a message.
type Emphasis int

const (
	EmphasisNone Emphasis = iota
	// EmphasisLocal is the short-lived highlight of a provisional message
	EmphasisLocal
	// EmphasisShared is the persistent highlight every peer applies
	EmphasisShared
)

func (e Emphasis) String() string {
	switch e {
	case EmphasisLocal:
		return "local"
	case EmphasisShared:
		return "shared"
	default:
		return "none"
	}
}

// Message is one rendered chat message.
type Message struct {
	Address  Address
	Body     string
	From     string
	Own      bool
	Emphasis Emphasis
}

// ID returns the id the message is currently addressed by.
func (m Message) ID() string { return m.Address.ID() }

// Reconciler stores messages by their current address and performs the
// provisional to canonical transition for messages this client authored.
// It is not safe for concurrent use; Session serializes access.
type Reconciler struct {
	byID  map[string]*Message
	order []*Message

	// reconciled remembers provisional -> canonical pairs already applied
	// so a repeated notice is recognised
	reconciled map[string]string

	newID func() string
}

// NewReconciler creates an empty Reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{
		byID:       make(map[string]*Message),
		reconciled: make(map[string]string),
		newID:      uuid.NewString,
	}
}

// AddOwn stores a message authored locally under a fresh provisional id.
func (r *Reconciler) AddOwn(body, from string) (Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Message{}, ErrEmptyMessage
	}
	id := r.newID()
	for r.byID[id] != nil {
		id = r.newID()
	}
	m := &Message{
		Address: Provisional(id),
		Body:    body,
		From:    from,
		Own:     true,
	}
	r.insert(m)
	return *m, nil
}

// AddRemote stores a peer's message under its canonical id. It returns
// false if a message with that id already exists.
func (r *Reconciler) AddRemote(body, from, canonicalID string) (Message, bool) {
	if existing, ok := r.byID[canonicalID]; ok {
		return *existing, false
	}
	m := &Message{
		Address: Reconciled(canonicalID),
		Body:    body,
		From:    from,
	}
	r.insert(m)
	return *m, true
}

func (r *Reconciler) insert(m *Message) {
	r.byID[m.ID()] = m
	r.order = append(r.order, m)
}

// Reconcile re-addresses an own provisional message to its canonical id.
// It reports whether anything changed: a repeated notice for a pair that
// was already applied returns false and no error.
func (r *Reconciler) Reconcile(provisionalID, canonicalID string) (bool, error) {
	if prev, ok := r.reconciled[provisionalID]; ok {
		if prev == canonicalID {
			return false, nil
		}
		return false, fmt.Errorf("%w: %s already reconciled to %s, not %s", ErrIdentityConflict, provisionalID, prev, canonicalID)
	}

	m, ok := r.byID[provisionalID]
	if !ok || m.Address.IsReconciled() || !m.Own {
		return false, fmt.Errorf("%w: message %s", ErrUnknownReference, provisionalID)
	}
	if _, taken := r.byID[canonicalID]; taken {
		return false, fmt.Errorf("%w: %s", ErrIdentityConflict, canonicalID)
	}

	delete(r.byID, provisionalID)
	m.Address = Reconciled(canonicalID)
	r.byID[canonicalID] = m
	r.reconciled[provisionalID] = canonicalID
	return true, nil
}

// Lookup finds a message by its current address. A provisional id stops
// resolving once the message has been reconciled.
func (r *Reconciler) Lookup(id string) (Message, bool) {
	m, ok := r.byID[id]
	if !ok {
		return Message{}, false
	}
	return *m, true
}

// LatestFrom returns the most recent message authored by peer.
func (r *Reconciler) LatestFrom(peer string) (Message, bool) {
	for i := len(r.order) - 1; i >= 0; i-- {
		if m := r.order[i]; m.From == peer && !m.Own {
			return *m, true
		}
	}
	return Message{}, false
}

// SetEmphasis changes the highlight of the message addressed by id.
func (r *Reconciler) SetEmphasis(id string, e Emphasis) bool {
	m, ok := r.byID[id]
	if !ok || m.Emphasis == e {
		return false
	}
	m.Emphasis = e
	return true
}

// Messages returns every message in the order it was added.
func (r *Reconciler) Messages() []Message {
	out := make([]Message, len(r.order))
	for i, m := range r.order {
		out[i] = *m
	}
	return out
}
