package chat

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/adi-253/Talkie/relay/internal/clock"
	"github.com/adi-253/Talkie/relay/internal/models"
)

// Sender delivers an event to the relay.
type Sender interface {
	Send(env models.Envelope) error
}

// Config tunes the client side of the protocol. Zero fields take the
// defaults from DefaultConfig.
type Config struct {
	// EmphasisThreshold is the number of clicks that makes a burst
	EmphasisThreshold int

	// EmphasisWindow is the longest gap allowed between clicks in a burst
	EmphasisWindow time.Duration

	// LocalHighlight is how long the highlight of a provisional message
	// lasts before it reverts
	LocalHighlight time.Duration

	// TypingExpiry clears a peer's typing flag if the relay's stop never
	// arrives. Negative disables it.
	TypingExpiry time.Duration

	// TypingThrottle suppresses outgoing typing signals sent closer
	// together than this. Zero sends one per keystroke.
	TypingThrottle time.Duration

	Clock clock.Clock
}

// DefaultConfig returns the settings the browser client used.
func DefaultConfig() Config {
	return Config{
		EmphasisThreshold: 5,
		EmphasisWindow:    300 * time.Millisecond,
		LocalHighlight:    250 * time.Millisecond,
		TypingExpiry:      3 * time.Second,
		Clock:             clock.Real(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.EmphasisThreshold <= 0 {
		c.EmphasisThreshold = def.EmphasisThreshold
	}
	if c.EmphasisWindow <= 0 {
		c.EmphasisWindow = def.EmphasisWindow
	}
	if c.LocalHighlight <= 0 {
		c.LocalHighlight = def.LocalHighlight
	}
	if c.TypingExpiry == 0 {
		c.TypingExpiry = def.TypingExpiry
	}
	if c.Clock == nil {
		c.Clock = def.Clock
	}
	return c
}

// UpdateKind says which part of the session changed.
type UpdateKind int

const (
	UpdateSession UpdateKind = iota
	UpdatePeerJoined
	UpdatePeerLeft
	UpdateTyping
	UpdateMessage
	UpdateReconciled
	UpdateEmphasis
)

// Update describes one state change, for re-rendering.
type Update struct {
	Kind UpdateKind
	// PeerID is set for presence and typing updates
	PeerID string
	// MessageID is the message's address after the change
	MessageID string
}

// ClickOutcome is what a click on a message led to.
type ClickOutcome int

const (
	// ClickIgnored: the message is not the user's own
	ClickIgnored ClickOutcome = iota
	// ClickCounted: the click joined a burst that has not completed
	ClickCounted
	// ClickLocalHighlight: a burst on a provisional message, shown only here
	ClickLocalHighlight
	// ClickEscalated: a burst on a reconciled message, sent to every peer
	ClickEscalated
)

// Session is one client's view of the chat.
type Session struct {
	mu sync.Mutex

	cfg      Config
	sender   Sender
	listener func(Update)

	selfID   string
	presence *Presence
	typing   *TypingMirror
	messages *Reconciler
	gesture  *Gesture

	// highlights holds the revert timers of local highlights, keyed by
	// current message address
	highlights map[string]*highlight

	lastTypingSent time.Time
}

type highlight struct {
	messageID string
	timer     *clock.Timer
}

// NewSession creates a session that talks to the relay through sender.
func NewSession(sender Sender, cfg Config) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		cfg:        cfg,
		sender:     sender,
		presence:   NewPresence(),
		messages:   NewReconciler(),
		gesture:    NewGesture(cfg.EmphasisThreshold, cfg.EmphasisWindow),
		highlights: make(map[string]*highlight),
	}
	s.typing = NewTypingMirror(cfg.Clock, cfg.TypingExpiry, s.expireTyping)
	return s
}

// OnUpdate registers a function called after every state change. It runs
// outside the session lock and may read the session.
func (s *Session) OnUpdate(fn func(Update)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = fn
}

func (s *Session) notify(updates []Update) {
	s.mu.Lock()
	fn := s.listener
	s.mu.Unlock()
	if fn == nil {
		return
	}
	for _, u := range updates {
		fn(u)
	}
}

// ApplyFrame decodes a raw frame from the relay and applies it.
func (s *Session) ApplyFrame(raw []byte) error {
	env, err := models.DecodeEnvelope(raw)
	if err != nil {
		return err
	}
	return s.Apply(env)
}

// Apply applies one relay event atomically. ErrUnknownReference and
// models.ErrMalformedPayload are reported but leave the session unchanged.
func (s *Session) Apply(env models.Envelope) error {
	s.mu.Lock()
	updates, err := s.applyLocked(env)
	s.mu.Unlock()

	s.notify(updates)
	return err
}

func (s *Session) applyLocked(env models.Envelope) ([]Update, error) {
	switch env.Type {
	case models.EventSessionInfo:
		var info models.SessionInfo
		if err := env.DecodePayload(&info); err != nil {
			return nil, err
		}
		s.selfID = info.SelfID
		for _, gone := range s.presence.Seed(info.SelfID, info.Peers) {
			s.typing.Stop(gone)
		}
		return []Update{{Kind: UpdateSession}}, nil

	case models.EventPeerConnected:
		var ev models.PeerEvent
		if err := env.DecodePayload(&ev); err != nil {
			return nil, err
		}
		if ev.PeerID == "" || ev.PeerID == s.selfID || !s.presence.Add(ev.PeerID) {
			return nil, nil
		}
		return []Update{{Kind: UpdatePeerJoined, PeerID: ev.PeerID}}, nil

	case models.EventPeerDisconnected:
		var ev models.PeerEvent
		if err := env.DecodePayload(&ev); err != nil {
			return nil, err
		}
		s.typing.Stop(ev.PeerID)
		if !s.presence.Remove(ev.PeerID) {
			return nil, nil
		}
		return []Update{{Kind: UpdatePeerLeft, PeerID: ev.PeerID}}, nil

	case models.EventMessageBroadcast:
		var msg models.MessageBroadcast
		if err := env.DecodePayload(&msg); err != nil {
			return nil, err
		}
		if msg.CanonicalID == "" {
			return nil, fmt.Errorf("%w: broadcast without canonical id", models.ErrMalformedPayload)
		}
		if s.selfID != "" && msg.From == s.selfID {
			return nil, nil
		}
		if _, added := s.messages.AddRemote(msg.Body, msg.From, msg.CanonicalID); !added {
			return nil, nil
		}
		return []Update{{Kind: UpdateMessage, PeerID: msg.From, MessageID: msg.CanonicalID}}, nil

	case models.EventMessageIDAssigned:
		var ack models.MessageIDAssigned
		if err := env.DecodePayload(&ack); err != nil {
			return nil, err
		}
		changed, err := s.messages.Reconcile(ack.ProvisionalID, ack.CanonicalID)
		if err != nil || !changed {
			return nil, err
		}
		if h, ok := s.highlights[ack.ProvisionalID]; ok {
			delete(s.highlights, ack.ProvisionalID)
			h.messageID = ack.CanonicalID
			s.highlights[ack.CanonicalID] = h
		}
		return []Update{{Kind: UpdateReconciled, MessageID: ack.CanonicalID}}, nil

	case models.EventTypingStart:
		var ev models.Typing
		if err := env.DecodePayload(&ev); err != nil {
			return nil, err
		}
		if !s.presence.Has(ev.UserID) {
			return nil, nil
		}
		if !s.typing.Start(ev.UserID) {
			return nil, nil
		}
		return []Update{{Kind: UpdateTyping, PeerID: ev.UserID}}, nil

	case models.EventTypingStop:
		var ev models.Typing
		if err := env.DecodePayload(&ev); err != nil {
			return nil, err
		}
		if !s.typing.Stop(ev.UserID) {
			return nil, nil
		}
		return []Update{{Kind: UpdateTyping, PeerID: ev.UserID}}, nil

	case models.EventEmphasizeBroadcast:
		var ev models.Emphasize
		if err := env.DecodePayload(&ev); err != nil {
			return nil, err
		}
		return s.applyEmphasisLocked(ev.ID)

	default:
		return nil, fmt.Errorf("%w: unexpected event %q from relay", models.ErrMalformedPayload, env.Type)
	}
}

// applyEmphasisLocked resolves the reference in an emphasize-broadcast.
// The relay sends the requesting peer's connection id, so a reference that
// is not a message address is taken to mean that peer's latest message.
func (s *Session) applyEmphasisLocked(ref string) ([]Update, error) {
	target, ok := s.messages.Lookup(ref)
	if !ok {
		target, ok = s.messages.LatestFrom(ref)
	}
	if !ok {
		return nil, fmt.Errorf("%w: emphasis target %s", ErrUnknownReference, ref)
	}
	s.cancelHighlightLocked(target.ID())
	if !s.messages.SetEmphasis(target.ID(), EmphasisShared) {
		return nil, nil
	}
	return []Update{{Kind: UpdateEmphasis, MessageID: target.ID()}}, nil
}

// SendMessage renders body immediately under a provisional id and sends
// it to the relay. The returned message is the optimistic local copy.
func (s *Session) SendMessage(body string) (Message, error) {
	s.mu.Lock()
	msg, err := s.messages.AddOwn(body, s.selfID)
	s.mu.Unlock()
	if err != nil {
		return Message{}, err
	}
	s.notify([]Update{{Kind: UpdateMessage, PeerID: msg.From, MessageID: msg.ID()}})

	env, err := models.NewEnvelope(models.EventMessageSend, models.MessageSend{
		Body:          msg.Body,
		ProvisionalID: msg.ID(),
	})
	if err != nil {
		return msg, err
	}
	if err := s.sender.Send(env); err != nil {
		return msg, fmt.Errorf("send message %s: %w", msg.ID(), err)
	}
	return msg, nil
}

// Keystroke reports a non-send key press, which signals typing to peers.
// With a TypingThrottle configured, signals closer together than the
// throttle are suppressed.
func (s *Session) Keystroke() error {
	s.mu.Lock()
	now := s.cfg.Clock.Now()
	if s.cfg.TypingThrottle > 0 && !s.lastTypingSent.IsZero() && now.Sub(s.lastTypingSent) < s.cfg.TypingThrottle {
		s.mu.Unlock()
		return nil
	}
	s.lastTypingSent = now
	s.mu.Unlock()

	env, err := models.NewEnvelope(models.EventTypingStart, nil)
	if err != nil {
		return err
	}
	if err := s.sender.Send(env); err != nil {
		return fmt.Errorf("send typing: %w", err)
	}
	return nil
}

// ClickMessage feeds a click on the message addressed by id into the
// emphasis gesture. The same completed burst has a different effect
// depending on whether the message has been reconciled yet: a provisional
// message has no id peers could resolve, so it only gets a short local
// highlight; a reconciled one is escalated to every peer and stays
// highlighted.
func (s *Session) ClickMessage(id string) (ClickOutcome, error) {
	s.mu.Lock()
	msg, ok := s.messages.Lookup(id)
	if !ok {
		s.mu.Unlock()
		return ClickIgnored, fmt.Errorf("%w: message %s", ErrUnknownReference, id)
	}
	if !msg.Own {
		s.mu.Unlock()
		return ClickIgnored, nil
	}
	if !s.gesture.Click(id, s.cfg.Clock.Now()) {
		s.mu.Unlock()
		return ClickCounted, nil
	}

	if !msg.Address.IsReconciled() {
		changed := s.startHighlightLocked(id)
		s.mu.Unlock()
		if changed {
			s.notify([]Update{{Kind: UpdateEmphasis, MessageID: id}})
		}
		return ClickLocalHighlight, nil
	}

	s.cancelHighlightLocked(id)
	changed := s.messages.SetEmphasis(id, EmphasisShared)
	s.mu.Unlock()
	if changed {
		s.notify([]Update{{Kind: UpdateEmphasis, MessageID: id}})
	}

	env, err := models.NewEnvelope(models.EventEmphasizeRequest, nil)
	if err != nil {
		return ClickEscalated, err
	}
	if err := s.sender.Send(env); err != nil {
		return ClickEscalated, fmt.Errorf("send emphasize request: %w", err)
	}
	return ClickEscalated, nil
}

// startHighlightLocked applies the local highlight and schedules its
// revert, replacing any revert already pending for the message.
func (s *Session) startHighlightLocked(id string) bool {
	s.cancelHighlightLocked(id)
	changed := s.messages.SetEmphasis(id, EmphasisLocal)

	h := &highlight{messageID: id}
	h.timer = s.cfg.Clock.AfterFunc(s.cfg.LocalHighlight, func() { s.revertHighlight(h) })
	s.highlights[id] = h
	return changed
}

func (s *Session) cancelHighlightLocked(id string) {
	if h, ok := s.highlights[id]; ok {
		h.timer.Stop()
		delete(s.highlights, id)
	}
}

func (s *Session) revertHighlight(h *highlight) {
	s.mu.Lock()
	if s.highlights[h.messageID] != h {
		s.mu.Unlock()
		return
	}
	delete(s.highlights, h.messageID)

	var changed bool
	if msg, ok := s.messages.Lookup(h.messageID); ok && msg.Emphasis == EmphasisLocal {
		changed = s.messages.SetEmphasis(h.messageID, EmphasisNone)
	}
	s.mu.Unlock()

	if changed {
		s.notify([]Update{{Kind: UpdateEmphasis, MessageID: h.messageID}})
	}
}

func (s *Session) expireTyping(peerID string, generation uint64) {
	s.mu.Lock()
	expired := s.typing.Expire(peerID, generation)
	s.mu.Unlock()

	if expired {
		log.Printf("[Chat] Typing indicator for %s expired without a stop", peerID)
		s.notify([]Update{{Kind: UpdateTyping, PeerID: peerID}})
	}
}

// SelfID returns the id the relay assigned to this client, or "" before
// the session-info event.
func (s *Session) SelfID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selfID
}

// Peers returns the other connected peers with their typing state.
func (s *Session) Peers() []Peer {
	s.mu.Lock()
	defer s.mu.Unlock()

	peers := s.presence.Peers()
	for i := range peers {
		peers[i].Typing = s.typing.IsTyping(peers[i].ID)
	}
	return peers
}

// IsTyping reports whether peer is shown as typing.
func (s *Session) IsTyping(peerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing.IsTyping(peerID)
}

// Message returns the message currently addressed by id.
func (s *Session) Message(id string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages.Lookup(id)
}

// Messages returns every message in display order.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages.Messages()
}
