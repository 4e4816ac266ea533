package chat

import (
	"sort"
	"time"

	"github.com/adi-253/Talkie/relay/internal/clock"
)

// TypingMirror tracks which peers are typing. A peer goes Idle to Typing
// on a typing signal, stays Typing (with its expiry pushed back) on
// repeated signals, and returns to Idle on an explicit stop or when the
// expiry passes without a refresh.
type TypingMirror struct {
	clock  clock.Clock
	expiry time.Duration
	slots  map[string]*typingSlot

	// generation is shared by all slots and never reused, so an expiry
	// from a deleted slot cannot match a later one
	generation uint64

	// onExpire is called from the timer goroutine; Session routes it back
	// through its lock into Expire.
	onExpire func(peerID string, generation uint64)
}

type typingSlot struct {
	timer      *clock.Timer
	generation uint64
}

// NewTypingMirror creates a mirror. A non-positive expiry disables the
// local fallback timer, leaving stops entirely to the relay.
func NewTypingMirror(c clock.Clock, expiry time.Duration, onExpire func(peerID string, generation uint64)) *TypingMirror {
	return &TypingMirror{
		clock:    c,
		expiry:   expiry,
		slots:    make(map[string]*typingSlot),
		onExpire: onExpire,
	}
}

// Start marks peer as typing and re-arms its expiry. It returns true on
// the Idle to Typing transition only.
func (t *TypingMirror) Start(peerID string) bool {
	slot, typing := t.slots[peerID]
	if !typing {
		slot = &typingSlot{}
		t.slots[peerID] = slot
	}
	if slot.timer != nil {
		slot.timer.Stop()
		slot.timer = nil
	}
	t.generation++
	slot.generation = t.generation

	if t.expiry > 0 && t.onExpire != nil {
		generation := slot.generation
		slot.timer = t.clock.AfterFunc(t.expiry, func() {
			t.onExpire(peerID, generation)
		})
	}
	return !typing
}

// Stop returns peer to Idle. It reports whether the peer was typing.
func (t *TypingMirror) Stop(peerID string) bool {
	slot, ok := t.slots[peerID]
	if !ok {
		return false
	}
	if slot.timer != nil {
		slot.timer.Stop()
	}
	delete(t.slots, peerID)
	return true
}

// Expire handles a fired timer. Timers that were superseded by a refresh
// or a stop are ignored.
func (t *TypingMirror) Expire(peerID string, generation uint64) bool {
	slot, ok := t.slots[peerID]
	if !ok || slot.generation != generation {
		return false
	}
	delete(t.slots, peerID)
	return true
}

// IsTyping reports whether peer is currently typing.
func (t *TypingMirror) IsTyping(peerID string) bool {
	_, ok := t.slots[peerID]
	return ok
}

// Typing returns the ids of typing peers, sorted.
func (t *TypingMirror) Typing() []string {
	out := make([]string, 0, len(t.slots))
	for id := range t.slots {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Reset stops every timer and clears all typing state.
func (t *TypingMirror) Reset() {
	for id := range t.slots {
		t.Stop(id)
	}
}
