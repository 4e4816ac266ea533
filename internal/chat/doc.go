// Package chat is the client side of the relay protocol. A Session keeps a
// local mirror of presence, typing and messages, renders its own messages
// optimistically under a provisional id, and re-addresses them once the
// relay reports the canonical id.
//
// All state transitions for one incoming event or one local action happen
// under a single lock, so a reconciliation notice is never half applied
// while a click or a typing expiry is being processed.
package chat
