package chat

// Address is the identity a message is currently known by. It is either
// Provisional (only this client knows it) or Reconciled (assigned by the
// relay and valid on every peer). The set of implementations is closed.
type Address interface {
	ID() string
	IsReconciled() bool
	address()
}

// Provisional is a locally generated id used before the relay round trip.
type Provisional string

func (p Provisional) ID() string       { return string(p) }
func (Provisional) IsReconciled() bool { return false }
func (Provisional) address()           {}

// Reconciled is the canonical id assigned by the relay.
type Reconciled string

func (r Reconciled) ID() string       { return string(r) }
func (Reconciled) IsReconciled() bool { return true }
func (Reconciled) address()           {}
