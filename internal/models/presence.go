package models

// SessionInfo is the snapshot sent to a connection right after it joins.
type SessionInfo struct {
	// SelfID is the id the relay assigned to the receiving connection
	SelfID string `json:"selfId"`

	// Peers lists every connected id, including SelfID
	Peers []string `json:"peers"`
}

// PeerEvent announces that a peer joined or left.
type PeerEvent struct {
	PeerID string `json:"peerId"`
}

// Typing carries typing-start and typing-stop. Clients may omit UserID;
// the relay always fills it with the sender's connection id.
type Typing struct {
	UserID string `json:"userId,omitempty"`
}
