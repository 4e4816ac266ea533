package chat

import (
	"fmt"
	"math/rand/v2"
	"sort"
)

// Peer is another connection in the session as seen by this client.
type Peer struct {
	ID string
	// Color is a display token picked locally when the peer first appears
	Color  string
	Typing bool
}

// Presence mirrors the relay's connected set, minus this client.
type Presence struct {
	peers map[string]*Peer
	color func() string
}

// NewPresence creates an empty presence set.
func NewPresence() *Presence {
	return &Presence{
		peers: make(map[string]*Peer),
		color: randomColor,
	}
}

func randomColor() string {
	return fmt.Sprintf("#%06x", rand.IntN(0x1000000))
}

// Seed replaces the set with the relay snapshot, skipping self. It returns
// the ids that were present before but are not any more.
func (p *Presence) Seed(self string, ids []string) []string {
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || id == self {
			continue
		}
		keep[id] = true
		p.Add(id)
	}

	var dropped []string
	for id := range p.peers {
		if !keep[id] {
			delete(p.peers, id)
			dropped = append(dropped, id)
		}
	}
	sort.Strings(dropped)
	return dropped
}

// Add inserts a peer. It is a no-op returning false if already present.
func (p *Presence) Add(id string) bool {
	if _, ok := p.peers[id]; ok {
		return false
	}
	p.peers[id] = &Peer{ID: id, Color: p.color()}
	return true
}

// Remove deletes a peer. It is a no-op returning false if absent.
func (p *Presence) Remove(id string) bool {
	if _, ok := p.peers[id]; !ok {
		return false
	}
	delete(p.peers, id)
	return true
}

// Has reports whether id is a known peer.
func (p *Presence) Has(id string) bool {
	_, ok := p.peers[id]
	return ok
}

// Peers returns the peers sorted by id. Typing is left false; Session
// fills it in from the typing mirror.
func (p *Presence) Peers() []Peer {
	out := make([]Peer, 0, len(p.peers))
	for _, peer := range p.peers {
		out = append(out, *peer)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of peers.
func (p *Presence) Len() int {
	return len(p.peers)
}
