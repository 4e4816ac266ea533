package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/adi-253/Talkie/relay/internal/clock"
)

// StatsService counts accepted chat messages since the process started.
// Nothing is persisted; a restart resets the counter.
type StatsService struct {
	mu           sync.RWMutex
	messageCount uint64
	lastRestart  time.Time
}

// Stats is a point-in-time copy of the counters.
type Stats struct {
	MessageCount uint64    `json:"messageCount"`
	LastRestart  time.Time `json:"lastRestart"`
}

// NewStatsService creates a StatsService whose restart time is now.
func NewStatsService(c clock.Clock) *StatsService {
	return &StatsService{lastRestart: c.Now().UTC()}
}

// IncrementMessageCount records one accepted message.
func (s *StatsService) IncrementMessageCount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageCount++
}

// GetStats returns the current counters.
func (s *StatsService) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		MessageCount: s.messageCount,
		LastRestart:  s.lastRestart,
	}
}

// Summary renders the counters as a sentence.
func (st Stats) Summary() string {
	return fmt.Sprintf("%d messages exchanged since %s", st.MessageCount, st.LastRestart.Format(time.RFC1123))
}
