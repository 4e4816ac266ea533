package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/adi-253/Talkie/relay/internal/websocket"
)

// StatsHandler serves the relay's status endpoints.
type StatsHandler struct {
	hub *websocket.Hub
}

// NewStatsHandler creates a new StatsHandler instance.
func NewStatsHandler(hub *websocket.Hub) *StatsHandler {
	return &StatsHandler{hub: hub}
}

// StatsResponse is the body of the stats endpoint.
type StatsResponse struct {
	MessageCount uint64    `json:"messageCount"`
	LastRestart  time.Time `json:"lastRestart"`
	Summary      string    `json:"summary"`
}

// GetStats handles GET /api/v0/stats
// Returns how many messages went through the relay since it started.
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := h.hub.Stats().GetStats()
	writeJSON(w, http.StatusOK, StatsResponse{
		MessageCount: stats.MessageCount,
		LastRestart:  stats.LastRestart,
		Summary:      stats.Summary(),
	})
}

// writeJSON is a helper function to write JSON responses.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[Stats] Failed to write response: %v", err)
	}
}
