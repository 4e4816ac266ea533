package handlers

import (
	"net/http"
)

// HealthResponse represents the health check response structure.
type HealthResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	Connections int    `json:"connections"`
}

// HealthCheck handles GET /health
// Returns the relay's health status for monitoring and load balancer checks.
func (h *StatsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:      "ok",
		Message:     "Relay is running",
		Connections: h.hub.ClientCount(),
	}
	writeJSON(w, http.StatusOK, response)
}
