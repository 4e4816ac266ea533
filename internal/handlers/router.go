package handlers

import (
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/adi-253/Talkie/relay/internal/config"
	"github.com/adi-253/Talkie/relay/internal/websocket"
)

// NewRouter wires the relay's HTTP surface: the WebSocket endpoint, the
// health and stats endpoints and, when configured, the client bundle.
func NewRouter(cfg *config.Config, hub *websocket.Hub) http.Handler {
	statsHandler := NewStatsHandler(hub)
	wsHandler := websocket.NewHandler(hub)

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	log.Printf("CORS allowed origins: %v", cfg.CORSOrigins)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", statsHandler.HealthCheck)
	r.Get("/ws", wsHandler.ServeWS)

	r.Route("/api/v0", func(r chi.Router) {
		r.Get("/stats", statsHandler.GetStats)
		// legacy path kept for older clients
		r.Get("/potatoes", statsHandler.GetStats)
	})

	if dir := cfg.StaticDir; dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			log.Printf("Serving client bundle from %s", dir)
			r.Handle("/*", http.FileServer(http.Dir(dir)))
		} else {
			log.Printf("Static directory %q not found, client bundle disabled", dir)
		}
	}

	return r
}
