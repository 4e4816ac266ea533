package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/adi-253/Talkie/relay/internal/clock"
	"github.com/adi-253/Talkie/relay/internal/config"
	"github.com/adi-253/Talkie/relay/internal/handlers"
	"github.com/adi-253/Talkie/relay/internal/services"
	"github.com/adi-253/Talkie/relay/internal/websocket"
)

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override the environment
	pflag.StringVar(&cfg.ServerPort, "port", cfg.ServerPort, "port to listen on")
	pflag.StringVar(&cfg.StaticDir, "static-dir", cfg.StaticDir, "directory holding the client bundle")
	pflag.Parse()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start the hub that owns every connection
	realClock := clock.Real()
	stats := services.NewStatsService(realClock)
	hub := websocket.NewHub(stats, websocket.HubConfig{
		TypingDebounce: cfg.TypingDebounce,
		SendBuffer:     cfg.SendBuffer,
		MaxMessageSize: cfg.MaxMessageSize,
		Clock:          realClock,
	})
	go hub.Run(ctx)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handlers.NewRouter(cfg, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("🚀 Relay starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
	<-hub.Done()
}
