package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment configuration values for the relay.
// Values come from the process environment, optionally seeded from a .env
// file at startup.
type Config struct {
	// ServerPort is the port the HTTP server listens on
	ServerPort string `env:"PORT" envDefault:"8080"`

	// CORSOrigins lists the origins allowed to call the HTTP API
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://localhost:3000"`

	// StaticDir is the directory holding the client bundle. Empty disables
	// static serving.
	StaticDir string `env:"STATIC_DIR"`

	// TypingDebounce is how long a connection may stay silent before the
	// relay announces that it stopped typing
	TypingDebounce time.Duration `env:"TYPING_DEBOUNCE" envDefault:"1s"`

	// SendBuffer is the per-connection outbound queue length. A peer whose
	// queue fills up is disconnected.
	SendBuffer int `env:"SEND_BUFFER" envDefault:"256"`

	// MaxMessageSize caps a single inbound frame
	MaxMessageSize int64 `env:"MAX_MESSAGE_SIZE" envDefault:"65536"`
}

// Load reads environment variables and returns a populated Config struct.
// It will load from a .env file if present, then read from environment
// variables, falling back to defaults for anything unset.
func Load() (*Config, error) {
	// Not an error if .env doesn't exist; production uses real env vars
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	return Parse()
}

// Parse builds a Config from the current environment without touching
// .env files.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the relay cannot run with.
func (c *Config) Validate() error {
	if c.ServerPort == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if c.TypingDebounce <= 0 {
		return fmt.Errorf("TYPING_DEBOUNCE must be positive, got %s", c.TypingDebounce)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("SEND_BUFFER must be positive, got %d", c.SendBuffer)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("MAX_MESSAGE_SIZE must be positive, got %d", c.MaxMessageSize)
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.ServerPort
}
