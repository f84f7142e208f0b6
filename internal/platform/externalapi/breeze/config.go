// Package breeze provides the ICICI Direct Breeze client: REST for session
// validation and historical bars, websocket for the live tick stream.
package breeze

import (
	"os"
	"time"
)

// Config holds configuration for the Breeze API client.
type Config struct {
	BaseURL   string        // REST base URL (e.g., "https://api.icicidirect.com/breezeapi/api/v2")
	StreamURL string        // Websocket URL for the live tick feed
	Timeout   time.Duration // HTTP request timeout
}

// LoadConfig loads Breeze configuration from environment variables.
func LoadConfig() Config {
	cfg := Config{
		BaseURL:   os.Getenv("BREEZE_BASE_URL"),
		StreamURL: os.Getenv("BREEZE_STREAM_URL"),
		Timeout:   15 * time.Second,
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.icicidirect.com/breezeapi/api/v2"
	}
	if cfg.StreamURL == "" {
		cfg.StreamURL = "wss://livestream.icicidirect.com/stream"
	}
	return cfg
}
