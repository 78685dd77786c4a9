package tvremote

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// DefaultMaxPageLoadWait bounds the TV calendar navigation when no wait is configured.
const DefaultMaxPageLoadWait = 60 * time.Second

// Config holds the harness settings a Session reads.
// It is loaded once and never mutated afterwards.
type Config struct {
	// PairingCode is the long-lived backend pairing code. Empty disables
	// backend pairing scenarios.
	PairingCode string `env:"TVREMOTE_PAIRING_CODE"`

	// MaxPageLoadWait bounds the TV calendar page load.
	MaxPageLoadWait time.Duration `env:"TVREMOTE_MAX_PAGE_LOAD_WAIT" envDefault:"60s"`

	// AppURL is the base URL serving the TV and Remote pages.
	AppURL string `env:"TVREMOTE_APP_URL" envDefault:"http://localhost:8080"`

	// Headless controls whether browsers launch without a window.
	Headless bool `env:"TVREMOTE_HEADLESS" envDefault:"true"`
}

// DefaultConfig returns a configuration with backend pairing disabled.
func DefaultConfig() Config {
	return Config{
		MaxPageLoadWait: DefaultMaxPageLoadWait,
		AppURL:          "http://localhost:8080",
		Headless:        true,
	}
}

// LoadConfigFromEnv reads Config from TVREMOTE_* environment variables.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.MaxPageLoadWait <= 0 {
		cfg.MaxPageLoadWait = DefaultMaxPageLoadWait
	}
	return cfg, nil
}
