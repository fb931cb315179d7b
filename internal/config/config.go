// Package config loads process configuration from the environment, with an
// optional .env file for local runs.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Identity and transport.
	BotID       string  `env:"BOT_ID"`
	BridgeURL   string  `env:"BRIDGE_URL" envDefault:"ws://127.0.0.1:3000/ws"`
	BridgeToken string  `env:"BRIDGE_TOKEN"`
	SendRate    float64 `env:"SEND_RATE" envDefault:"5"`

	// Dispatch.
	Prefix                  string        `env:"PREFIX" envDefault:"!"`
	AutoRead                bool          `env:"AUTO_READ" envDefault:"true"`
	DeleteCommandMessages   bool          `env:"DELETE_COMMAND_MESSAGES"`
	EventsAfterContinuation bool          `env:"EVENTS_AFTER_CONTINUATION"`
	ReplyTTL                time.Duration `env:"REPLY_TTL" envDefault:"10m"`
	ReactionTTL             time.Duration `env:"REACTION_TTL" envDefault:"5m"`

	// Access control. Admin and whitelist entries are numeric account IDs.
	BotAdmins        []string `env:"BOT_ADMINS" envSeparator:","`
	AdminOnly        bool     `env:"ADMIN_ONLY"`
	WhitelistEnabled bool     `env:"WHITELIST_ENABLED"`
	Whitelist        []string `env:"WHITELIST" envSeparator:","`

	// Persistence and logging.
	StoragePath string `env:"STORAGE_PATH" envDefault:"data/threads.json"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile     string `env:"LOG_FILE"`
}

// New loads configuration. A missing .env file is fine; the process
// environment always wins.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.BotID == "" {
		return nil, fmt.Errorf("config: BOT_ID is not set")
	}
	if cfg.Prefix == "" {
		return nil, fmt.Errorf("config: PREFIX cannot be empty")
	}
	return &cfg, nil
}
