package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config application configuration
type Config struct {
	// Database
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/mailsync.db"`

	// Sync engine
	ChunkSize           uint32        `env:"SYNC_CHUNK_SIZE" envDefault:"100"`
	DispatchInterval    time.Duration `env:"SYNC_DISPATCH_INTERVAL" envDefault:"1m"`
	IncrementalInterval time.Duration `env:"SYNC_INCREMENTAL_INTERVAL" envDefault:"5m"`
	FetchTimeout        time.Duration `env:"SYNC_FETCH_TIMEOUT" envDefault:"2m"`
	IMAPDialTimeout     time.Duration `env:"IMAP_DIAL_TIMEOUT" envDefault:"30s"`

	// Watchdog
	WatchdogInterval time.Duration `env:"WATCHDOG_INTERVAL" envDefault:"5m"`
	WatchdogCeiling  time.Duration `env:"WATCHDOG_CEILING" envDefault:"2h"`

	// OAuth providers
	GoogleClientID        string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret    string `env:"GOOGLE_CLIENT_SECRET"`
	MicrosoftClientID     string `env:"MICROSOFT_CLIENT_ID"`
	MicrosoftClientSecret string `env:"MICROSOFT_CLIENT_SECRET"`

	// Operator notifications (optional)
	TelegramToken  string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID int64  `env:"TELEGRAM_OPERATOR_CHAT_ID"`

	// Security
	EncryptionKey string `env:"ENCRYPTION_KEY,required"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// TelegramEnabled returns true if operator notifications are configured
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Validate encryption key length (32 bytes for AES-256)
	if len(cfg.EncryptionKey) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes, got %d", len(cfg.EncryptionKey))
	}

	if cfg.ChunkSize == 0 {
		return nil, fmt.Errorf("SYNC_CHUNK_SIZE must be positive")
	}

	return cfg, nil
}
