package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config application configuration
type Config struct {
	// Telegram
	TelegramToken string `env:"TELEGRAM_BOT_TOKEN,required"`

	// Database
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/mailpool.db"`

	// Polling
	PollInterval     time.Duration `env:"POLL_INTERVAL" envDefault:"3s"`
	IMAPDialTimeout  time.Duration `env:"IMAP_DIAL_TIMEOUT" envDefault:"20s"`
	MaxParallelFetch int           `env:"MAX_PARALLEL_FETCH" envDefault:"5"`
	ProxyAttempts    int           `env:"PROXY_ATTEMPTS" envDefault:"3"`
	BodyMaxLen       int           `env:"BODY_MAX_LEN" envDefault:"3500"`

	// Proxy health probes
	ProbeTimeout time.Duration `env:"PROBE_TIMEOUT" envDefault:"6s"`

	// Sending: default pacing range, overridable per user in settings
	SendDelayMin    time.Duration `env:"SEND_DELAY_MIN" envDefault:"20s"`
	SendDelayMax    time.Duration `env:"SEND_DELAY_MAX" envDefault:"40s"`
	SMTPDialTimeout time.Duration `env:"SMTP_DIAL_TIMEOUT" envDefault:"20s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.SendDelayMin > cfg.SendDelayMax {
		return nil, fmt.Errorf("SEND_DELAY_MIN must not exceed SEND_DELAY_MAX")
	}
	if cfg.MaxParallelFetch < 1 {
		return nil, fmt.Errorf("MAX_PARALLEL_FETCH must be at least 1")
	}

	return cfg, nil
}
