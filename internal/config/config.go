// Package config loads the execution engine's runtime configuration.
//
// Grounded on internal/database/database.go's sibling
// internal/config/config.go from the teacher repo — a flat Config
// struct populated by env-var-with-defaults helpers — layered here
// under github.com/spf13/viper so the nested reconciliation.* and
// venue.* keys spec.md §6/§9 introduce have a home a flat getEnv*
// helper set can't give them cleanly. github.com/joho/godotenv loads
// a .env file first, exactly as cmd/polybot/main.go does, before viper
// reads the process environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// VenueConfig is one execution venue's connection and signing material.
type VenueConfig struct {
	Name          string `mapstructure:"name"`
	BaseURL       string `mapstructure:"base_url"`
	WSURL         string `mapstructure:"ws_url"`
	APIKey        string `mapstructure:"api_key"`
	SignerKeyHex  string `mapstructure:"signer_key_hex"`
	ExchangeAddr  string `mapstructure:"exchange_address"`
	ChainID       int64  `mapstructure:"chain_id"`
	SignatureType uint8  `mapstructure:"signature_type"`
}

// ReconciliationConfig tunes the reconciliation loop and its circuit
// breaker (spec.md §9).
type ReconciliationConfig struct {
	PollIntervalMS         int `mapstructure:"poll_interval_ms"`
	TimeoutSecs            int `mapstructure:"timeout_secs"`
	MaxConsecutiveFailures int `mapstructure:"max_consecutive_failures"`
	CooldownSecs           int `mapstructure:"cooldown_secs"`
}

// Config is the fully resolved engine configuration.
type Config struct {
	Debug bool `mapstructure:"debug"`

	QueueSize int    `mapstructure:"qsize"`
	QuoteCcy  string `mapstructure:"quote_currency"`

	DatabaseDSN string `mapstructure:"database_dsn"`
	EventLogDSN string `mapstructure:"eventlog_dsn"`

	TelegramBotToken string `mapstructure:"telegram_bot_token"`
	TelegramChatID   string `mapstructure:"telegram_chat_id"`

	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
	Venues         []VenueConfig        `mapstructure:"venues"`
}

// PollInterval and Timeout convert the reconciliation config's raw
// integer fields into time.Duration for reconcile.Config.
func (r ReconciliationConfig) PollInterval() time.Duration {
	return time.Duration(r.PollIntervalMS) * time.Millisecond
}

func (r ReconciliationConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSecs) * time.Second
}

func (r ReconciliationConfig) Cooldown() time.Duration {
	return time.Duration(r.CooldownSecs) * time.Second
}

// Load reads .env (if present), then layers a config file (if present)
// under process environment variables, applying the same defaults the
// teacher's getEnv* helpers hardcoded inline.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("config: no .env file found, continuing with process environment")
	}

	v := viper.New()
	v.SetEnvPrefix("EXENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("debug", false)
	v.SetDefault("qsize", 4096)
	v.SetDefault("quote_currency", "USD")
	v.SetDefault("database_dsn", "exengine.db")
	v.SetDefault("eventlog_dsn", "")
	v.SetDefault("reconciliation.poll_interval_ms", 500)
	v.SetDefault("reconciliation.timeout_secs", 10)
	v.SetDefault("reconciliation.max_consecutive_failures", 3)
	v.SetDefault("reconciliation.cooldown_secs", 30)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if cfg.QueueSize <= 0 {
		return nil, fmt.Errorf("config: qsize must be positive, got %d", cfg.QueueSize)
	}
	if len(cfg.Venues) == 0 {
		log.Warn().Msg("config: no venues configured")
	}

	return &cfg, nil
}
