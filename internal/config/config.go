// Package config loads the ingestion process's configuration from an
// optional .env file plus a config.json, in the style the teacher repo
// uses: a default-on-missing-file JSON loader with per-section structs.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
)

// ExchangeConfig toggles one exchange on/off. No component reads the
// symbols-per-connection fields: each pool uses its driver's own
// StreamsPerConnection cap.
type ExchangeConfig struct {
	Enabled             bool `json:"enabled"`
	StreamsPerConnSpot  int  `json:"streams_per_conn_spot"`
	StreamsPerConnLinear int `json:"streams_per_conn_linear"`
}

// TelegramConfig configures the Notification Dispatcher's Bot API client.
type TelegramConfig struct {
	BotToken           string `json:"bot_token"`
	MaxConcurrentSends int    `json:"max_concurrent_sends"` // default 30; not read by the dispatcher, whose cap is fixed at 30
}

// DatabaseConfig configures the Alert Store's SQLite files.
type DatabaseConfig struct {
	Path                 string `json:"path"`                   // main db: users/alerts/user_alerts/errors/exchange_statistics
	SymbolNormalizationPath string `json:"symbol_normalization_path"` // separate file, per spec §6
	BusyTimeoutSeconds   int    `json:"busy_timeout_seconds"` // default 30
}

// DetectorConfig tunes the Spike Detector's caching.
type DetectorConfig struct {
	OptionsCacheTTLSeconds int `json:"options_cache_ttl_seconds"` // default 60
}

// LogConfig mirrors the teacher's log configuration shape.
type LogConfig struct {
	Level string `json:"level"` // debug, info, warn, error (default info)
}

// Config is the ingestion process's complete configuration.
type Config struct {
	MetricsPort int                       `json:"metrics_port"` // default 9090
	Exchanges   map[string]ExchangeConfig `json:"exchanges"`
	Telegram    TelegramConfig            `json:"telegram"`
	Database    DatabaseConfig            `json:"database"`
	Detector    DetectorConfig            `json:"detector"`
	Log         LogConfig                 `json:"log"`
}

// defaults fills in zero-valued fields a fresh Config needs to run.
func defaults() *Config {
	return &Config{
		MetricsPort: 9090,
		Exchanges: map[string]ExchangeConfig{
			"binance":     {Enabled: true, StreamsPerConnSpot: 150, StreamsPerConnLinear: 150},
			"bybit":       {Enabled: true, StreamsPerConnSpot: 86, StreamsPerConnLinear: 100},
			"bitget":      {Enabled: true, StreamsPerConnSpot: 39, StreamsPerConnLinear: 49},
			"gateio":      {Enabled: true, StreamsPerConnSpot: 135, StreamsPerConnLinear: 100},
			"hyperliquid": {Enabled: true, StreamsPerConnSpot: 50, StreamsPerConnLinear: 50},
		},
		Telegram: TelegramConfig{MaxConcurrentSends: 30},
		Database: DatabaseConfig{
			Path:                    "data/spikeingest.db",
			SymbolNormalizationPath: "data/symbol_normalization.db",
			BusyTimeoutSeconds:      30,
		},
		Detector: DetectorConfig{OptionsCacheTTLSeconds: 60},
		Log:      LogConfig{Level: "info"},
	}
}

// LoadConfig loads configuration from filename, falling back to defaults
// when the file does not exist.
func LoadConfig(filename string) (*Config, error) {
	cfg := defaults()

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		log.Printf("%s not found, using default configuration", filename)
		return cfg, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filename, err)
	}

	if cfg.Telegram.MaxConcurrentSends <= 0 {
		cfg.Telegram.MaxConcurrentSends = 30
	}
	if cfg.Database.BusyTimeoutSeconds <= 0 {
		cfg.Database.BusyTimeoutSeconds = 30
	}
	if cfg.Detector.OptionsCacheTTLSeconds <= 0 {
		cfg.Detector.OptionsCacheTTLSeconds = 60
	}

	return cfg, nil
}
