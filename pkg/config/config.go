// Package config provides configuration loading and validation for marketpulse.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Source types understood by the server.
const (
	SourceTypeTicker    = "ticker"
	SourceTypeMetrics   = "metrics"
	SourceTypeSentiment = "sentiment"
)

// Load loads configuration from YAML file and environment variables.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	data, err := os.ReadFile(absPath) // #nosec G304 -- Path sanitized with filepath.Clean and filepath.Abs
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse expands environment variables in raw YAML, decodes it and applies defaults.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// applyDefaults sets default values for optional fields.
func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8765"
	}
	if cfg.Server.BaseTick == 0 {
		cfg.Server.BaseTick = Duration(time.Second)
	}
	if cfg.Server.BuildParallel <= 0 {
		cfg.Server.BuildParallel = 4
	}

	// Session defaults
	if cfg.Session.MinInterval == 0 {
		cfg.Session.MinInterval = Duration(time.Second)
	}
	if cfg.Session.MaxInterval == 0 {
		cfg.Session.MaxInterval = Duration(120 * time.Second)
	}
	if cfg.Session.DefaultInterval == 0 {
		cfg.Session.DefaultInterval = Duration(5 * time.Second)
	}
	if cfg.Session.Tick == 0 {
		cfg.Session.Tick = Duration(250 * time.Millisecond)
	}
	if cfg.Session.PingInterval == 0 {
		cfg.Session.PingInterval = Duration(54 * time.Second)
	}
	if cfg.Session.PongWait == 0 {
		cfg.Session.PongWait = Duration(60 * time.Second)
	}
	if cfg.Session.WriteTimeout == 0 {
		cfg.Session.WriteTimeout = Duration(10 * time.Second)
	}
	if cfg.Session.InboxSize <= 0 {
		cfg.Session.InboxSize = 16
	}

	// Asset defaults
	for i := range cfg.Assets {
		cfg.Assets[i].Symbol = strings.ToUpper(strings.TrimSpace(cfg.Assets[i].Symbol))
		if cfg.Assets[i].Name == "" {
			cfg.Assets[i].Name = cfg.Assets[i].Symbol
		}
		if cfg.Assets[i].Query == "" {
			cfg.Assets[i].Query = fmt.Sprintf("crypto %s %s", cfg.Assets[i].Symbol, strings.ToLower(cfg.Assets[i].Name))
		}
	}
	for i := range cfg.Sources {
		cfg.Sources[i].Type = strings.ToLower(strings.TrimSpace(cfg.Sources[i].Type))
		cfg.Sources[i].Name = strings.ToLower(strings.TrimSpace(cfg.Sources[i].Name))
	}
	if len(cfg.Session.DefaultSymbols) == 0 && len(cfg.Assets) > 0 {
		cfg.Session.DefaultSymbols = []string{cfg.Assets[0].Symbol}
	}
	for i, s := range cfg.Session.DefaultSymbols {
		cfg.Session.DefaultSymbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}

	// Cache defaults
	if cfg.Cache.TickerTTL == 0 {
		cfg.Cache.TickerTTL = Duration(time.Second)
	}
	if cfg.Cache.MetricsTTL == 0 {
		cfg.Cache.MetricsTTL = Duration(60 * time.Second)
	}
	if cfg.Cache.SentimentTTL == 0 {
		cfg.Cache.SentimentTTL = Duration(15 * time.Minute)
	}
	if cfg.Cache.MaxAge == 0 {
		cfg.Cache.MaxAge = Duration(time.Hour)
	}
	if cfg.Cache.FailureBackoff == 0 {
		cfg.Cache.FailureBackoff = Duration(30 * time.Second)
	}
	if cfg.Cache.RefreshWait == 0 {
		cfg.Cache.RefreshWait = cfg.Server.BaseTick / 2
	}
	if cfg.Cache.Redis.Enabled && cfg.Cache.Redis.Addr == "" {
		cfg.Cache.Redis.Addr = "localhost:6379"
	}
	if cfg.Cache.Redis.Prefix == "" {
		cfg.Cache.Redis.Prefix = "marketpulse:fragment:"
	}

	// Aggregation defaults
	if cfg.Aggregation.SamplingInterval == 0 {
		cfg.Aggregation.SamplingInterval = Duration(time.Minute)
	}
	if cfg.Aggregation.SeriesLength <= 0 {
		cfg.Aggregation.SeriesLength = 100
	}
	if cfg.Aggregation.TopItems <= 0 {
		cfg.Aggregation.TopItems = 5
	}

	// Metrics defaults
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9091"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// TrackedSymbols returns the configured asset symbols in declaration order.
func (c *Config) TrackedSymbols() []string {
	symbols := make([]string, 0, len(c.Assets))
	for _, a := range c.Assets {
		symbols = append(symbols, a.Symbol)
	}
	return symbols
}

// Asset looks up an asset by its normalized symbol.
func (c *Config) Asset(symbol string) (AssetConfig, bool) {
	for _, a := range c.Assets {
		if a.Symbol == symbol {
			return a, true
		}
	}
	return AssetConfig{}, false
}

// EnabledSources returns enabled sources of the given type in declaration order.
func (c *Config) EnabledSources(sourceType string) []SourceConfig {
	var out []SourceConfig
	for _, s := range c.Sources {
		if s.Enabled && strings.EqualFold(s.Type, sourceType) {
			out = append(out, s)
		}
	}
	return out
}

// GetString retrieves a string value from the source configuration.
func (sc *SourceConfig) GetString(key, defaultValue string) string {
	if val, ok := sc.Config[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return defaultValue
}
