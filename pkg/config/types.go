package config

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Session     SessionConfig     `yaml:"session"`
	Assets      []AssetConfig     `yaml:"assets"`
	Sources     []SourceConfig    `yaml:"sources"`
	Cache       CacheConfig       `yaml:"cache"`
	Aggregation AggregationConfig `yaml:"aggregation"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig configures the HTTP/WebSocket listener and the base tick
type ServerConfig struct {
	Addr          string   `yaml:"addr"`
	BaseTick      Duration `yaml:"base_tick"`
	BuildParallel int      `yaml:"build_parallel"` // Max concurrent snapshot builds per tick
	AllowOrigins  []string `yaml:"allow_origins"`  // Empty allows any origin
}

// SessionConfig configures subscriber sessions
type SessionConfig struct {
	DefaultSymbols  []string `yaml:"default_symbols"`
	DefaultInterval Duration `yaml:"default_interval"`
	MinInterval     Duration `yaml:"min_interval"`
	MaxInterval     Duration `yaml:"max_interval"`
	Tick            Duration `yaml:"tick"`          // Resolution of the per-session loop
	PingInterval    Duration `yaml:"ping_interval"` // Keep-alive ping period
	PongWait        Duration `yaml:"pong_wait"`     // Read deadline extended on every pong
	WriteTimeout    Duration `yaml:"write_timeout"`
	InboxSize       int      `yaml:"inbox_size"` // Buffered control messages per session
}

// AssetConfig describes one tracked asset
type AssetConfig struct {
	Symbol string `yaml:"symbol"`
	Name   string `yaml:"name"`
	Query  string `yaml:"query"` // Social search query, defaults to "crypto <symbol> <name>"
}

// SourceConfig configures an upstream provider
type SourceConfig struct {
	Type    string                 `yaml:"type"` // ticker, metrics, sentiment
	Name    string                 `yaml:"name"` // binance, coingecko, http, archive
	Enabled bool                   `yaml:"enabled"`
	Config  map[string]interface{} `yaml:"config"`
}

// CacheConfig configures the fallback cache
type CacheConfig struct {
	TickerTTL    Duration `yaml:"ticker_ttl"`
	MetricsTTL   Duration `yaml:"metrics_ttl"`
	SentimentTTL Duration `yaml:"sentiment_ttl"`
	MaxAge       Duration `yaml:"max_age"`
	// Upper bound on how long a failed fetch is served from fallback before the upstream is tried again
	FailureBackoff Duration `yaml:"failure_backoff"`
	// How long a build waits on an expired entry's refresh before serving it stale
	RefreshWait Duration    `yaml:"refresh_wait"`
	Redis       RedisConfig `yaml:"redis"`
}

// RedisConfig configures the optional Redis tier of the fallback cache
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// AggregationConfig configures snapshot derivation
type AggregationConfig struct {
	SamplingInterval Duration `yaml:"sampling_interval"`
	SeriesLength     int      `yaml:"series_length"`
	TopItems         int      `yaml:"top_items"`
}

// MetricsConfig configures Prometheus metrics
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Duration is a wrapper around time.Duration for YAML parsing
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	td, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(td)
	return nil
}

// ToDuration converts Duration to time.Duration
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}
