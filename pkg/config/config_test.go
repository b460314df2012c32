package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
assets:
  - symbol: " btc "
    name: Bitcoin
  - symbol: eth
sources:
  - type: Ticker
    name: Binance
    enabled: true
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalConfig))
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	assert.Equal(t, ":8765", cfg.Server.Addr)
	assert.Equal(t, time.Second, cfg.Server.BaseTick.ToDuration())
	assert.Equal(t, 4, cfg.Server.BuildParallel)

	assert.Equal(t, 5*time.Second, cfg.Session.DefaultInterval.ToDuration())
	assert.Equal(t, time.Second, cfg.Session.MinInterval.ToDuration())
	assert.Equal(t, 120*time.Second, cfg.Session.MaxInterval.ToDuration())
	assert.Equal(t, 250*time.Millisecond, cfg.Session.Tick.ToDuration())
	assert.Equal(t, []string{"BTC"}, cfg.Session.DefaultSymbols)

	assert.Equal(t, 30*time.Second, cfg.Cache.FailureBackoff.ToDuration())
	assert.Equal(t, 500*time.Millisecond, cfg.Cache.RefreshWait.ToDuration())

	assert.Equal(t, []string{"BTC", "ETH"}, cfg.TrackedSymbols())
	btc, ok := cfg.Asset("BTC")
	require.True(t, ok)
	assert.Equal(t, "crypto BTC bitcoin", btc.Query)
	eth, _ := cfg.Asset("ETH")
	assert.Equal(t, "ETH", eth.Name)

	assert.Equal(t, "ticker", cfg.Sources[0].Type)
	assert.Equal(t, "binance", cfg.Sources[0].Name)
	assert.Len(t, cfg.EnabledSources(SourceTypeTicker), 1)
	assert.Empty(t, cfg.EnabledSources(SourceTypeSentiment))

	assert.Equal(t, time.Hour, cfg.Cache.MaxAge.ToDuration())
	assert.Equal(t, "marketpulse:fragment:", cfg.Cache.Redis.Prefix)
	assert.Equal(t, time.Minute, cfg.Aggregation.SamplingInterval.ToDuration())
	assert.Equal(t, 100, cfg.Aggregation.SeriesLength)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("MP_TEST_API_KEY", "secret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalConfig+`
  - type: metrics
    name: coingecko
    enabled: true
    config:
      api_key: ${MP_TEST_API_KEY}
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	metrics := cfg.EnabledSources(SourceTypeMetrics)
	require.Len(t, metrics, 1)
	assert.Equal(t, "secret", metrics[0].GetString("api_key", ""))
	assert.Equal(t, "fallback", metrics[0].GetString("missing", "fallback"))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDuration_Invalid(t *testing.T) {
	_, err := Parse([]byte("server:\n  base_tick: soon\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"no assets", func(c *Config) { c.Assets = nil }, ErrNoAssetsConfigured},
		{"duplicate asset", func(c *Config) { c.Assets = append(c.Assets, AssetConfig{Symbol: "BTC"}) }, ErrDuplicateAsset},
		{"empty symbol", func(c *Config) { c.Assets[1].Symbol = "" }, ErrAssetSymbolRequired},
		{"bad base tick", func(c *Config) { c.Server.BaseTick = 0 }, ErrInvalidBaseTick},
		{"min above max", func(c *Config) { c.Session.MinInterval = Duration(time.Hour) }, ErrInvalidIntervalBounds},
		{"default outside bounds", func(c *Config) { c.Session.DefaultInterval = Duration(time.Hour) }, ErrInvalidIntervalBounds},
		{"tick above min", func(c *Config) { c.Session.Tick = Duration(2 * time.Second) }, ErrInvalidSessionTick},
		{"unknown default symbol", func(c *Config) { c.Session.DefaultSymbols = []string{"DOGE"} }, ErrUnknownDefaultSymbol},
		{"no sources", func(c *Config) { c.Sources[0].Enabled = false }, ErrNoSourcesEnabled},
		{"no ticker", func(c *Config) { c.Sources[0].Type = SourceTypeMetrics }, ErrNoTickerSource},
		{"bad source type", func(c *Config) { c.Sources[0].Type = "orderbook" }, ErrUnknownSourceType},
		{"missing source name", func(c *Config) { c.Sources[0].Name = "" }, ErrSourceNameRequired},
		{"ttl above max age", func(c *Config) { c.Cache.MetricsTTL = Duration(2 * time.Hour) }, ErrInvalidCacheTTL},
		{"negative failure backoff", func(c *Config) { c.Cache.FailureBackoff = Duration(-time.Second) }, ErrInvalidFailureBackoff},
		{"refresh wait not below base tick", func(c *Config) { c.Cache.RefreshWait = c.Server.BaseTick }, ErrInvalidRefreshWait},
		{"redis without addr", func(c *Config) { c.Cache.Redis.Enabled = true }, ErrRedisAddrRequired},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, ErrInvalidLogLevel},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, ErrInvalidLogFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(minimalConfig))
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.ErrorIs(t, Validate(cfg), tt.wantErr)
		})
	}
}

func TestExampleConfigIsValid(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))
	assert.Len(t, cfg.EnabledSources(SourceTypeSentiment), 2)
}
