package config

import (
	"fmt"
	"strings"
)

// Validate checks configuration for errors
func Validate(cfg *Config) error {
	if err := validateAssets(cfg); err != nil {
		return fmt.Errorf("assets: %w", err)
	}

	if err := validateServerConfig(&cfg.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateSessionConfig(&cfg.Session, cfg); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := validateSources(cfg.Sources); err != nil {
		return fmt.Errorf("sources: %w", err)
	}

	if err := validateCacheConfig(&cfg.Cache, cfg.Server.BaseTick); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}

	if err := validateLoggingConfig(&cfg.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

func validateAssets(cfg *Config) error {
	if len(cfg.Assets) == 0 {
		return ErrNoAssetsConfigured
	}
	seen := make(map[string]struct{}, len(cfg.Assets))
	for i, a := range cfg.Assets {
		if a.Symbol == "" {
			return fmt.Errorf("asset %d: %w", i, ErrAssetSymbolRequired)
		}
		if _, dup := seen[a.Symbol]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateAsset, a.Symbol)
		}
		seen[a.Symbol] = struct{}{}
	}
	return nil
}

func validateServerConfig(cfg *ServerConfig) error {
	if cfg.BaseTick <= 0 {
		return ErrInvalidBaseTick
	}
	return nil
}

func validateSessionConfig(sc *SessionConfig, cfg *Config) error {
	if sc.MinInterval <= 0 || sc.MinInterval > sc.MaxInterval {
		return fmt.Errorf("%w: min_interval=%s max_interval=%s",
			ErrInvalidIntervalBounds, sc.MinInterval.ToDuration(), sc.MaxInterval.ToDuration())
	}
	if sc.DefaultInterval < sc.MinInterval || sc.DefaultInterval > sc.MaxInterval {
		return fmt.Errorf("%w: default_interval=%s", ErrInvalidIntervalBounds, sc.DefaultInterval.ToDuration())
	}
	if sc.Tick > sc.MinInterval {
		return ErrInvalidSessionTick
	}
	for _, s := range sc.DefaultSymbols {
		if _, ok := cfg.Asset(s); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownDefaultSymbol, s)
		}
	}
	return nil
}

func validateSources(sources []SourceConfig) error {
	enabled := 0
	tickers := 0
	for i := range sources {
		source := &sources[i]
		if !source.Enabled {
			continue
		}
		enabled++
		if err := validateSourceConfig(source); err != nil {
			return fmt.Errorf("source %d (%s.%s): %w", i, source.Type, source.Name, err)
		}
		if strings.EqualFold(source.Type, SourceTypeTicker) {
			tickers++
		}
	}
	if enabled == 0 {
		return ErrNoSourcesEnabled
	}
	if tickers == 0 {
		return ErrNoTickerSource
	}
	return nil
}

func validateSourceConfig(cfg *SourceConfig) error {
	if cfg.Type == "" {
		return ErrSourceTypeRequired
	}

	validTypes := []string{SourceTypeTicker, SourceTypeMetrics, SourceTypeSentiment}
	typeValid := false
	for _, t := range validTypes {
		if strings.ToLower(cfg.Type) == t {
			typeValid = true
			break
		}
	}
	if !typeValid {
		return fmt.Errorf("%w: %s (must be one of: %s)", ErrUnknownSourceType, cfg.Type, strings.Join(validTypes, ", "))
	}

	if cfg.Name == "" {
		return ErrSourceNameRequired
	}

	return nil
}

func validateCacheConfig(cfg *CacheConfig, baseTick Duration) error {
	for name, ttl := range map[string]Duration{
		"ticker_ttl":    cfg.TickerTTL,
		"metrics_ttl":   cfg.MetricsTTL,
		"sentiment_ttl": cfg.SentimentTTL,
	} {
		if ttl > cfg.MaxAge {
			return fmt.Errorf("%w: %s=%s max_age=%s", ErrInvalidCacheTTL, name, ttl.ToDuration(), cfg.MaxAge.ToDuration())
		}
	}
	if cfg.FailureBackoff <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidFailureBackoff, cfg.FailureBackoff.ToDuration())
	}
	if cfg.RefreshWait <= 0 || cfg.RefreshWait >= baseTick {
		return fmt.Errorf("%w: refresh_wait=%s base_tick=%s", ErrInvalidRefreshWait, cfg.RefreshWait.ToDuration(), baseTick.ToDuration())
	}
	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return ErrRedisAddrRequired
	}
	return nil
}

func validateLoggingConfig(cfg *LoggingConfig) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	levelValid := false
	for _, l := range validLevels {
		if strings.ToLower(cfg.Level) == l {
			levelValid = true
			break
		}
	}
	if !levelValid {
		return fmt.Errorf("%w: %s (must be one of: %s)", ErrInvalidLogLevel, cfg.Level, strings.Join(validLevels, ", "))
	}

	formatValid := strings.ToLower(cfg.Format) == "json" || strings.ToLower(cfg.Format) == "text"
	if !formatValid {
		return fmt.Errorf("%w: %s (must be 'json' or 'text')", ErrInvalidLogFormat, cfg.Format)
	}

	return nil
}
