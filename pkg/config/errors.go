package config

import "errors"

var (
	// ErrNoAssetsConfigured indicates that no tracked assets are configured.
	ErrNoAssetsConfigured = errors.New("at least one asset must be configured")
	// ErrAssetSymbolRequired indicates that an asset is missing its symbol.
	ErrAssetSymbolRequired = errors.New("asset symbol is required")
	// ErrDuplicateAsset indicates that an asset symbol is configured twice.
	ErrDuplicateAsset = errors.New("duplicate asset symbol")
	// ErrUnknownDefaultSymbol indicates a default symbol that is not a tracked asset.
	ErrUnknownDefaultSymbol = errors.New("default symbol is not a tracked asset")
	// ErrNoSourcesEnabled indicates that no sources are enabled.
	ErrNoSourcesEnabled = errors.New("no sources enabled")
	// ErrNoTickerSource indicates that no enabled ticker source is configured.
	ErrNoTickerSource = errors.New("at least one ticker source must be enabled")
	// ErrSourceTypeRequired indicates that source type is required.
	ErrSourceTypeRequired = errors.New("source type is required")
	// ErrSourceNameRequired indicates that source name is required.
	ErrSourceNameRequired = errors.New("source name is required")
	// ErrUnknownSourceType indicates that the source type is unknown.
	ErrUnknownSourceType = errors.New("unknown source type")
	// ErrInvalidIntervalBounds indicates min_interval > max_interval or a default outside them.
	ErrInvalidIntervalBounds = errors.New("invalid session interval bounds")
	// ErrInvalidBaseTick indicates that the base tick is not positive.
	ErrInvalidBaseTick = errors.New("base_tick must be positive")
	// ErrInvalidSessionTick indicates that the session tick exceeds min_interval.
	ErrInvalidSessionTick = errors.New("session tick must not exceed min_interval")
	// ErrInvalidCacheTTL indicates a TTL greater than max_age.
	ErrInvalidCacheTTL = errors.New("cache ttl must not exceed max_age")
	// ErrInvalidFailureBackoff indicates a non-positive failure_backoff.
	ErrInvalidFailureBackoff = errors.New("failure_backoff must be positive")
	// ErrInvalidRefreshWait indicates a refresh_wait that is not positive or not below base_tick.
	ErrInvalidRefreshWait = errors.New("refresh_wait must be positive and below base_tick")
	// ErrRedisAddrRequired indicates that redis is enabled without an address.
	ErrRedisAddrRequired = errors.New("redis addr is required when redis is enabled")
	// ErrInvalidLogLevel indicates that the log level is invalid.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidLogFormat indicates that the log format is invalid.
	ErrInvalidLogFormat = errors.New("invalid log format")
)
