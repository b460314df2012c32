package aggregator

import "errors"

var (
	// ErrNoTickerProvider indicates that the engine was built without a ticker provider.
	ErrNoTickerProvider = errors.New("ticker provider is required")
	// ErrNoCache indicates that the engine was built without a fallback cache.
	ErrNoCache = errors.New("fallback cache is required")
)
