package sources

import (
	"fmt"
	"time"

	"github.com/StrathCole/marketpulse/pkg/logging"
)

// GetLoggerFromConfig extracts logger from config map or returns a default noop logger.
// The service injects its logger under the "logger" key before calling a factory.
func GetLoggerFromConfig(config map[string]interface{}) *logging.Logger {
	if loggerInterface, ok := config["logger"]; ok {
		if logger, ok := loggerInterface.(*logging.Logger); ok && logger != nil {
			return logger
		}
	}

	return logging.NewNoopLogger()
}

// ParsePairsFromMap extracts asset mappings from config where pairs is a map.
// Expected format: pairs: { "BTC": "BTCUSDT", "ETH": "ethereum" }.
// Keys are normalized asset symbols, values are upstream identifiers.
func ParsePairsFromMap(config map[string]interface{}) (map[string]string, error) {
	pairsRaw, ok := config["pairs"]
	if !ok {
		return nil, fmt.Errorf("%w: 'pairs' key", ErrInvalidConfig)
	}

	pairsMap, ok := toStringMap(pairsRaw)
	if !ok {
		return nil, fmt.Errorf("%w: pairs must be map[string]string", ErrInvalidConfig)
	}

	pairs := make(map[string]string, len(pairsMap))
	for asset, upstreamRaw := range pairsMap {
		upstream, ok := upstreamRaw.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s is %T", ErrInvalidConfig, asset, upstreamRaw)
		}
		if err := ValidateAsset(asset); err != nil {
			return nil, fmt.Errorf("pair key: %w", err)
		}
		pairs[NormalizeAsset(asset)] = upstream
	}

	if len(pairs) == 0 {
		return nil, ErrNoPairsConfigured
	}

	return pairs, nil
}

// ParseStringMap reads an optional map[string]string under key, normalizing keys as assets.
func ParseStringMap(config map[string]interface{}, key string) map[string]string {
	out := make(map[string]string)
	raw, ok := config[key]
	if !ok {
		return out
	}
	m, ok := toStringMap(raw)
	if !ok {
		return out
	}
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[NormalizeAsset(k)] = s
		}
	}
	return out
}

// toStringMap accepts both map[string]interface{} (yaml.v3) and map[string]string (in-code configs).
func toStringMap(raw interface{}) (map[string]interface{}, bool) {
	switch m := raw.(type) {
	case map[string]interface{}:
		return m, true
	case map[string]string:
		out := make(map[string]interface{}, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, true
	}
	return nil, false
}

// GetStringFromConfig returns a string value or defaultVal.
func GetStringFromConfig(config map[string]interface{}, key, defaultVal string) string {
	if v, ok := config[key].(string); ok && v != "" {
		return v
	}
	return defaultVal
}

// GetIntFromConfig returns an integer value or defaultVal. YAML and JSON numbers are both accepted.
func GetIntFromConfig(config map[string]interface{}, key string, defaultVal int) int {
	switch v := config[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case int64:
		return int(v)
	default:
		return defaultVal
	}
}

// GetDurationFromConfig parses a duration string (e.g. "10s") or returns defaultVal.
func GetDurationFromConfig(config map[string]interface{}, key string, defaultVal time.Duration) time.Duration {
	switch v := config[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	case time.Duration:
		if v > 0 {
			return v
		}
	}
	return defaultVal
}
