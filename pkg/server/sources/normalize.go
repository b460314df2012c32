package sources

import (
	"fmt"
	"strings"
	"unicode"
)

// NormalizeAsset converts an asset symbol to its canonical form (trimmed, upper-cased)
func NormalizeAsset(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// NormalizeAssets normalizes a list of symbols, dropping empties and duplicates while keeping order
func NormalizeAssets(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		n := NormalizeAsset(s)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// ValidateAsset checks that a symbol is non-empty and alphanumeric after normalization
// Valid: "BTC", " eth ", "1INCH"
// Invalid: "", "BTC/USDT", "BTC USDT"
func ValidateAsset(symbol string) error {
	n := NormalizeAsset(symbol)
	if n == "" {
		return fmt.Errorf("%w: empty", ErrInvalidAsset)
	}
	for _, r := range n {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return fmt.Errorf("%w: %q", ErrInvalidAsset, symbol)
		}
	}
	return nil
}

// DefaultPair builds an exchange pair symbol from an asset and a quote currency (BTC + USDT -> BTCUSDT)
func DefaultPair(asset, quote string) string {
	return NormalizeAsset(asset) + NormalizeAsset(quote)
}
