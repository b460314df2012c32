// Package cex provides exchange and market-data aggregator providers.
package cex

import (
	"github.com/StrathCole/marketpulse/pkg/server/sources"
)

func init() {
	sources.Register("ticker.binance", NewBinanceProvider)
	sources.Register("metrics.coingecko", NewCoinGeckoProvider)
}
