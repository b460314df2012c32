package cex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/marketpulse/pkg/server/sources"
)

const (
	binanceBaseURL       = "https://api.binance.com"
	binanceDefaultQuote  = "USDT"
	binanceKlineInterval = "1m"
	binanceKlineLimit    = 100
)

// BinanceProvider fetches 24h tickers and candle closes from the Binance REST API
type BinanceProvider struct {
	*sources.BaseProvider
	apiURL        string
	quote         string
	klineInterval string
	candleEvery   time.Duration
	klineLimit    int
}

// binance24hTicker is the subset of /api/v3/ticker/24hr we read
type binance24hTicker struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	Volume             string `json:"volume"`
}

// NewBinanceProvider creates a new Binance ticker provider.
// Assets without an explicit pair are mapped to <ASSET><quote>.
func NewBinanceProvider(config map[string]interface{}) (sources.Provider, error) {
	pairs := sources.ParseStringMap(config, "pairs")

	interval := sources.GetStringFromConfig(config, "kline_interval", binanceKlineInterval)
	candleEvery, err := parseKlineInterval(interval)
	if err != nil {
		return nil, fmt.Errorf("%w: kline_interval %q", sources.ErrInvalidConfig, interval)
	}

	limit := sources.GetIntFromConfig(config, "kline_limit", binanceKlineLimit)
	if limit < 0 || limit > 1000 {
		return nil, fmt.Errorf("%w: kline_limit must be within [0, 1000]", sources.ErrInvalidConfig)
	}

	return &BinanceProvider{
		BaseProvider:  sources.NewBaseProvider("binance", sources.KindTicker, pairs, config),
		apiURL:        strings.TrimRight(sources.GetStringFromConfig(config, "api_url", binanceBaseURL), "/"),
		quote:         sources.GetStringFromConfig(config, "quote", binanceDefaultQuote),
		klineInterval: interval,
		candleEvery:   candleEvery,
		klineLimit:    limit,
	}, nil
}

// Fetch retrieves the 24h ticker and recent candle closes for asset.
// Candles are best-effort: a kline failure still yields a ticker fragment.
func (s *BinanceProvider) Fetch(ctx context.Context, asset string) sources.Fragment {
	symbol, ok := s.PairFor(asset)
	if !ok {
		symbol = sources.DefaultPair(asset, s.quote)
	}

	var raw binance24hTicker
	endpoint := fmt.Sprintf("%s/api/v3/ticker/24hr?symbol=%s", s.apiURL, url.QueryEscape(symbol))
	if fe := s.GetJSON(ctx, endpoint, nil, &raw); fe != nil {
		return s.FailedWith(asset, fe)
	}

	ticker, err := raw.toTicker()
	if err != nil {
		return s.Failed(asset, sources.ErrorKindBadResponse, err)
	}

	if s.klineLimit > 0 {
		closes, fe := s.fetchCloses(ctx, symbol)
		if fe != nil {
			s.Logger().Debug("Kline fetch failed, continuing without candles", "symbol", symbol, "error", fe)
		} else {
			ticker.Closes = closes
			ticker.CandleInterval = s.candleEvery
		}
	}

	frag := s.Succeeded(asset)
	frag.Ticker = ticker
	return frag
}

// fetchCloses reads close prices from /api/v3/klines, oldest first
func (s *BinanceProvider) fetchCloses(ctx context.Context, symbol string) ([]decimal.Decimal, *sources.FetchError) {
	endpoint := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=%s&limit=%d",
		s.apiURL, url.QueryEscape(symbol), url.QueryEscape(s.klineInterval), s.klineLimit)

	var klines [][]json.RawMessage
	if fe := s.GetJSON(ctx, endpoint, nil, &klines); fe != nil {
		return nil, fe
	}

	closes := make([]decimal.Decimal, 0, len(klines))
	for i, k := range klines {
		// [openTime, open, high, low, close, volume, ...]
		if len(k) < 5 {
			return nil, sources.NewFetchError(s.Name(), sources.ErrorKindBadResponse,
				fmt.Errorf("%w: kline %d has %d fields", sources.ErrMissingField, i, len(k)))
		}
		var closeStr string
		if err := json.Unmarshal(k[4], &closeStr); err != nil {
			return nil, sources.NewFetchError(s.Name(), sources.ErrorKindBadResponse,
				fmt.Errorf("kline %d close: %w", i, err))
		}
		c, err := decimal.NewFromString(closeStr)
		if err != nil {
			return nil, sources.NewFetchError(s.Name(), sources.ErrorKindBadResponse,
				fmt.Errorf("kline %d close %q: %w", i, closeStr, err))
		}
		closes = append(closes, c)
	}
	return closes, nil
}

func (t binance24hTicker) toTicker() (*sources.Ticker, error) {
	if t.LastPrice == "" {
		return nil, fmt.Errorf("%w: lastPrice", sources.ErrMissingField)
	}
	price, err := decimal.NewFromString(t.LastPrice)
	if err != nil {
		return nil, fmt.Errorf("lastPrice %q: %w", t.LastPrice, err)
	}

	ticker := &sources.Ticker{Price: price}
	if t.PriceChangePercent != "" {
		if ticker.ChangePercent24h, err = decimal.NewFromString(t.PriceChangePercent); err != nil {
			return nil, fmt.Errorf("priceChangePercent %q: %w", t.PriceChangePercent, err)
		}
	}
	if t.Volume != "" {
		if ticker.Volume24h, err = decimal.NewFromString(t.Volume); err != nil {
			return nil, fmt.Errorf("volume %q: %w", t.Volume, err)
		}
	}
	return ticker, nil
}

// parseKlineInterval converts Binance interval notation (1s, 1m, 4h, 1d, 1w) to a duration
func parseKlineInterval(interval string) (time.Duration, error) {
	if len(interval) < 2 {
		return 0, sources.ErrInvalidConfig
	}
	unit := interval[len(interval)-1]
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, sources.ErrInvalidConfig
	}
	switch unit {
	case 's':
		return time.Duration(n) * time.Second, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	}
	return 0, sources.ErrInvalidConfig
}
