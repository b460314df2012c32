package cex

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/marketpulse/pkg/server/sources"
)

const (
	coingeckoBaseURL      = "https://api.coingecko.com/api/v3"
	coingeckoKeyHeader    = "x-cg-demo-api-key"
	coingeckoVsCurrency   = "usd"
	coingeckoCoinQueryFmt = "%s/coins/%s?localization=false&tickers=false&community_data=false&developer_data=false&sparkline=false"
)

// CoinGeckoProvider fetches market metrics from the CoinGecko REST API
type CoinGeckoProvider struct {
	*sources.BaseProvider
	apiURL     string
	apiKey     string
	keyHeader  string
	vsCurrency string
}

// coingeckoCoin is the subset of /coins/{id} we read
type coingeckoCoin struct {
	ID         string               `json:"id"`
	Symbol     string               `json:"symbol"`
	MarketData *coingeckoMarketData `json:"market_data"`
}

type coingeckoMarketData struct {
	MarketCap                    map[string]decimal.NullDecimal `json:"market_cap"`
	MarketCapChangePercentage24h decimal.NullDecimal            `json:"market_cap_change_percentage_24h"`
	PriceChangePercentage7d      decimal.NullDecimal            `json:"price_change_percentage_7d"`
	CirculatingSupply            decimal.NullDecimal            `json:"circulating_supply"`
	TotalVolume                  map[string]decimal.NullDecimal `json:"total_volume"`
}

// NewCoinGeckoProvider creates a new CoinGecko metrics provider.
// Every tracked asset needs a pair mapping to a CoinGecko coin id.
func NewCoinGeckoProvider(config map[string]interface{}) (sources.Provider, error) {
	pairs, err := sources.ParsePairsFromMap(config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pairs: %w", err)
	}

	return &CoinGeckoProvider{
		BaseProvider: sources.NewBaseProvider("coingecko", sources.KindMetrics, pairs, config),
		apiURL:       strings.TrimRight(sources.GetStringFromConfig(config, "api_url", coingeckoBaseURL), "/"),
		apiKey:       sources.GetStringFromConfig(config, "api_key", ""),
		keyHeader:    sources.GetStringFromConfig(config, "api_key_header", coingeckoKeyHeader),
		vsCurrency:   strings.ToLower(sources.GetStringFromConfig(config, "vs_currency", coingeckoVsCurrency)),
	}, nil
}

// Fetch retrieves market metrics for asset
func (s *CoinGeckoProvider) Fetch(ctx context.Context, asset string) sources.Fragment {
	id, ok := s.PairFor(asset)
	if !ok {
		return s.Failed(asset, sources.ErrorKindBadResponse, fmt.Errorf("%w: %s", sources.ErrUnknownAsset, asset))
	}

	var headers map[string]string
	if s.apiKey != "" {
		headers = map[string]string{s.keyHeader: s.apiKey}
	}

	var coin coingeckoCoin
	endpoint := fmt.Sprintf(coingeckoCoinQueryFmt, s.apiURL, url.PathEscape(id))
	if fe := s.GetJSON(ctx, endpoint, headers, &coin); fe != nil {
		return s.FailedWith(asset, fe)
	}

	if coin.MarketData == nil {
		return s.Failed(asset, sources.ErrorKindBadResponse, fmt.Errorf("%w: market_data", sources.ErrMissingField))
	}

	md := coin.MarketData
	frag := s.Succeeded(asset)
	frag.Metrics = &sources.Metrics{
		MarketCap:          md.MarketCap[s.vsCurrency],
		MarketCapChange24h: md.MarketCapChangePercentage24h,
		PriceChange7d:      md.PriceChangePercentage7d,
		CirculatingSupply:  md.CirculatingSupply,
		TotalVolume:        md.TotalVolume[s.vsCurrency],
	}
	return frag
}
