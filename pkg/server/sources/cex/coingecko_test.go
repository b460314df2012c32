package cex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/marketpulse/pkg/server/sources"
)

const coingeckoBitcoin = `{
	"id": "bitcoin",
	"symbol": "btc",
	"market_data": {
		"market_cap": {"usd": 1250000000000, "eur": 1150000000000},
		"market_cap_change_percentage_24h": 1.75,
		"price_change_percentage_7d": -3.2,
		"circulating_supply": 19700000,
		"total_volume": {"usd": 35000000000}
	}
}`

func TestCoinGeckoProvider_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/bitcoin", r.URL.Path)
		assert.Equal(t, "false", r.URL.Query().Get("tickers"))
		assert.Equal(t, "demo-key", r.Header.Get("x-cg-demo-api-key"))
		_, _ = w.Write([]byte(coingeckoBitcoin))
	}))
	defer srv.Close()

	p, err := NewCoinGeckoProvider(map[string]interface{}{
		"api_url": srv.URL,
		"api_key": "demo-key",
		"pairs":   map[string]interface{}{"BTC": "bitcoin"},
	})
	require.NoError(t, err)
	assert.Equal(t, sources.KindMetrics, p.Kind())

	frag := p.Fetch(context.Background(), "BTC")
	require.True(t, frag.OK(), "fetch failed: %v", frag.Err)

	m := frag.Metrics
	require.True(t, m.MarketCap.Valid)
	assert.True(t, decimal.NewFromInt(1250000000000).Equal(m.MarketCap.Decimal))
	require.True(t, m.PriceChange7d.Valid)
	assert.True(t, decimal.RequireFromString("-3.2").Equal(m.PriceChange7d.Decimal))
	assert.True(t, m.MarketCapChange24h.Valid)
	assert.True(t, m.CirculatingSupply.Valid)
	assert.True(t, m.TotalVolume.Valid)
}

func TestCoinGeckoProvider_MissingFieldsStayUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"bitcoin","market_data":{"market_cap":{"usd":null},"price_change_percentage_7d":null}}`))
	}))
	defer srv.Close()

	p, err := NewCoinGeckoProvider(map[string]interface{}{
		"api_url": srv.URL,
		"pairs":   map[string]interface{}{"BTC": "bitcoin"},
	})
	require.NoError(t, err)

	frag := p.Fetch(context.Background(), "BTC")
	require.True(t, frag.OK())
	assert.False(t, frag.Metrics.MarketCap.Valid)
	assert.False(t, frag.Metrics.PriceChange7d.Valid)
	assert.False(t, frag.Metrics.TotalVolume.Valid)
}

func TestCoinGeckoProvider_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"bitcoin"}`))
	}))
	defer srv.Close()

	p, err := NewCoinGeckoProvider(map[string]interface{}{
		"api_url": srv.URL,
		"pairs":   map[string]interface{}{"BTC": "bitcoin"},
	})
	require.NoError(t, err)

	frag := p.Fetch(context.Background(), "BTC")
	assert.ErrorIs(t, frag.Err, sources.ErrBadResponse)
	assert.ErrorIs(t, frag.Err, sources.ErrMissingField)

	frag = p.Fetch(context.Background(), "DOGE")
	assert.ErrorIs(t, frag.Err, sources.ErrUnknownAsset)
}

func TestNewCoinGeckoProvider_RequiresPairs(t *testing.T) {
	_, err := NewCoinGeckoProvider(map[string]interface{}{"api_key": "k"})
	assert.ErrorIs(t, err, sources.ErrInvalidConfig)
}

func TestRegistry(t *testing.T) {
	p, err := sources.Create("ticker", "binance", map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "binance", p.Name())

	_, err = sources.Create("ticker", "nope", nil)
	assert.ErrorIs(t, err, sources.ErrUnknownProvider)

	assert.Contains(t, sources.List(), "metrics.coingecko")
}
