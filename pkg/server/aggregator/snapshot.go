package aggregator

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/marketpulse/pkg/server/sources"
)

// Number is an optional decimal rendered as a JSON number, or null when unavailable
type Number struct {
	decimal.NullDecimal
}

// Unavailable is the zero Number
var Unavailable = Number{}

// Some wraps a known value
func Some(d decimal.Decimal) Number {
	return Number{decimal.NullDecimal{Decimal: d, Valid: true}}
}

// FromNull converts a decimal.NullDecimal
func FromNull(n decimal.NullDecimal) Number {
	return Number{n}
}

// MarshalJSON implements json.Marshaler
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return []byte(n.Decimal.String()), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (n *Number) UnmarshalJSON(data []byte) error {
	return n.NullDecimal.UnmarshalJSON(data)
}

// Snapshot is the merged view of one asset at one point in time
type Snapshot struct {
	Symbol      string          `json:"symbol"`
	Name        string          `json:"name"`
	Price       Number          `json:"current_price"`
	Change1h    Number          `json:"price_change_1h"`
	Change24h   Number          `json:"price_change_24h"`
	Change7d    Number          `json:"price_change_7d"`
	Volume24h   Number          `json:"volume_24h"`
	MarketCap   Number          `json:"market_cap"`
	Sparkline   []Number        `json:"sparkline"`
	Market      *MarketBlock    `json:"market_metrics,omitempty"`
	Sentiment   *SentimentBlock `json:"sentiment,omitempty"`
	Degraded    bool            `json:"degraded"`
	Stale       bool            `json:"stale"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// MarketBlock carries market metrics and comparative figures
type MarketBlock struct {
	MarketCap            Number `json:"market_cap"`
	MarketCapChange24h   Number `json:"market_cap_change_24h"`
	CirculatingSupply    Number `json:"circulating_supply"`
	TotalVolume          Number `json:"total_volume"`
	MarketCapToMindshare Number `json:"market_cap_to_mindshare"`
}

// SentimentBlock summarizes social activity around an asset
type SentimentBlock struct {
	Query            string               `json:"query,omitempty"`
	TotalItems       int                  `json:"total_items"`
	TotalLikes       int64                `json:"total_likes"`
	TotalReposts     int64                `json:"total_reposts"`
	TotalReplies     int64                `json:"total_replies"`
	TotalViews       int64                `json:"total_views"`
	AvgEngagement    Number               `json:"avg_engagement"`
	AvgImpressions   Number               `json:"avg_impressions"`
	SentimentScore   Number               `json:"sentiment_score"`
	Mindshare        Number               `json:"mindshare"`
	MindshareHistory []MindsharePoint     `json:"mindshare_history"`
	TopItems         []sources.SocialItem `json:"top_items"`
}

// MindsharePoint is one daily mindshare bucket, as a percentage of the busiest bucket
type MindsharePoint struct {
	At    time.Time `json:"at"`
	Value Number    `json:"value"`
}
