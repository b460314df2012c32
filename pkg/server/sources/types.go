package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// FragmentKind identifies which payload a Fragment carries
type FragmentKind string

const (
	KindTicker    FragmentKind = "ticker"
	KindMetrics   FragmentKind = "metrics"
	KindSentiment FragmentKind = "sentiment"
)

// ErrorKind classifies an upstream failure
type ErrorKind int

const (
	ErrorKindRateLimited ErrorKind = iota + 1
	ErrorKindTimeout
	ErrorKindBadResponse
	ErrorKindUnreachable
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindRateLimited:
		return "rate_limited"
	case ErrorKindTimeout:
		return "timeout"
	case ErrorKindBadResponse:
		return "bad_response"
	case ErrorKindUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// FetchError describes why a provider could not produce a fragment.
// It matches the package sentinels (ErrRateLimited, ErrTimeout, ...) via errors.Is.
type FetchError struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

// NewFetchError builds a FetchError for provider.
func NewFetchError(provider string, kind ErrorKind, err error) *FetchError {
	return &FetchError{Kind: kind, Provider: provider, Err: err}
}

func (e *FetchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.Kind == ErrorKindRateLimited
	case ErrTimeout:
		return e.Kind == ErrorKindTimeout
	case ErrBadResponse:
		return e.Kind == ErrorKindBadResponse
	case ErrUnreachable:
		return e.Kind == ErrorKindUnreachable
	}
	return false
}

// Ticker is the price payload of a ticker fragment
type Ticker struct {
	Price            decimal.Decimal   `json:"price"`
	ChangePercent24h decimal.Decimal   `json:"change_percent_24h"`
	Volume24h        decimal.Decimal   `json:"volume_24h"`
	Closes           []decimal.Decimal `json:"closes,omitempty"` // Candle closes, oldest first
	CandleInterval   time.Duration     `json:"candle_interval,omitempty"`
}

// Metrics is the market metrics payload. Fields absent upstream stay invalid.
type Metrics struct {
	MarketCap          decimal.NullDecimal `json:"market_cap"`
	MarketCapChange24h decimal.NullDecimal `json:"market_cap_change_24h"`
	PriceChange7d      decimal.NullDecimal `json:"price_change_7d"`
	CirculatingSupply  decimal.NullDecimal `json:"circulating_supply"`
	TotalVolume        decimal.NullDecimal `json:"total_volume"`
}

// SocialItem is one post returned by a sentiment source
type SocialItem struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"` // Zero when upstream timestamp was unparseable
	Author    string    `json:"author"`
	Username  string    `json:"username"`
	Likes     int64     `json:"likes"`
	Reposts   int64     `json:"reposts"`
	Replies   int64     `json:"replies"`
	Views     int64     `json:"views"`
	URL       string    `json:"url,omitempty"`
}

// Sentiment is the social payload of a sentiment fragment
type Sentiment struct {
	Query string       `json:"query,omitempty"`
	Items []SocialItem `json:"items"`
}

// Fragment is the result of one provider fetch for one asset.
// Exactly one payload is set when Err is nil. Fragments are never mutated after creation.
type Fragment struct {
	Kind      FragmentKind `json:"kind"`
	Source    string       `json:"source"`
	Asset     string       `json:"asset"`
	FetchedAt time.Time    `json:"fetched_at"`
	Ticker    *Ticker      `json:"ticker,omitempty"`
	Metrics   *Metrics     `json:"metrics,omitempty"`
	Sentiment *Sentiment   `json:"sentiment,omitempty"`
	Stale     bool         `json:"stale,omitempty"`
	Err       *FetchError  `json:"-"`
}

// OK reports whether the fragment carries data.
func (f Fragment) OK() bool {
	if f.Err != nil {
		return false
	}
	switch f.Kind {
	case KindTicker:
		return f.Ticker != nil
	case KindMetrics:
		return f.Metrics != nil
	case KindSentiment:
		return f.Sentiment != nil
	}
	return false
}

// HasData reports whether a payload is present, ignoring Err.
// A stale fallback carries both the last good payload and the fresh failure.
func (f Fragment) HasData() bool {
	return f.Ticker != nil || f.Metrics != nil || f.Sentiment != nil
}

// AsStale returns a copy marked stale and carrying the failure that forced the fallback.
func (f Fragment) AsStale(cause *FetchError) Fragment {
	f.Stale = true
	f.Err = cause
	return f
}

// FailedFragment returns a fragment carrying only an error.
func FailedFragment(kind FragmentKind, source, asset string, err *FetchError) Fragment {
	return Fragment{
		Kind:      kind,
		Source:    source,
		Asset:     asset,
		FetchedAt: time.Now(),
		Err:       err,
	}
}

// Provider fetches one kind of fragment for an asset.
// Ordinary upstream failures are reported in Fragment.Err, never as a panic or nil fragment.
type Provider interface {
	// Name returns the unique name of this provider
	Name() string

	// Kind returns the fragment kind this provider produces
	Kind() FragmentKind

	// Fetch retrieves a fresh fragment for asset
	Fetch(ctx context.Context, asset string) Fragment
}

// ProviderFactory is a function that creates a new Provider instance
type ProviderFactory func(config map[string]interface{}) (Provider, error)
