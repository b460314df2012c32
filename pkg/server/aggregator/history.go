package aggregator

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// History keeps a bounded recent-price series per asset, sampled at a fixed interval
type History struct {
	mu       sync.Mutex
	interval time.Duration
	length   int // Samples exposed as sparkline
	capacity int
	series   map[string]*priceSeries
}

type priceSeries struct {
	prices []decimal.Decimal // Oldest first
	lastAt time.Time
	seeded bool
}

// NewHistory creates a history sampling every interval and exposing length samples.
// Storage is max(length, samples-per-hour+1) so the 1h reference is always retained.
func NewHistory(interval time.Duration, length int) *History {
	if interval <= 0 {
		interval = time.Minute
	}
	if length <= 0 {
		length = 1
	}
	h := &History{
		interval: interval,
		length:   length,
		series:   make(map[string]*priceSeries),
	}
	h.capacity = length
	if n := h.SamplesPerHour() + 1; n > h.capacity {
		h.capacity = n
	}
	return h
}

// SamplesPerHour returns N, the number of samples spanning one hour
func (h *History) SamplesPerHour() int {
	n := int(time.Hour / h.interval)
	if n < 1 {
		return 1
	}
	return n
}

// Seed fills an empty series from candle closes taken at the sampling interval. It runs at most once per asset.
func (h *History) Seed(asset string, closes []decimal.Decimal, candle time.Duration, at time.Time) bool {
	if len(closes) == 0 || candle != h.interval {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.seriesLocked(asset)
	if s.seeded || len(s.prices) > 0 {
		return false
	}
	if len(closes) > h.capacity {
		closes = closes[len(closes)-h.capacity:]
	}
	s.prices = append(make([]decimal.Decimal, 0, h.capacity), closes...)
	s.lastAt = at
	s.seeded = true
	return true
}

// Observe appends price when at least one interval has passed since the last sample
func (h *History) Observe(asset string, price decimal.Decimal, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.seriesLocked(asset)
	if len(s.prices) > 0 && at.Sub(s.lastAt) < h.interval {
		return
	}
	s.prices = append(s.prices, price)
	if len(s.prices) > h.capacity {
		s.prices = append(s.prices[:0], s.prices[len(s.prices)-h.capacity:]...)
	}
	s.lastAt = at
}

// Change1h compares current against the sample one hour back.
// Unavailable with fewer than N prior samples or a zero reference.
func (h *History) Change1h(asset string, current decimal.Decimal) Number {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.series[asset]
	if !ok {
		return Unavailable
	}
	n := h.SamplesPerHour()
	if len(s.prices)-1 < n {
		return Unavailable
	}
	ref := s.prices[len(s.prices)-1-n]
	if ref.IsZero() {
		return Unavailable
	}
	return Some(current.Sub(ref).Div(ref).Mul(hundred))
}

// Recent returns up to length of the newest samples, oldest first
func (h *History) Recent(asset string) []Number {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.series[asset]
	if !ok {
		return []Number{}
	}
	prices := s.prices
	if len(prices) > h.length {
		prices = prices[len(prices)-h.length:]
	}
	out := make([]Number, len(prices))
	for i, p := range prices {
		out[i] = Some(p)
	}
	return out
}

// Len returns the number of stored samples for asset
func (h *History) Len(asset string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.series[asset]; ok {
		return len(s.prices)
	}
	return 0
}

func (h *History) seriesLocked(asset string) *priceSeries {
	s, ok := h.series[asset]
	if !ok {
		s = &priceSeries{}
		h.series[asset] = s
	}
	return s
}
