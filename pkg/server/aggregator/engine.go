// Package aggregator merges provider fragments into per-asset snapshots.
package aggregator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/StrathCole/marketpulse/pkg/logging"
	"github.com/StrathCole/marketpulse/pkg/metrics"
	"github.com/StrathCole/marketpulse/pkg/server/cache"
	"github.com/StrathCole/marketpulse/pkg/server/sources"
)

// TTLs holds the cache freshness window per fragment kind
type TTLs struct {
	Ticker    time.Duration
	Metrics   time.Duration
	Sentiment time.Duration
}

// Options configures an Engine
type Options struct {
	Ticker    sources.Provider // Required
	Metrics   sources.Provider // Optional
	Sentiment sources.Provider // Optional
	Cache     *cache.Cache
	TTLs      TTLs
	History   *History
	Names     map[string]string // Asset symbol -> display name
	TopItems  int
	Logger    *logging.Logger
}

// Engine builds snapshots. It is safe for concurrent use.
type Engine struct {
	ticker    sources.Provider
	metrics   sources.Provider
	sentiment sources.Provider
	cache     *cache.Cache
	ttls      TTLs
	history   *History
	names     map[string]string
	topItems  int
	logger    *logging.Logger
	now       func() time.Time
}

// NewEngine creates an aggregation engine
func NewEngine(opts Options) (*Engine, error) {
	if opts.Ticker == nil {
		return nil, ErrNoTickerProvider
	}
	if opts.Cache == nil {
		return nil, ErrNoCache
	}
	if opts.History == nil {
		opts.History = NewHistory(time.Minute, 100)
	}
	if opts.TopItems <= 0 {
		opts.TopItems = 5
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNoopLogger()
	}
	return &Engine{
		ticker:    opts.Ticker,
		metrics:   opts.Metrics,
		sentiment: opts.Sentiment,
		cache:     opts.Cache,
		ttls:      opts.TTLs,
		history:   opts.History,
		names:     opts.Names,
		topItems:  opts.TopItems,
		logger:    opts.Logger,
		now:       time.Now,
	}, nil
}

// BuildSnapshot fetches ticker, metrics and sentiment fragments in parallel and merges them.
// It never fails: a missing ticker yields a degraded snapshot, missing optional fragments omit their blocks.
func (e *Engine) BuildSnapshot(ctx context.Context, asset string) Snapshot {
	asset = sources.NormalizeAsset(asset)
	start := e.now()

	var tick, met, sent sources.Fragment
	var g errgroup.Group
	g.Go(func() error {
		tick = e.fetch(ctx, e.ticker, asset, e.ttls.Ticker)
		return nil
	})
	if e.metrics != nil {
		g.Go(func() error {
			met = e.fetch(ctx, e.metrics, asset, e.ttls.Metrics)
			return nil
		})
	}
	if e.sentiment != nil {
		g.Go(func() error {
			sent = e.fetch(ctx, e.sentiment, asset, e.ttls.Sentiment)
			return nil
		})
	}
	_ = g.Wait()

	snap := e.merge(asset, start, tick, met, sent)
	metrics.RecordSnapshotBuild(asset, snap.Degraded, e.now().Sub(start))
	return snap
}

func (e *Engine) fetch(ctx context.Context, p sources.Provider, asset string, ttl time.Duration) sources.Fragment {
	return e.cache.GetOrFetch(ctx, cache.Key(p.Kind(), asset), ttl, func(fctx context.Context) sources.Fragment {
		return p.Fetch(fctx, asset)
	})
}

func (e *Engine) merge(asset string, at time.Time, tick, met, sent sources.Fragment) Snapshot {
	snap := Snapshot{
		Symbol:      asset,
		Name:        e.displayName(asset),
		GeneratedAt: at,
	}

	switch {
	case tick.OK():
		t := tick.Ticker
		if len(t.Closes) > 0 {
			e.history.Seed(asset, t.Closes, t.CandleInterval, at)
		}
		e.history.Observe(asset, t.Price, at)
		e.applyTicker(&snap, t)
	case tick.HasData():
		snap.Degraded = true
		snap.Stale = true
		e.applyTicker(&snap, tick.Ticker)
		e.logger.Debug("Using stale ticker", "asset", asset, "error", tick.Err)
	default:
		snap.Degraded = true
		e.logger.Warn("No ticker available", "asset", asset, "error", tick.Err)
	}
	snap.Sparkline = e.history.Recent(asset)

	if met.HasData() {
		m := met.Metrics
		snap.Change7d = FromNull(m.PriceChange7d)
		snap.MarketCap = FromNull(m.MarketCap)
		snap.Market = &MarketBlock{
			MarketCap:          FromNull(m.MarketCap),
			MarketCapChange24h: FromNull(m.MarketCapChange24h),
			CirculatingSupply:  FromNull(m.CirculatingSupply),
			TotalVolume:        FromNull(m.TotalVolume),
		}
		snap.Stale = snap.Stale || met.Stale
	}

	if sent.HasData() {
		snap.Sentiment = BuildSentiment(sent.Sentiment, at, e.topItems)
		snap.Stale = snap.Stale || sent.Stale
	}

	if snap.Market != nil && snap.Sentiment != nil {
		snap.Market.MarketCapToMindshare = ratio(snap.Market.MarketCap, snap.Sentiment.Mindshare)
	}

	return snap
}

func (e *Engine) applyTicker(snap *Snapshot, t *sources.Ticker) {
	snap.Price = Some(t.Price)
	snap.Change24h = Some(t.ChangePercent24h)
	snap.Volume24h = Some(t.Volume24h)
	snap.Change1h = e.history.Change1h(snap.Symbol, t.Price)
}

func (e *Engine) displayName(asset string) string {
	if name, ok := e.names[asset]; ok && name != "" {
		return name
	}
	return asset
}

// ratio returns a / b when both are known and b is non-zero
func ratio(a, b Number) Number {
	if !a.Valid || !b.Valid || b.Decimal.IsZero() {
		return Unavailable
	}
	return Some(a.Decimal.Div(b.Decimal))
}
