// Package cache provides the fallback cache that sits between the aggregation
// engine and upstream providers: a TTL-keyed store of the last good fragment per
// key with single-flight de-duplication and stale fallback on failure.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/StrathCole/marketpulse/pkg/logging"
	"github.com/StrathCole/marketpulse/pkg/metrics"
	"github.com/StrathCole/marketpulse/pkg/server/sources"
)

const (
	defaultMaxAge         = time.Hour
	defaultFailureBackoff = 30 * time.Second
	storeTimeout          = time.Second
)

// Lookup results recorded in metrics
const (
	resultHit      = "hit"
	resultMiss     = "miss"
	resultStale    = "stale"
	resultStoreHit = "store_stale"
	resultFail     = "fail"
	resultBackoff  = "backoff"
	resultPending  = "refresh_pending"
)

// FetchFunc produces a fresh fragment for a cache key
type FetchFunc func(ctx context.Context) sources.Fragment

type entry struct {
	frag      sources.Fragment
	storedAt  time.Time
	expiresAt time.Time
}

// failure remembers a failed fetch so the key is not retried upstream until the window ends
type failure struct {
	frag  sources.Fragment
	until time.Time
}

// Options configures a Cache
type Options struct {
	MaxAge time.Duration // Entries older than this are evicted
	Store  Store         // Optional second tier, read only as a stale fallback
	Logger *logging.Logger

	// FailureBackoff caps how long a failed fetch is remembered. The window is min(ttl, FailureBackoff).
	FailureBackoff time.Duration
	// RefreshWait bounds how long a caller holding an expired entry waits for its refresh.
	// Zero waits for the refresh to finish.
	RefreshWait time.Duration
}

// Cache is safe for concurrent use. Distinct keys never wait on each other.
type Cache struct {
	mu      sync.Mutex
	entries     map[string]entry
	failures    map[string]failure
	group       singleflight.Group
	maxAge      time.Duration
	backoff     time.Duration
	refreshWait time.Duration
	store       Store
	logger      *logging.Logger
	now         func() time.Time
}

// New creates a cache
func New(opts Options) *Cache {
	if opts.MaxAge <= 0 {
		opts.MaxAge = defaultMaxAge
	}
	if opts.FailureBackoff <= 0 {
		opts.FailureBackoff = defaultFailureBackoff
	}
	if opts.RefreshWait < 0 {
		opts.RefreshWait = 0
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNoopLogger()
	}
	return &Cache{
		entries:     make(map[string]entry),
		failures:    make(map[string]failure),
		maxAge:      opts.MaxAge,
		backoff:     opts.FailureBackoff,
		refreshWait: opts.RefreshWait,
		store:       opts.Store,
		logger:      opts.Logger,
		now:         time.Now,
	}
}

// Key builds the cache key for a fragment kind and asset
func Key(kind sources.FragmentKind, asset string) string {
	return string(kind) + ":" + sources.NormalizeAsset(asset)
}

func splitKey(key string) (sources.FragmentKind, string) {
	kind, asset, _ := strings.Cut(key, ":")
	return sources.FragmentKind(kind), asset
}

// GetOrFetch returns the live entry for key or calls fetch once for all concurrent callers.
// On fetch failure the newest expired entry is returned marked stale, then the store
// tier, then the failure itself. A failure is remembered for min(ttl, FailureBackoff)
// and served from the same fallback chain without calling fetch again.
// The fetch is detached from ctx so that one caller leaving does not fail the shared
// flight; ctx only bounds this caller's wait. With RefreshWait set, a caller holding an
// expired entry gets it back stale once the wait elapses while the refresh continues.
func (c *Cache) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc) sources.Fragment {
	kind, _ := splitKey(key)

	if frag, ok := c.fresh(key); ok {
		metrics.RecordCacheLookup(string(kind), resultHit)
		return frag
	}
	if failed, ok := c.failing(key); ok {
		metrics.RecordCacheLookup(string(kind), resultBackoff)
		return c.fallback(key, failed)
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		// Another flight may have filled the entry while this one was queued.
		if frag, ok := c.fresh(key); ok {
			metrics.RecordCacheLookup(string(kind), resultHit)
			return frag, nil
		}
		if failed, ok := c.failing(key); ok {
			return c.fallback(key, failed), nil
		}

		frag := fetch(context.WithoutCancel(ctx))
		if frag.OK() {
			c.put(key, frag, ttl)
			metrics.RecordCacheLookup(string(kind), resultMiss)
			return frag, nil
		}
		c.markFailed(key, frag, ttl)
		return c.fallback(key, frag), nil
	})

	var wait <-chan time.Time
	if c.refreshWait > 0 {
		if _, ok := c.lastKnown(key); ok {
			timer := time.NewTimer(c.refreshWait)
			defer timer.Stop()
			wait = timer.C
		}
	}

	for {
		select {
		case <-ctx.Done():
			if frag, ok := c.lastKnown(key); ok {
				return frag.AsStale(sources.NewFetchError(frag.Source, sources.ErrorKindTimeout, ctx.Err()))
			}
			_, asset := splitKey(key)
			return sources.FailedFragment(kind, "cache", asset,
				sources.NewFetchError("cache", sources.ErrorKindTimeout, ctx.Err()))
		case <-wait:
			if frag, ok := c.lastKnown(key); ok {
				metrics.RecordCacheLookup(string(kind), resultPending)
				return frag.AsStale(sources.NewFetchError(frag.Source, sources.ErrorKindTimeout, ErrRefreshPending))
			}
			wait = nil
		case res := <-ch:
			return res.Val.(sources.Fragment)
		}
	}
}

// failing returns the remembered failure for key while its window is open
func (c *Cache) failing(key string) (sources.Fragment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.failures[key]
	if !ok {
		return sources.Fragment{}, false
	}
	if !c.now().Before(f.until) {
		delete(c.failures, key)
		return sources.Fragment{}, false
	}
	return f.frag, true
}

func (c *Cache) markFailed(key string, frag sources.Fragment, ttl time.Duration) {
	window := ttl
	if window > c.backoff {
		window = c.backoff
	}
	if window <= 0 {
		return
	}
	c.mu.Lock()
	c.failures[key] = failure{frag: frag, until: c.now().Add(window)}
	c.mu.Unlock()
}

// fallback resolves a failed fetch against the memory tier and then the store tier
func (c *Cache) fallback(key string, failed sources.Fragment) sources.Fragment {
	kind, _ := splitKey(key)

	if frag, ok := c.lastKnown(key); ok {
		metrics.RecordCacheLookup(string(kind), resultStale)
		return frag.AsStale(failed.Err)
	}

	if c.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		frag, ok, err := c.store.Load(ctx, key)
		if err != nil {
			c.logger.Warn("Cache store load failed", "key", key, "error", err)
		}
		if ok && c.now().Sub(frag.FetchedAt) <= c.maxAge {
			c.mu.Lock()
			if _, exists := c.entries[key]; !exists {
				c.entries[key] = entry{frag: frag, storedAt: frag.FetchedAt, expiresAt: frag.FetchedAt}
			}
			c.mu.Unlock()
			metrics.RecordCacheLookup(string(kind), resultStoreHit)
			return frag.AsStale(failed.Err)
		}
	}

	metrics.RecordCacheLookup(string(kind), resultFail)
	return failed
}

// fresh returns a non-expired entry
func (c *Cache) fresh(key string) (sources.Fragment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.liveLocked(key)
	if !ok || !c.now().Before(e.expiresAt) {
		return sources.Fragment{}, false
	}
	return e.frag, true
}

// lastKnown returns any entry still within max age, expired or not
func (c *Cache) lastKnown(key string) (sources.Fragment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.liveLocked(key)
	return e.frag, ok
}

// liveLocked evicts the entry when it is past max age
func (c *Cache) liveLocked(key string) (entry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return entry{}, false
	}
	if c.now().Sub(e.storedAt) > c.maxAge {
		delete(c.entries, key)
		return entry{}, false
	}
	return e, true
}

func (c *Cache) put(key string, frag sources.Fragment, ttl time.Duration) {
	now := c.now()
	c.mu.Lock()
	c.entries[key] = entry{frag: frag, storedAt: now, expiresAt: now.Add(ttl)}
	delete(c.failures, key)
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := c.store.Save(ctx, key, frag, c.maxAge); err != nil {
		c.logger.Warn("Cache store save failed", "key", key, "error", err)
	}
}

// Sweep drops every entry older than max age and returns how many were removed
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if now.Sub(e.storedAt) > c.maxAge {
			delete(c.entries, key)
			removed++
		}
	}
	for key, f := range c.failures {
		if !now.Before(f.until) {
			delete(c.failures, key)
		}
	}
	return removed
}

// Run sweeps on every interval until ctx is done
func (c *Cache) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.logger.Debug("Swept cache entries", "removed", n)
			}
		}
	}
}

// Len returns the number of entries currently held in memory
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
