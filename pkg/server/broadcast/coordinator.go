// Package broadcast runs the shared base tick that builds snapshots for every subscribed asset.
package broadcast

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/StrathCole/marketpulse/pkg/logging"
	"github.com/StrathCole/marketpulse/pkg/metrics"
	"github.com/StrathCole/marketpulse/pkg/server/aggregator"
	"github.com/StrathCole/marketpulse/pkg/server/sources"
)

const defaultParallel = 4

// Builder produces one snapshot for an asset
type Builder interface {
	BuildSnapshot(ctx context.Context, asset string) aggregator.Snapshot
}

// Frame is the immutable result of one base tick
type Frame struct {
	Tick      uint64
	At        time.Time
	Snapshots map[string]aggregator.Snapshot
}

// Options configures a Coordinator
type Options struct {
	Builder  Builder
	BaseTick time.Duration
	Parallel int // Concurrent builds per tick
	Logger   *logging.Logger
}

// Coordinator tracks which assets live sessions want and builds each one once per tick.
// Register, Update and Unregister never wait on a build.
type Coordinator struct {
	builder  Builder
	baseTick time.Duration
	parallel int
	logger   *logging.Logger

	mu       sync.Mutex
	interest map[string][]string // Session ID -> assets

	frame atomic.Pointer[Frame]
	ticks atomic.Uint64
	nudge chan struct{}
	now   func() time.Time
}

// New creates a coordinator
func New(opts Options) (*Coordinator, error) {
	if opts.Builder == nil {
		return nil, ErrNoBuilder
	}
	if opts.BaseTick <= 0 {
		return nil, ErrInvalidBaseTick
	}
	if opts.Parallel <= 0 {
		opts.Parallel = defaultParallel
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNoopLogger()
	}

	c := &Coordinator{
		builder:  opts.Builder,
		baseTick: opts.BaseTick,
		parallel: opts.Parallel,
		logger:   opts.Logger.With("component", "broadcast"),
		interest: make(map[string][]string),
		nudge:    make(chan struct{}, 1),
		now:      time.Now,
	}
	c.frame.Store(&Frame{Snapshots: map[string]aggregator.Snapshot{}})
	return c, nil
}

// Register records the assets a session wants
func (c *Coordinator) Register(sessionID string, assets []string) {
	c.Update(sessionID, assets)
}

// Update replaces the assets a session wants. Assets missing from the latest frame trigger an early tick.
func (c *Coordinator) Update(sessionID string, assets []string) {
	assets = sources.NormalizeAssets(assets)

	c.mu.Lock()
	c.interest[sessionID] = assets
	c.mu.Unlock()

	latest := c.frame.Load()
	for _, a := range assets {
		if _, ok := latest.Snapshots[a]; !ok {
			c.wake()
			return
		}
	}
}

// Unregister forgets a session; its assets drop out of the next tick's union
func (c *Coordinator) Unregister(sessionID string) {
	c.mu.Lock()
	delete(c.interest, sessionID)
	c.mu.Unlock()
}

// Sessions returns the number of registered sessions
func (c *Coordinator) Sessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.interest)
}

// Interest returns the sorted union of all registered assets
func (c *Coordinator) Interest() []string {
	c.mu.Lock()
	seen := make(map[string]struct{})
	for _, assets := range c.interest {
		for _, a := range assets {
			seen[a] = struct{}{}
		}
	}
	c.mu.Unlock()

	union := make([]string, 0, len(seen))
	for a := range seen {
		union = append(union, a)
	}
	sort.Strings(union)
	return union
}

func (c *Coordinator) wake() {
	select {
	case c.nudge <- struct{}{}:
	default:
	}
}

// Run ticks until ctx is done. The first tick runs immediately.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info("Starting broadcast coordinator", "base_tick", c.baseTick, "parallel", c.parallel)

	ticker := time.NewTicker(c.baseTick)
	defer ticker.Stop()

	c.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Broadcast coordinator stopped")
			return nil
		case <-ticker.C:
			c.Tick(ctx)
		case <-c.nudge:
			c.Tick(ctx)
		}
	}
}

// Tick builds one snapshot per asset in the current union and publishes the frame
func (c *Coordinator) Tick(ctx context.Context) *Frame {
	start := c.now()
	union := c.Interest()

	var mu sync.Mutex
	snaps := make(map[string]aggregator.Snapshot, len(union))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallel)
	for _, asset := range union {
		asset := asset
		g.Go(func() error {
			snap := c.builder.BuildSnapshot(gctx, asset)
			mu.Lock()
			snaps[asset] = snap
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	frame := &Frame{
		Tick:      c.ticks.Add(1),
		At:        start,
		Snapshots: snaps,
	}
	c.frame.Store(frame)

	elapsed := c.now().Sub(start)
	metrics.RecordBaseTick(elapsed)
	if elapsed > c.baseTick {
		c.logger.Warn("Base tick overran", "elapsed", elapsed, "assets", len(union))
	} else {
		c.logger.Debug("Base tick done", "tick", frame.Tick, "assets", len(union), "elapsed", elapsed)
	}
	return frame
}

// Latest returns the most recently published frame
func (c *Coordinator) Latest() *Frame {
	return c.frame.Load()
}

// Snapshots returns the latest snapshots for assets in the requested order, skipping any not yet built
func (c *Coordinator) Snapshots(assets []string) []aggregator.Snapshot {
	latest := c.frame.Load()
	out := make([]aggregator.Snapshot, 0, len(assets))
	for _, a := range assets {
		if snap, ok := latest.Snapshots[sources.NormalizeAsset(a)]; ok {
			out = append(out, snap)
		}
	}
	return out
}

// Lookup is Snapshots for callers outside the session registry: assets missing from the
// latest frame are built on demand through the same builder.
func (c *Coordinator) Lookup(ctx context.Context, assets []string) []aggregator.Snapshot {
	assets = sources.NormalizeAssets(assets)
	latest := c.frame.Load()

	out := make([]aggregator.Snapshot, len(assets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallel)
	for i, a := range assets {
		if snap, ok := latest.Snapshots[a]; ok {
			out[i] = snap
			continue
		}
		i, a := i, a
		g.Go(func() error {
			out[i] = c.builder.BuildSnapshot(gctx, a)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
