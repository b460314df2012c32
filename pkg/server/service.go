// Package server wires providers, cache, aggregation, broadcast and sessions into one service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/StrathCole/marketpulse/pkg/config"
	"github.com/StrathCole/marketpulse/pkg/logging"
	"github.com/StrathCole/marketpulse/pkg/server/aggregator"
	"github.com/StrathCole/marketpulse/pkg/server/api"
	"github.com/StrathCole/marketpulse/pkg/server/broadcast"
	"github.com/StrathCole/marketpulse/pkg/server/cache"
	"github.com/StrathCole/marketpulse/pkg/server/session"
	"github.com/StrathCole/marketpulse/pkg/server/sources"

	// Provider registrations
	_ "github.com/StrathCole/marketpulse/pkg/server/sources/cex"
	_ "github.com/StrathCole/marketpulse/pkg/server/sources/social"
)

const (
	shutdownTimeout = 10 * time.Second
	redisTimeout    = 5 * time.Second
)

// ErrNoTickerProvider indicates that no enabled ticker source could be created.
var ErrNoTickerProvider = errors.New("no ticker provider available")

// Service owns every long-lived component. Nothing is kept in package globals.
type Service struct {
	cfg    *config.Config
	logger *logging.Logger

	redis       *redis.Client
	cache       *cache.Cache
	engine      *aggregator.Engine
	coordinator *broadcast.Coordinator
	sessions    *session.Manager
	api         *api.Server
}

// New builds the service from a validated configuration. It connects to Redis when enabled.
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Service, error) {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	s := &Service{cfg: cfg, logger: logger}

	var store cache.Store
	if cfg.Cache.Redis.Enabled {
		rctx, cancel := context.WithTimeout(ctx, redisTimeout)
		client, err := cache.OpenRedis(rctx, cfg.Cache.Redis)
		cancel()
		if err != nil {
			// The memory tier still works without the store
			logger.Warn("Redis unavailable, continuing without second cache tier", "addr", cfg.Cache.Redis.Addr, "error", err)
		} else {
			s.redis = client
			store = cache.NewRedisStore(client, cfg.Cache.Redis.Prefix)
			logger.Info("Connected to Redis cache tier", "addr", cfg.Cache.Redis.Addr, "prefix", cfg.Cache.Redis.Prefix)
		}
	}
	s.cache = cache.New(cache.Options{
		MaxAge:         cfg.Cache.MaxAge.ToDuration(),
		FailureBackoff: cfg.Cache.FailureBackoff.ToDuration(),
		RefreshWait:    cfg.Cache.RefreshWait.ToDuration(),
		Store:          store,
		Logger:         logger.With("component", "cache"),
	})

	ticker, err := s.buildProvider(config.SourceTypeTicker)
	if err != nil {
		return nil, err
	}
	if ticker == nil {
		return nil, ErrNoTickerProvider
	}
	metricsProvider, err := s.buildProvider(config.SourceTypeMetrics)
	if err != nil {
		return nil, err
	}
	sentiment, err := s.buildProvider(config.SourceTypeSentiment)
	if err != nil {
		return nil, err
	}

	names := make(map[string]string, len(cfg.Assets))
	for _, a := range cfg.Assets {
		names[a.Symbol] = a.Name
	}

	s.engine, err = aggregator.NewEngine(aggregator.Options{
		Ticker:    ticker,
		Metrics:   metricsProvider,
		Sentiment: sentiment,
		Cache:     s.cache,
		TTLs: aggregator.TTLs{
			Ticker:    cfg.Cache.TickerTTL.ToDuration(),
			Metrics:   cfg.Cache.MetricsTTL.ToDuration(),
			Sentiment: cfg.Cache.SentimentTTL.ToDuration(),
		},
		History:  aggregator.NewHistory(cfg.Aggregation.SamplingInterval.ToDuration(), cfg.Aggregation.SeriesLength),
		Names:    names,
		TopItems: cfg.Aggregation.TopItems,
		Logger:   logger.With("component", "aggregator"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create aggregation engine: %w", err)
	}

	s.coordinator, err = broadcast.New(broadcast.Options{
		Builder:  s.engine,
		BaseTick: cfg.Server.BaseTick.ToDuration(),
		Parallel: cfg.Server.BuildParallel,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create broadcast coordinator: %w", err)
	}

	sc := cfg.Session
	s.sessions, err = session.NewManager(s.coordinator, session.Settings{
		Tracked:         cfg.TrackedSymbols(),
		DefaultSymbols:  sc.DefaultSymbols,
		DefaultInterval: sc.DefaultInterval.ToDuration(),
		MinInterval:     sc.MinInterval.ToDuration(),
		MaxInterval:     sc.MaxInterval.ToDuration(),
		Tick:            sc.Tick.ToDuration(),
		PingInterval:    sc.PingInterval.ToDuration(),
		InboxSize:       sc.InboxSize,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	s.api = api.NewServer(api.Options{
		Addr:         cfg.Server.Addr,
		Tracked:      cfg.TrackedSymbols(),
		Snapshots:    s.coordinator,
		Sessions:     s.sessions,
		AllowOrigins: cfg.Server.AllowOrigins,
		PongWait:     sc.PongWait.ToDuration(),
		WriteTimeout: sc.WriteTimeout.ToDuration(),
		Logger:       logger,
	})

	return s, nil
}

// buildProvider creates every enabled source of one type and chains them in declaration order,
// each later one serving as fallback for the ones before it. It returns nil when none is usable.
func (s *Service) buildProvider(sourceType string) (sources.Provider, error) {
	var chain sources.Provider
	for _, sc := range s.cfg.EnabledSources(sourceType) {
		s.logger.Info("Initializing source", "type", sc.Type, "name", sc.Name, "api_url", sc.GetString("api_url", "default"))

		provider, err := sources.Create(sc.Type, sc.Name, s.providerConfig(sc))
		if err != nil {
			if errors.Is(err, sources.ErrUnknownProvider) {
				return nil, err
			}
			s.logger.Warn("Failed to create source", "type", sc.Type, "name", sc.Name, "error", err)
			continue
		}

		if chain == nil {
			chain = provider
			continue
		}
		chain = sources.NewFallbackProvider(chain, provider, s.logger.With("component", "fallback", "kind", sourceType))
	}

	return chain, nil
}

// providerConfig copies a source config and injects the logger and per-asset search queries
func (s *Service) providerConfig(sc config.SourceConfig) map[string]interface{} {
	out := make(map[string]interface{}, len(sc.Config)+2)
	for k, v := range sc.Config {
		out[k] = v
	}
	out["logger"] = s.logger

	if sc.Type == config.SourceTypeSentiment {
		if _, ok := out["queries"]; !ok {
			queries := make(map[string]interface{}, len(s.cfg.Assets))
			for _, a := range s.cfg.Assets {
				queries[a.Symbol] = a.Query
			}
			out["queries"] = queries
		}
	}
	return out
}

// Run serves until ctx is cancelled or a component fails, then shuts everything down.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.coordinator.Run(gctx)
	})
	g.Go(func() error {
		s.cache.Run(gctx, s.cfg.Cache.MaxAge.ToDuration())
		return nil
	})
	g.Go(func() error {
		return s.api.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})

	return g.Wait()
}

func (s *Service) shutdown() error {
	s.logger.Info("Shutting down service")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.api.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop HTTP server: %w", err))
	}
	if err := s.sessions.CloseAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to close sessions: %w", err))
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Coordinator exposes the broadcast coordinator
func (s *Service) Coordinator() *broadcast.Coordinator { return s.coordinator }

// Handler exposes the HTTP routes
func (s *Service) Handler() http.Handler { return s.api.Handler() }
