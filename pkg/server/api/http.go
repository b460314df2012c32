// Package api provides the HTTP and WebSocket endpoints of the snapshot server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/StrathCole/marketpulse/pkg/logging"
	"github.com/StrathCole/marketpulse/pkg/metrics"
	"github.com/StrathCole/marketpulse/pkg/server/aggregator"
	"github.com/StrathCole/marketpulse/pkg/server/session"
	"github.com/StrathCole/marketpulse/pkg/server/sources"
)

const lookupTimeout = 10 * time.Second

// SnapshotSource returns snapshots for arbitrary tracked assets
type SnapshotSource interface {
	Lookup(ctx context.Context, assets []string) []aggregator.Snapshot
}

// SessionServer runs a subscriber session on a transport until it ends
type SessionServer interface {
	Serve(ctx context.Context, t session.Transport) error
}

// Options configures a Server
type Options struct {
	Addr         string
	Tracked      []string
	Snapshots    SnapshotSource
	Sessions     SessionServer
	AllowOrigins []string // Empty or "*" allows any origin
	PongWait     time.Duration
	WriteTimeout time.Duration
	Logger       *logging.Logger
}

// Server represents the HTTP API server.
type Server struct {
	addr         string
	tracked      []string
	trackedSet   map[string]struct{}
	snapshots    SnapshotSource
	sessions     SessionServer
	upgrader     websocket.Upgrader
	pongWait     time.Duration
	writeTimeout time.Duration
	logger       *logging.Logger

	mu      sync.Mutex
	server  *http.Server
	stopped bool
}

// NewServer creates a new HTTP API server.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.NewNoopLogger()
	}
	if opts.PongWait <= 0 {
		opts.PongWait = 60 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}

	tracked := sources.NormalizeAssets(opts.Tracked)
	set := make(map[string]struct{}, len(tracked))
	for _, a := range tracked {
		set[a] = struct{}{}
	}

	s := &Server{
		addr:         opts.Addr,
		tracked:      tracked,
		trackedSet:   set,
		snapshots:    opts.Snapshots,
		sessions:     opts.Sessions,
		pongWait:     opts.PongWait,
		writeTimeout: opts.WriteTimeout,
		logger:       opts.Logger.With("component", "api"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(opts.AllowOrigins),
	}
	return s
}

// Handler returns the route multiplexer
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/snapshots", s.handleSnapshots)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Start serves until Stop is called. Request contexts derive from ctx, so cancelling it ends live sessions.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.server = srv
	s.mu.Unlock()

	s.logger.Info("Starting HTTP server", "addr", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	srv := s.server
	s.mu.Unlock()

	if srv != nil {
		s.logger.Info("Stopping HTTP server")
		return srv.Shutdown(ctx)
	}
	return nil
}

// handleHealth handles /health endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	start := time.Now()
	defer func() {
		metrics.RecordHTTPRequest("/health", "200", time.Since(start))
	}()

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleSnapshots handles /v1/snapshots?symbols=BTC,ETH
func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	defer func() {
		metrics.RecordHTTPRequest("/v1/snapshots", strconv.Itoa(status), time.Since(start))
	}()

	if r.Method != http.MethodGet {
		status = http.StatusMethodNotAllowed
		http.Error(w, "method not allowed", status)
		return
	}

	assets, err := s.requestedAssets(r.URL.Query().Get("symbols"))
	if err != nil {
		status = http.StatusBadRequest
		http.Error(w, err.Error(), status)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), lookupTimeout)
	defer cancel()
	s.sendJSON(w, s.snapshots.Lookup(ctx, assets))
}

// requestedAssets parses a comma-separated symbol list; empty means every tracked asset
func (s *Server) requestedAssets(param string) ([]string, error) {
	if strings.TrimSpace(param) == "" {
		return s.tracked, nil
	}
	var unknown []string
	assets := sources.NormalizeAssets(strings.Split(param, ","))
	for _, a := range assets {
		if _, ok := s.trackedSet[a]; !ok {
			unknown = append(unknown, a)
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, strings.Join(unknown, ","))
	}
	if len(assets) == 0 {
		return s.tracked, nil
	}
	return assets, nil
}

// sendJSON sends a JSON response.
func (s *Server) sendJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}
