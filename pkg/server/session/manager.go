package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/StrathCole/marketpulse/pkg/logging"
	"github.com/StrathCole/marketpulse/pkg/server/sources"
)

const (
	defaultTick         = 250 * time.Millisecond
	defaultPingInterval = 54 * time.Second
	defaultInboxSize    = 16
)

// Manager creates sessions and tracks the live ones
type Manager struct {
	hub      Hub
	settings Settings
	tracked  map[string]struct{}
	logger   *logging.Logger

	seq      atomic.Uint64
	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

// NewManager creates a session manager
func NewManager(hub Hub, settings Settings, logger *logging.Logger) (*Manager, error) {
	if hub == nil {
		return nil, ErrNoHub
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	if settings.Tick <= 0 {
		settings.Tick = defaultTick
	}
	if settings.PingInterval <= 0 {
		settings.PingInterval = defaultPingInterval
	}
	if settings.InboxSize <= 0 {
		settings.InboxSize = defaultInboxSize
	}

	tracked := make(map[string]struct{}, len(settings.Tracked))
	for _, a := range sources.NormalizeAssets(settings.Tracked) {
		tracked[a] = struct{}{}
	}
	defaults := make([]string, 0, len(settings.DefaultSymbols))
	for _, a := range sources.NormalizeAssets(settings.DefaultSymbols) {
		if _, ok := tracked[a]; ok {
			defaults = append(defaults, a)
		}
	}
	settings.DefaultSymbols = defaults

	return &Manager{
		hub:      hub,
		settings: settings,
		tracked:  tracked,
		logger:   logger.With("component", "session"),
		sessions: make(map[string]*Session),
	}, nil
}

// Serve runs a session on t until ctx ends or the transport fails. It blocks.
func (m *Manager) Serve(ctx context.Context, t Transport) error {
	id := fmt.Sprintf("s-%d", m.seq.Add(1))
	s := newSession(id, t, m.hub, m.settings, m.tracked, m.logger)

	m.mu.Lock()
	m.sessions[id] = s
	m.wg.Add(1)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		m.wg.Done()
	}()

	err := s.Run(ctx)
	if err != nil && !errors.Is(err, ErrTransport) {
		m.logger.Warn("Session ended with error", "session", id, "error", err)
	}
	return err
}

// Count returns the number of live sessions
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll closes every live session and waits for their loops to exit or ctx to end
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	for _, s := range live {
		s.Close()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
