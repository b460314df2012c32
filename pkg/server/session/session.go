// Package session runs one loop per subscriber, interleaving control messages with timed pushes.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/StrathCole/marketpulse/pkg/logging"
	"github.com/StrathCole/marketpulse/pkg/metrics"
	"github.com/StrathCole/marketpulse/pkg/server/aggregator"
)

// State is a session lifecycle state
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Outbound message types
const (
	TypeSnapshotData  = "snapshot_data"
	TypeSentimentData = "sentiment_data"
)

// Transport is a bidirectional message stream to one subscriber.
// Send and Ping are only called from the session loop; Receive only from the reader goroutine.
type Transport interface {
	Receive() ([]byte, error)
	Send(data []byte) error
	Ping() error
	Close() error
	RemoteAddr() string
}

// Hub is where sessions register interest and read built snapshots
type Hub interface {
	Register(sessionID string, assets []string)
	Update(sessionID string, assets []string)
	Unregister(sessionID string)
	Snapshots(assets []string) []aggregator.Snapshot
}

// Settings shared by every session
type Settings struct {
	Tracked         []string
	DefaultSymbols  []string
	DefaultInterval time.Duration
	MinInterval     time.Duration
	MaxInterval     time.Duration
	Tick            time.Duration
	PingInterval    time.Duration
	InboxSize       int
}

// Message is the outbound envelope
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SentimentData is the payload of a sentiment_data message
type SentimentData struct {
	Symbol string `json:"symbol"`
	*aggregator.SentimentBlock
}

// Session is one subscriber. Subscriptions, cadence and lastPushedAt are owned by its loop.
type Session struct {
	id        string
	transport Transport
	hub       Hub
	settings  Settings
	tracked   map[string]struct{}
	logger    *logging.Logger

	symbols          []string
	interval         time.Duration
	lastPushedAt     time.Time
	sentimentPending bool

	inbox     chan []byte
	readDone  chan struct{}
	done      chan struct{}
	state     atomic.Int32
	closeOnce sync.Once

	// interestMu orders hub calls so no Register or Update follows Unregister
	interestMu   sync.Mutex
	unregistered bool
}

func newSession(id string, t Transport, hub Hub, settings Settings, tracked map[string]struct{}, logger *logging.Logger) *Session {
	s := &Session{
		id:        id,
		transport: t,
		hub:       hub,
		settings:  settings,
		tracked:   tracked,
		logger:    logger.With("session", id, "remote", t.RemoteAddr()),
		symbols:   append([]string(nil), settings.DefaultSymbols...),
		interval:  Clamp(settings.DefaultInterval, settings.MinInterval, settings.MaxInterval),
		inbox:     make(chan []byte, settings.InboxSize),
		readDone:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

// ID returns the session identifier
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state
func (s *Session) State() State { return State(s.state.Load()) }

// Done is closed once the session has fully closed
func (s *Session) Done() <-chan struct{} { return s.done }

// Run activates the session and loops until ctx ends or the transport fails.
// The session is closed when Run returns.
func (s *Session) Run(ctx context.Context) error {
	defer s.Close()

	s.interestMu.Lock()
	if s.unregistered {
		s.interestMu.Unlock()
		return nil
	}
	s.state.Store(int32(StateActive))
	s.hub.Register(s.id, s.symbols)
	s.interestMu.Unlock()
	metrics.RecordSessionOpened()
	s.logger.Info("Session active", "symbols", s.symbols, "interval", s.interval)

	go s.readLoop()

	s.sentimentPending = true
	if err := s.sendSentiment(); err != nil {
		return err
	}

	tick := time.NewTicker(s.settings.Tick)
	defer tick.Stop()
	ping := time.NewTicker(s.settings.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.readDone:
			return nil
		case <-s.done:
			return nil
		case <-ping.C:
			if err := s.transport.Ping(); err != nil {
				return s.transportFailed("ping", err)
			}
		case now := <-tick.C:
			if err := s.step(now); err != nil {
				return err
			}
		}
	}
}

// step is one loop iteration: apply queued control messages, then decide on a push
func (s *Session) step(now time.Time) error {
	s.drainControl()

	if s.sentimentPending {
		if err := s.sendSentiment(); err != nil {
			return err
		}
	}

	if !s.lastPushedAt.IsZero() && now.Sub(s.lastPushedAt) < s.interval {
		return nil
	}
	snaps := s.hub.Snapshots(s.symbols)
	if len(snaps) == 0 {
		return nil
	}
	if err := s.send(Message{Type: TypeSnapshotData, Data: snaps}); err != nil {
		return err
	}
	s.lastPushedAt = now
	return nil
}

func (s *Session) drainControl() {
	for {
		select {
		case data := <-s.inbox:
			s.applyControl(data)
		default:
			return
		}
	}
}

func (s *Session) applyControl(data []byte) {
	ctl, err := ParseControl(data, s.tracked, s.settings.MinInterval, s.settings.MaxInterval)
	if err != nil {
		metrics.RecordControlMessage("malformed")
		s.logger.Warn("Dropping control message", "error", err)
		return
	}
	if ctl.Empty() {
		metrics.RecordControlMessage("ignored")
		return
	}
	metrics.RecordControlMessage("applied")

	if ctl.Symbols != nil {
		s.symbols = ctl.Symbols
		s.updateInterest()
	}
	if ctl.HasInterval {
		s.interval = ctl.Interval
	}
	if ctl.RequestSentiment {
		s.sentimentPending = true
	}
	s.logger.Debug("Control applied", "symbols", s.symbols, "interval", s.interval)
}

// sendSentiment writes one sentiment_data message per subscribed asset that has a sentiment block.
// It stays pending until every subscribed asset has been built at least once.
func (s *Session) sendSentiment() error {
	snaps := s.hub.Snapshots(s.symbols)
	for _, snap := range snaps {
		if snap.Sentiment == nil {
			continue
		}
		msg := Message{Type: TypeSentimentData, Data: SentimentData{Symbol: snap.Symbol, SentimentBlock: snap.Sentiment}}
		if err := s.send(msg); err != nil {
			return err
		}
	}
	s.sentimentPending = len(snaps) < len(s.symbols)
	return nil
}

func (s *Session) send(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("Failed to marshal message", "type", msg.Type, "error", err)
		return nil
	}
	if err := s.transport.Send(data); err != nil {
		return s.transportFailed("send", err)
	}
	metrics.RecordSessionPush(msg.Type)
	return nil
}

func (s *Session) transportFailed(op string, err error) error {
	s.logger.Debug("Transport failed", "op", op, "error", err)
	return fmt.Errorf("%w: %s: %v", ErrTransport, op, err)
}

// readLoop feeds the inbox until the transport fails or the session closes
func (s *Session) readLoop() {
	defer close(s.readDone)
	for {
		data, err := s.transport.Receive()
		if err != nil {
			if s.State() == StateActive {
				s.logger.Debug("Reader stopped", "error", err)
			}
			return
		}
		select {
		case s.inbox <- data:
		case <-s.done:
			return
		}
	}
}

func (s *Session) updateInterest() {
	s.interestMu.Lock()
	defer s.interestMu.Unlock()
	if s.unregistered {
		return
	}
	s.hub.Update(s.id, s.symbols)
}

// Close unregisters the session and closes its transport. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.interestMu.Lock()
		wasActive := s.State() == StateActive
		s.state.Store(int32(StateClosing))
		s.unregistered = true
		s.hub.Unregister(s.id)
		s.interestMu.Unlock()
		if err := s.transport.Close(); err != nil {
			s.logger.Debug("Transport close failed", "error", err)
		}
		s.state.Store(int32(StateClosed))
		close(s.done)
		if wasActive {
			metrics.RecordSessionClosed()
		}
		s.logger.Info("Session closed")
	})
}
