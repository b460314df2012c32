package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/marketpulse/pkg/server/aggregator"
)

// fakeTransport is an in-memory Transport
type fakeTransport struct {
	in        chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	sent    [][]byte
	sendErr error
	pings   int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{in: make(chan []byte, 8), closed: make(chan struct{})}
}

func (f *fakeTransport) Receive() ([]byte, error) {
	select {
	case data := <-f.in:
		return data, nil
	case <-f.closed:
		return nil, errors.New("use of closed connection")
	}
}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeTransport) Ping() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return nil
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) RemoteAddr() string { return "10.0.0.1:5555" }

func (f *fakeTransport) failSends(err error) {
	f.mu.Lock()
	f.sendErr = err
	f.mu.Unlock()
}

func (f *fakeTransport) messages(t *testing.T, msgType string) []json.RawMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []json.RawMessage
	for _, raw := range f.sent {
		var env struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &env))
		if env.Type == msgType {
			out = append(out, env.Data)
		}
	}
	return out
}

// fakeHub serves fixed snapshots and records registrations
type fakeHub struct {
	mu       sync.Mutex
	snaps    map[string]aggregator.Snapshot
	interest map[string][]string
}

func newFakeHub(symbols ...string) *fakeHub {
	h := &fakeHub{snaps: make(map[string]aggregator.Snapshot), interest: make(map[string][]string)}
	for _, s := range symbols {
		h.snaps[s] = aggregator.Snapshot{Symbol: s, Price: aggregator.Some(decimal.NewFromInt(100))}
	}
	return h
}

func (h *fakeHub) Register(id string, assets []string) { h.Update(id, assets) }

func (h *fakeHub) Update(id string, assets []string) {
	h.mu.Lock()
	h.interest[id] = assets
	h.mu.Unlock()
}

func (h *fakeHub) Unregister(id string) {
	h.mu.Lock()
	delete(h.interest, id)
	h.mu.Unlock()
}

func (h *fakeHub) Snapshots(assets []string) []aggregator.Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]aggregator.Snapshot, 0, len(assets))
	for _, a := range assets {
		if s, ok := h.snaps[a]; ok {
			out = append(out, s)
		}
	}
	return out
}

func (h *fakeHub) registered(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.interest[id]
	return ok
}

func testSettings() Settings {
	return Settings{
		Tracked:         []string{"BTC", "ETH", "SOL"},
		DefaultSymbols:  []string{"BTC"},
		DefaultInterval: 20 * time.Millisecond,
		MinInterval:     10 * time.Millisecond,
		MaxInterval:     time.Second,
		Tick:            5 * time.Millisecond,
		PingInterval:    time.Hour,
		InboxSize:       4,
	}
}

func newTestManager(t *testing.T, hub Hub) *Manager {
	t.Helper()
	m, err := NewManager(hub, testSettings(), nil)
	require.NoError(t, err)
	return m
}

func snapshotSymbols(t *testing.T, data json.RawMessage) []string {
	t.Helper()
	var snaps []aggregator.Snapshot
	require.NoError(t, json.Unmarshal(data, &snaps))
	out := make([]string, len(snaps))
	for i, s := range snaps {
		out[i] = s.Symbol
	}
	return out
}

func TestNewManager_RequiresHub(t *testing.T) {
	_, err := NewManager(nil, testSettings(), nil)
	assert.ErrorIs(t, err, ErrNoHub)
}

func TestStep_ControlAppliedBeforePush(t *testing.T) {
	hub := newFakeHub("BTC", "ETH")
	m := newTestManager(t, hub)
	tr := newFakeTransport()
	s := newSession("s-1", tr, hub, m.settings, m.tracked, m.logger)

	s.inbox <- []byte(`{"symbols":["eth"],"interval":1}`)
	require.NoError(t, s.step(time.Now()))

	pushes := tr.messages(t, TypeSnapshotData)
	require.Len(t, pushes, 1)
	assert.Equal(t, []string{"ETH"}, snapshotSymbols(t, pushes[0]))
	assert.Equal(t, time.Second, s.interval, "1s is inside [10ms, 1s]")
}

func TestStep_RespectsCadence(t *testing.T) {
	hub := newFakeHub("BTC")
	m := newTestManager(t, hub)
	tr := newFakeTransport()
	s := newSession("s-1", tr, hub, m.settings, m.tracked, m.logger)

	start := time.Now()
	require.NoError(t, s.step(start))
	require.NoError(t, s.step(start.Add(10*time.Millisecond)))
	require.NoError(t, s.step(start.Add(20*time.Millisecond)))

	assert.Len(t, tr.messages(t, TypeSnapshotData), 2)
}

func TestStep_MalformedControlKeepsState(t *testing.T) {
	hub := newFakeHub("BTC")
	m := newTestManager(t, hub)
	s := newSession("s-1", newFakeTransport(), hub, m.settings, m.tracked, m.logger)

	s.inbox <- []byte(`{"symbols":["DOGE"],"interval":30}`)
	s.inbox <- []byte(`not json`)
	require.NoError(t, s.step(time.Now()))

	assert.Equal(t, []string{"BTC"}, s.symbols)
	assert.Equal(t, 20*time.Millisecond, s.interval)
}

func TestRun_SentimentOnConnectAndOnRequest(t *testing.T) {
	hub := newFakeHub("BTC")
	snap := hub.snaps["BTC"]
	snap.Sentiment = &aggregator.SentimentBlock{TotalItems: 3}
	hub.snaps["BTC"] = snap

	m := newTestManager(t, hub)
	tr := newFakeTransport()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Serve(ctx, tr) }()

	require.Eventually(t, func() bool { return len(tr.messages(t, TypeSentimentData)) == 1 }, time.Second, 5*time.Millisecond)

	var first SentimentData
	require.NoError(t, json.Unmarshal(tr.messages(t, TypeSentimentData)[0], &first))
	assert.Equal(t, "BTC", first.Symbol)
	assert.Equal(t, 3, first.TotalItems)

	tr.in <- []byte(`{"type":"request_sentiment"}`)
	assert.Eventually(t, func() bool { return len(tr.messages(t, TypeSentimentData)) == 2 }, time.Second, 5*time.Millisecond)
}

func TestRun_DisconnectIsolation(t *testing.T) {
	hub := newFakeHub("BTC", "ETH")
	m := newTestManager(t, hub)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healthy := newFakeTransport()
	broken := newFakeTransport()
	brokenDone := make(chan error, 1)
	go func() { _ = m.Serve(ctx, healthy) }()
	go func() { brokenDone <- m.Serve(ctx, broken) }()

	require.Eventually(t, func() bool { return m.Count() == 2 }, time.Second, 5*time.Millisecond)
	broken.failSends(errors.New("broken pipe"))

	select {
	case err := <-brokenDone:
		assert.ErrorIs(t, err, ErrTransport)
	case <-time.After(time.Second):
		t.Fatal("broken session did not close")
	}
	assert.Equal(t, 1, m.Count())

	before := len(healthy.messages(t, TypeSnapshotData))
	assert.Eventually(t, func() bool {
		return len(healthy.messages(t, TypeSnapshotData)) >= before+3
	}, time.Second, 5*time.Millisecond)
}

func TestRun_ReaderEndClosesSession(t *testing.T) {
	hub := newFakeHub("BTC")
	m := newTestManager(t, hub)
	tr := newFakeTransport()

	done := make(chan error, 1)
	go func() { done <- m.Serve(context.Background(), tr) }()
	require.Eventually(t, func() bool { return hub.registered("s-1") }, time.Second, 5*time.Millisecond)

	require.NoError(t, tr.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("session did not end after reader stopped")
	}
	assert.False(t, hub.registered("s-1"))
	assert.Equal(t, 0, m.Count())
}

func TestClose_Idempotent(t *testing.T) {
	hub := newFakeHub("BTC")
	m := newTestManager(t, hub)
	s := newSession("s-1", newFakeTransport(), hub, m.settings, m.tracked, m.logger)
	hub.Register("s-1", []string{"BTC"})

	s.Close()
	s.Close()

	assert.Equal(t, StateClosed, s.State())
	assert.False(t, hub.registered("s-1"))
	<-s.Done()
}

func TestClose_ControlAfterCloseDoesNotRestoreInterest(t *testing.T) {
	hub := newFakeHub("BTC", "ETH")
	m := newTestManager(t, hub)
	s := newSession("s-1", newFakeTransport(), hub, m.settings, m.tracked, m.logger)
	hub.Register("s-1", []string{"BTC"})

	s.Close()
	s.applyControl([]byte(`{"symbols":["ETH"]}`))

	assert.False(t, hub.registered("s-1"))
	assert.Equal(t, []string{"ETH"}, s.symbols)
}

func TestRun_AfterCloseDoesNotRegister(t *testing.T) {
	hub := newFakeHub("BTC")
	m := newTestManager(t, hub)
	s := newSession("s-1", newFakeTransport(), hub, m.settings, m.tracked, m.logger)

	s.Close()
	require.NoError(t, s.Run(context.Background()))

	assert.False(t, hub.registered("s-1"))
	assert.Equal(t, StateClosed, s.State())
}

func TestManager_CloseAll(t *testing.T) {
	hub := newFakeHub("BTC")
	m := newTestManager(t, hub)
	for i := 0; i < 3; i++ {
		go func() { _ = m.Serve(context.Background(), newFakeTransport()) }()
	}
	require.Eventually(t, func() bool { return m.Count() == 3 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.CloseAll(ctx))
	assert.Equal(t, 0, m.Count())
}
