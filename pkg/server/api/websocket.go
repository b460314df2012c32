package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/StrathCole/marketpulse/pkg/metrics"
)

// handleWebSocket upgrades the connection and runs a subscriber session on it until it ends.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		metrics.RecordHTTPRequest("/ws", "400", time.Since(start))
		s.logger.Warn("Failed to upgrade connection", "remote", r.RemoteAddr, "error", err)
		return
	}
	metrics.RecordHTTPRequest("/ws", "101", time.Since(start))

	t := newWSTransport(conn, s.pongWait, s.writeTimeout)
	s.logger.Info("New WebSocket client connected", "remote", t.RemoteAddr())

	if err := s.sessions.Serve(r.Context(), t); err != nil {
		s.logger.Debug("WebSocket session ended", "remote", t.RemoteAddr(), "error", err)
	}
}

// originChecker allows browser origins from the list; requests without an Origin header always pass
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			set[strings.ToLower(o)] = struct{}{}
		}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.ToLower(origin)]
		return ok
	}
}

// wsTransport adapts a gorilla connection to session.Transport.
// Reads happen on the session's reader goroutine, writes on its loop.
type wsTransport struct {
	conn         *websocket.Conn
	pongWait     time.Duration
	writeTimeout time.Duration
}

func newWSTransport(conn *websocket.Conn, pongWait, writeTimeout time.Duration) *wsTransport {
	t := &wsTransport{conn: conn, pongWait: pongWait, writeTimeout: writeTimeout}
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return t
}

func (t *wsTransport) Receive() ([]byte, error) {
	for {
		kind, data, err := t.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.TextMessage {
			return data, nil
		}
	}
}

func (t *wsTransport) Send(data []byte) error {
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Ping() error {
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeTimeout))
}

// Close sends a close frame and drops the connection. WriteControl is safe alongside the session's writes.
func (t *wsTransport) Close() error {
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return t.conn.Close()
}

func (t *wsTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}
