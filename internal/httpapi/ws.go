package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/R3E-Network/gamification-engine/internal/bus"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
	wsSendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Gamification events carry no cross-site credential; any origin
	// may open a feed as long as it presents a valid token.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn tracks one live connection so Stop can close them all before
// the HTTP server itself shuts down, per spec.md §5's "close
// WebSockets" step.
type wsConn struct {
	conn   *websocket.Conn
	send   chan []byte
	userID string
	admin  bool

	closeOnce sync.Once
}

var (
	wsConnsMu sync.Mutex
	wsConns   = map[*wsConn]struct{}{}
)

func registerConn(c *wsConn) {
	wsConnsMu.Lock()
	wsConns[c] = struct{}{}
	wsConnsMu.Unlock()
}

func unregisterConn(c *wsConn) {
	wsConnsMu.Lock()
	delete(wsConns, c)
	wsConnsMu.Unlock()
}

func closeAllConnections() {
	wsConnsMu.Lock()
	conns := make([]*wsConn, 0, len(wsConns))
	for c := range wsConns {
		conns = append(conns, c)
	}
	wsConnsMu.Unlock()

	for _, c := range conns {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(wsWriteWait))
		_ = c.conn.Close()
	}
}

// forward is the bus handler driving this connection's feed. It must
// never block: Emit waits for every handler to settle, so a slow or
// dead connection would otherwise stall every other listener for this
// event. Non-admin connections only receive events whose payload names
// their own userId.
func (c *wsConn) forward(ev bus.Event) error {
	if !c.admin && !eventMentionsUser(ev, c.userID) {
		return nil
	}

	body, err := json.Marshal(map[string]interface{}{
		"id":        ev.ID,
		"name":      ev.Name,
		"data":      ev.Data,
		"timestamp": ev.Timestamp.UnixMilli(),
	})
	if err != nil {
		return err
	}

	select {
	case c.send <- body:
	default:
		// Slow consumer: drop rather than block the bus.
	}
	return nil
}

func eventMentionsUser(ev bus.Event, userID string) bool {
	if userID == "" {
		return false
	}
	data, ok := ev.Data.(map[string]interface{})
	if !ok {
		return false
	}
	for _, key := range []string{"userId", "userID"} {
		if v, ok := data[key].(string); ok && v == userID {
			return true
		}
	}
	return false
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains and discards inbound frames (this feed is
// server-to-client only) until the client disconnects, then runs
// cleanup exactly once.
func (c *wsConn) readPump(cleanup func()) {
	defer c.closeOnce.Do(cleanup)
	defer c.conn.Close()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// handleWebSocket implements `WS /ws?userId=...&token=...`. The token
// is validated the same way an X-API-Key header is: against the admin
// set (subscribes to every event) or the caller set (subscribes to
// every event but filters to ones whose payload names this userId).
func (s *Service) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	token := r.URL.Query().Get("token")
	cfg := s.deps.Config

	admin := matchesAny(cfg.AdminAPIKeys, token)
	if !admin && !matchesAny(cfg.APIKeys, token) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithContext(r.Context()).WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &wsConn{conn: conn, send: make(chan []byte, wsSendBuffer), userID: userID, admin: admin}
	registerConn(c)

	subID, err := s.deps.Bus.OnWildcard("*", c.forward)
	if err != nil {
		unregisterConn(c)
		_ = conn.Close()
		return
	}

	go c.writePump()
	c.readPump(func() {
		s.deps.Bus.OffWildcard(subID)
		unregisterConn(c)
	})
}
