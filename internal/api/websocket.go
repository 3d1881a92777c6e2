package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/blockrelay/blockrelay/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsSendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  512,
	WriteBufferSize: 1024,
	// The feed is read-only and token gated when auth is configured
	CheckOrigin: func(*http.Request) bool { return true },
}

// clientIP prefers proxy headers over the socket address
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(ip)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// eventFilter selects event types for one subscriber. A nil filter passes everything.
type eventFilter map[string]bool

func parseEventFilter(raw string) eventFilter {
	if raw == "" {
		return nil
	}
	f := eventFilter{}
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			f[name] = true
		}
	}
	if len(f) == 0 {
		return nil
	}
	return f
}

func (f eventFilter) wants(eventType string) bool {
	return f == nil || f[eventType]
}

// subscriber is one connected event stream
type subscriber struct {
	conn   *websocket.Conn
	out    chan []byte
	filter eventFilter
	addr   string
}

type frame struct {
	eventType string
	payload   []byte
}

// WebSocketHub fans bridge events out to subscribers
type WebSocketHub struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	frames chan frame
	done   chan struct{}
	logger *slog.Logger
}

// NewWebSocketHub creates a hub; call Run to start delivery
func NewWebSocketHub(logger *slog.Logger) *WebSocketHub {
	return &WebSocketHub{
		subs:   make(map[*subscriber]struct{}),
		frames: make(chan frame, 256),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Run delivers frames until ctx is done, then disconnects every subscriber
func (h *WebSocketHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			close(h.done)
			for s := range h.subs {
				h.dropLocked(s)
			}
			h.mu.Unlock()
			return

		case f := <-h.frames:
			h.mu.Lock()
			for s := range h.subs {
				if !s.filter.wants(f.eventType) {
					continue
				}
				select {
				case s.out <- f.payload:
				default:
					// Slow reader
					h.logger.Warn("websocket_client_lagging", "client_ip", s.addr)
					h.dropLocked(s)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues an event for delivery. Events are dropped when the hub is backed up.
func (h *WebSocketHub) Broadcast(event domain.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("websocket_marshal_failed", "event", event.Type, "error", err)
		return
	}
	select {
	case h.frames <- frame{eventType: event.Type, payload: payload}:
	default:
		h.logger.Warn("websocket_broadcast_dropped", "event", event.Type)
	}
}

// ClientCount returns the number of connected subscribers
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *WebSocketHub) add(s *subscriber) bool {
	h.mu.Lock()
	select {
	case <-h.done:
		h.mu.Unlock()
		return false
	default:
	}
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	h.logger.Info("websocket_connected", "client_ip", s.addr, "clients", n)
	return true
}

func (h *WebSocketHub) remove(s *subscriber) {
	h.mu.Lock()
	_, ok := h.subs[s]
	if ok {
		h.dropLocked(s)
	}
	n := len(h.subs)
	h.mu.Unlock()
	if ok {
		h.logger.Info("websocket_disconnected", "client_ip", s.addr, "clients", n)
	}
}

// dropLocked closes the subscriber's queue so its writer sends a close frame. h.mu must be held.
func (h *WebSocketHub) dropLocked(s *subscriber) {
	delete(h.subs, s)
	close(s.out)
}

// handleWebSocket upgrades to a websocket and streams events, optionally filtered with ?events=a,b
func (r *Router) handleWebSocket(w http.ResponseWriter, req *http.Request) {
	if r.authEnabled() && r.getAuthClaims(req) == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket_upgrade_failed", "error", err)
		return
	}

	s := &subscriber{
		conn:   conn,
		out:    make(chan []byte, wsSendBuffer),
		filter: parseEventFilter(req.URL.Query().Get("events")),
		addr:   clientIP(req),
	}
	if !r.wsHub.add(s) {
		conn.Close()
		return
	}

	go s.writeLoop()
	go s.readLoop(r.wsHub)
}

// readLoop only watches for pongs and the peer going away
func (s *subscriber) readLoop(h *WebSocketHub) {
	defer func() {
		h.remove(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) {
				h.logger.Debug("websocket_read_failed", "client_ip", s.addr, "error", err)
			}
			return
		}
	}
}

// writeLoop sends one text frame per event and pings between them
func (s *subscriber) writeLoop() {
	ping := time.NewTicker(wsPingPeriod)
	defer func() {
		ping.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ping.C:
			s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
