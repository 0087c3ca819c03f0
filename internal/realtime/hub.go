// Package realtime fans alert and feedback events out to connected
// dashboard websocket sessions, scoped per tenant.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pulseboard/pulseboard/internal/logger"
	"github.com/pulseboard/pulseboard/internal/observability/metrics"
)

// Envelope message types.
const (
	MessageTypeAlert     = "alert"
	MessageTypeFeedback  = "feedback"
	MessageTypeAnalytics = "analytics"
	MessageTypeSystem    = "system"
)

// Envelope is the wire format pushed to dashboard sessions.
type Envelope struct {
	Type     string `json:"type"`
	TenantID string `json:"tenantId"`
	Data     any    `json:"data"`
	Severity string `json:"severity,omitempty"`
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxInboundSize = 512
)

// Session is one connected dashboard client. Writes go through the
// buffered send channel; the writePump is the only goroutine touching the
// connection for writes.
type Session struct {
	ID       string
	TenantID string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
}

// Hub tracks sessions per tenant and broadcasts envelopes to them.
// A session that cannot keep up with the broadcast rate is dropped rather
// than allowed to stall the hub.
type Hub struct {
	mu         sync.RWMutex
	sessions   map[string]map[*Session]struct{}
	sendBuffer int
	log        logger.Logger
}

// NewHub creates a hub. sendBuffer is the per-session outbound queue depth;
// values below 1 fall back to 64.
func NewHub(sendBuffer int, log logger.Logger) *Hub {
	if sendBuffer < 1 {
		sendBuffer = 64
	}
	return &Hub{
		sessions:   make(map[string]map[*Session]struct{}),
		sendBuffer: sendBuffer,
		log:        log,
	}
}

// Register attaches a websocket connection to the hub and starts its read
// and write pumps. The returned session closes itself when the peer
// disconnects.
func (h *Hub) Register(tenantID string, conn *websocket.Conn) *Session {
	s := &Session{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, h.sendBuffer),
	}

	h.mu.Lock()
	if _, ok := h.sessions[tenantID]; !ok {
		h.sessions[tenantID] = make(map[*Session]struct{})
	}
	h.sessions[tenantID][s] = struct{}{}
	count := len(h.sessions[tenantID])
	h.mu.Unlock()

	metrics.RealtimeSessions.Inc()
	h.log.Debug("realtime session connected",
		logger.String("session_id", s.ID),
		logger.String("tenant_id", tenantID),
		logger.Int("tenant_sessions", count))

	go s.writePump()
	go s.readPump()
	return s
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	removed := false
	if conns, ok := h.sessions[s.TenantID]; ok {
		if _, ok := conns[s]; ok {
			delete(conns, s)
			removed = true
		}
		if len(conns) == 0 {
			delete(h.sessions, s.TenantID)
		}
	}
	h.mu.Unlock()

	if removed {
		metrics.RealtimeSessions.Dec()
		s.closeOnce.Do(func() { close(s.send) })
		h.log.Debug("realtime session disconnected",
			logger.String("session_id", s.ID),
			logger.String("tenant_id", s.TenantID))
	}
}

// SessionCount returns the number of sessions connected for a tenant.
func (h *Hub) SessionCount(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[tenantID])
}

// BroadcastToTenant delivers an envelope to every session of one tenant.
// Sessions whose send buffer is full are dropped.
func (h *Hub) BroadcastToTenant(tenantID string, env Envelope) {
	env.TenantID = tenantID
	payload, err := json.Marshal(env)
	if err != nil {
		h.log.Error("encoding realtime envelope", logger.Error(err))
		return
	}

	h.mu.RLock()
	var slow []*Session
	for s := range h.sessions[tenantID] {
		select {
		case s.send <- payload:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.log.Warn("dropping slow realtime session",
			logger.String("session_id", s.ID),
			logger.String("tenant_id", tenantID))
		h.unregister(s)
		_ = s.conn.Close()
	}
}

// BroadcastAlert implements the dispatcher's Broadcaster interface.
func (h *Hub) BroadcastAlert(tenantID string, data any, severity string) {
	h.BroadcastToTenant(tenantID, Envelope{
		Type:     MessageTypeAlert,
		Data:     data,
		Severity: severity,
	})
}

// BroadcastFeedback pushes a newly ingested feedback entry to the tenant's
// dashboards.
func (h *Hub) BroadcastFeedback(tenantID string, data any) {
	h.BroadcastToTenant(tenantID, Envelope{
		Type: MessageTypeFeedback,
		Data: data,
	})
}

// Shutdown closes every session. Intended for process exit.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	var all []*Session
	for _, conns := range h.sessions {
		for s := range conns {
			all = append(all, s)
		}
	}
	h.sessions = make(map[string]map[*Session]struct{})
	h.mu.Unlock()

	for _, s := range all {
		metrics.RealtimeSessions.Dec()
		s.closeOnce.Do(func() { close(s.send) })
		_ = s.conn.Close()
	}
}

// readPump consumes inbound frames. Clients are not expected to send
// application messages; the pump exists to process control frames and to
// detect disconnects.
func (s *Session) readPump() {
	defer func() {
		s.hub.unregister(s)
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(maxInboundSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.hub.log.Debug("realtime session read error",
					logger.String("session_id", s.ID),
					logger.Error(err))
			}
			return
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
