package realtime

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard/internal/logger"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
}

// hubServer exposes a hub behind a test websocket endpoint. The tenant is
// taken from the request query, mirroring how the API layer resolves it.
func hubServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(r.URL.Query().Get("tenant"), conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dialSession(t *testing.T, srv *httptest.Server, tenantID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?tenant=" + tenantID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(payload, &env))
	return env
}

func waitForSessions(t *testing.T, hub *Hub, tenantID string, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.SessionCount(tenantID) == want
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastAlertReachesTenantSessions(t *testing.T) {
	t.Parallel()
	hub := NewHub(8, testLogger())
	srv := hubServer(t, hub)

	first := dialSession(t, srv, "acme")
	second := dialSession(t, srv, "acme")
	waitForSessions(t, hub, "acme", 2)

	hub.BroadcastAlert("acme", map[string]string{"rule_name": "Negative feedback"}, "critical")

	for _, conn := range []*websocket.Conn{first, second} {
		env := readEnvelope(t, conn)
		assert.Equal(t, MessageTypeAlert, env.Type)
		assert.Equal(t, "acme", env.TenantID)
		assert.Equal(t, "critical", env.Severity)
	}
}

func TestHub_TenantIsolation(t *testing.T) {
	t.Parallel()
	hub := NewHub(8, testLogger())
	srv := hubServer(t, hub)

	acme := dialSession(t, srv, "acme")
	globex := dialSession(t, srv, "globex")
	waitForSessions(t, hub, "acme", 1)
	waitForSessions(t, hub, "globex", 1)

	hub.BroadcastFeedback("acme", map[string]any{"rating": 5})

	env := readEnvelope(t, acme)
	assert.Equal(t, MessageTypeFeedback, env.Type)
	assert.Equal(t, "acme", env.TenantID)

	// The other tenant's session must receive nothing.
	require.NoError(t, globex.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := globex.ReadMessage()
	assert.Error(t, err, "cross-tenant session should time out with no message")
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	t.Parallel()
	hub := NewHub(8, testLogger())
	srv := hubServer(t, hub)

	conn := dialSession(t, srv, "acme")
	waitForSessions(t, hub, "acme", 1)

	require.NoError(t, conn.Close())
	waitForSessions(t, hub, "acme", 0)
}

func TestHub_SlowSessionIsDropped(t *testing.T) {
	t.Parallel()
	hub := NewHub(1, testLogger())

	upgraded := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		upgraded <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { client.Close() })

	var serverConn *websocket.Conn
	select {
	case serverConn = <-upgraded:
	case <-time.After(time.Second):
		t.Fatal("server side never upgraded")
	}

	// A session with no write pump and no send capacity is permanently slow.
	slow := &Session{
		ID:       "slow-session",
		TenantID: "acme",
		hub:      hub,
		conn:     serverConn,
		send:     make(chan []byte),
	}
	hub.mu.Lock()
	hub.sessions["acme"] = map[*Session]struct{}{slow: {}}
	hub.mu.Unlock()

	hub.BroadcastAlert("acme", map[string]string{"rule_name": "Negative feedback"}, "critical")

	assert.Equal(t, 0, hub.SessionCount("acme"), "slow session must be evicted, not waited on")
}

func TestHub_ShutdownClosesSessions(t *testing.T) {
	t.Parallel()
	hub := NewHub(8, testLogger())
	srv := hubServer(t, hub)

	conn := dialSession(t, srv, "acme")
	waitForSessions(t, hub, "acme", 1)

	hub.Shutdown()
	assert.Equal(t, 0, hub.SessionCount("acme"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "peer should observe the close")
}

func TestHub_BroadcastToUnknownTenantIsNoop(t *testing.T) {
	t.Parallel()
	hub := NewHub(8, testLogger())
	hub.BroadcastAlert("nobody", map[string]string{}, "info")
	assert.Equal(t, 0, hub.SessionCount("nobody"))
}
