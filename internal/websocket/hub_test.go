package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmusicplayer/bilimusic/internal/download"
	"github.com/openmusicplayer/bilimusic/internal/metrics"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func scrape(m *metrics.Metrics) string {
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}

func TestHub_BroadcastsToAllClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	srv := httptest.NewServer(NewHandler(hub).ServeWSHandler())
	defer srv.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	require.Eventually(t, func() bool { return hub.TotalClients() == 2 }, time.Second, 10*time.Millisecond)

	hub.BroadcastEvent(download.Event{JobID: "j1", Kind: download.EventProgress, State: download.StateDownloading, Percent: 42})

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, MessageTypeJobEvent, msg.Type)
		require.NotNil(t, msg.Event)
		assert.Equal(t, download.JobID("j1"), msg.Event.JobID)
		assert.Equal(t, 42, msg.Event.Percent)
	}
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	m := metrics.New()
	hub := NewHub().WithMetrics(m)
	go hub.Run()
	defer hub.Stop()

	srv := httptest.NewServer(NewHandler(hub).ServeWSHandler())
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.TotalClients() == 1 }, time.Second, 10*time.Millisecond)
	assert.Contains(t, scrape(m), "bilimusic_websocket_connections_active 1")

	conn.Close()
	assert.Eventually(t, func() bool { return hub.TotalClients() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, scrape(m), "bilimusic_websocket_connections_active 0")
}

func TestHub_StoppedHubDoesNotBlock(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	hub.Stop()

	done := make(chan struct{})
	go func() {
		hub.BroadcastEvent(download.Event{JobID: "j1"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("BroadcastEvent blocked on a stopped hub")
	}
}
