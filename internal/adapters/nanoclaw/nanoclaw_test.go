package nanoclaw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codervisor/clawden/internal/adapter"
)

// echoServer upgrades every request to a WebSocket and bounces each inbound
// JSON frame back with its content prefixed, enough to exercise Send's
// request/response convention.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			var msg wireMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			msg.Content = "echo:" + msg.Content
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	})
	return httptest.NewServer(handler)
}

func TestNanoClawSendRoundTrip(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/agents/{id}"
	a := New(Config{URLTemplate: wsURL, DialTimeout: 2 * time.Second})
	ctx := context.Background()

	h, err := a.Start(ctx, adapter.AgentConfig{AgentID: "agent-1"})
	require.NoError(t, err)
	defer a.Stop(ctx, h)

	health, err := a.Health(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, adapter.HealthHealthy, health)

	resp, err := a.Send(ctx, h, adapter.Message{Role: "user", Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "echo:hi", resp.Content)
}

func TestResolveURLSubstitutesID(t *testing.T) {
	assert.Equal(t, "ws://host/agents/agent-42/stream", resolveURL("ws://host/agents/{id}/stream", "agent-42"))
}

func TestNanoClawUnknownHandleFails(t *testing.T) {
	a := New(Config{URLTemplate: "ws://unused/{id}"})
	_, err := a.Health(context.Background(), int64(7))
	assert.Error(t, err)
}
