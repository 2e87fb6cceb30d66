package openclaw

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codervisor/clawden/internal/adapter"
)

func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/agent-1/start", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/agent-1/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})
	mux.HandleFunc("/agent-1/chat", func(w http.ResponseWriter, r *http.Request) {
		var msg adapter.Message
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		json.NewEncoder(w).Encode(adapter.Response{Content: "reply:" + msg.Content})
	})
	mux.HandleFunc("/agent-1/stop", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return httptest.NewServer(mux)
}

func TestOpenClawSendRoundTrip(t *testing.T) {
	server := fakeServer(t)
	defer server.Close()

	a := New(Config{BaseURLTemplate: server.URL + "/{id}"})
	ctx := context.Background()

	h, err := a.Start(ctx, adapter.AgentConfig{AgentID: "agent-1"})
	require.NoError(t, err)
	defer a.Stop(ctx, h)

	health, err := a.Health(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, adapter.HealthHealthy, health)

	resp, err := a.Send(ctx, h, adapter.Message{Role: "user", Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "reply:hi", resp.Content)
}

func TestOpenClawStartFailsOnServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/agent-1/start", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	a := New(Config{BaseURLTemplate: server.URL + "/{id}"})
	_, err := a.Start(context.Background(), adapter.AgentConfig{AgentID: "agent-1"})
	assert.Error(t, err)
}

func TestOpenClawUnknownHandleFails(t *testing.T) {
	a := New(Config{BaseURLTemplate: "http://unused/{id}"})
	_, err := a.Health(context.Background(), int64(7))
	assert.Error(t, err)
}
