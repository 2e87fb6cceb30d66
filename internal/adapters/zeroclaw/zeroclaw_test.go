package zeroclaw

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codervisor/clawden/internal/adapter"
)

// echoScript writes a tiny shell worker that reads one JSON line, bounces
// its content back prefixed with "echo:" into
// {"role":"assistant","content":...}.
func echoScript(t *testing.T) string {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	f, err := os.CreateTemp("", "zeroclaw-echo-*.sh")
	require.NoError(t, err)
	script := `#!/bin/sh
while IFS= read -r line; do
  content=$(printf '%s' "$line" | sed -n 's/.*"content":"\([^"]*\)".*/\1/p')
  printf '{"role":"assistant","content":"echo:%s"}\n' "$content"
done
`
	_, err = f.WriteString(script)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, os.Chmod(f.Name(), 0o755))
	return f.Name()
}

func TestZeroClawSendRoundTrip(t *testing.T) {
	path := echoScript(t)
	defer os.Remove(path)

	a := New(Config{ExecutablePath: "/bin/sh", Args: []string{path}})
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

func TestZeroClawUnknownHandleFails(t *testing.T) {
	a := New(Config{ExecutablePath: "/bin/sh"})
	_, err := a.Health(context.Background(), int64(999))
	assert.Error(t, err)
}

func TestZeroClawStopIsIdempotent(t *testing.T) {
	path := echoScript(t)
	defer os.Remove(path)

	a := New(Config{ExecutablePath: "/bin/sh", Args: []string{path}})
	ctx := context.Background()

	h, err := a.Start(ctx, adapter.AgentConfig{AgentID: "agent-1"})
	require.NoError(t, err)
	require.NoError(t, a.Stop(ctx, h))
	require.NoError(t, a.Stop(ctx, h))
}
