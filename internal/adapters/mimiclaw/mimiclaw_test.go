package mimiclaw

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codervisor/clawden/internal/adapter"
)

// rpcScript writes a tiny shell worker that answers "chat" and "ping" calls
// with a fixed JSON-RPC 2.0 response, enough to exercise the Call round trip
// without a real agent runtime.
func rpcScript(t *testing.T) string {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	f, err := os.CreateTemp("", "mimiclaw-rpc-*.sh")
	require.NoError(t, err)
	script := `#!/bin/sh
while IFS= read -r line; do
  id=$(printf '%s' "$line" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
  case "$line" in
    *'"method":"chat"'*)
      printf '{"jsonrpc":"2.0","id":%s,"result":{"content":"hello back"}}\n' "$id"
      ;;
    *'"method":"ping"'*)
      printf '{"jsonrpc":"2.0","id":%s,"result":{}}\n' "$id"
      ;;
    *)
      printf '{"jsonrpc":"2.0","id":%s,"error":{"code":-32601,"message":"method not found"}}\n' "$id"
      ;;
  esac
done
`
	_, err = f.WriteString(script)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, os.Chmod(f.Name(), 0o755))
	return f.Name()
}

func TestMimiClawSendRoundTrip(t *testing.T) {
	path := rpcScript(t)
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
	assert.Equal(t, "hello back", resp.Content)
}

func TestMimiClawUnknownHandleFails(t *testing.T) {
	a := New(Config{ExecutablePath: "/bin/sh"})
	_, err := a.Health(context.Background(), int64(42))
	assert.Error(t, err)
}

func TestMimiClawInstallSkillReportsRPCError(t *testing.T) {
	path := rpcScript(t)
	defer os.Remove(path)

	a := New(Config{ExecutablePath: "/bin/sh", Args: []string{path}})
	ctx := context.Background()

	h, err := a.Start(ctx, adapter.AgentConfig{AgentID: "agent-1"})
	require.NoError(t, err)
	defer a.Stop(ctx, h)

	err = a.InstallSkill(ctx, h, adapter.SkillManifest{Name: "foo"})
	assert.Error(t, err)
}
