package microclaw

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codervisor/clawden/internal/adapter"
)

// mcpFixtureScript writes a tiny shell worker that speaks just enough of the
// MCP stdio protocol (initialize, tools/list, tools/call, ping) to exercise
// Adapter's round trip without a real MCP server, mirroring mimiclaw_test.go's
// rpcScript fixture.
func mcpFixtureScript(t *testing.T) string {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	f, err := os.CreateTemp("", "microclaw-mcp-*.sh")
	require.NoError(t, err)
	script := `#!/bin/sh
while IFS= read -r line; do
  id=$(printf '%s' "$line" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
  case "$line" in
    *'"method":"initialize"'*)
      printf '{"jsonrpc":"2.0","id":%s,"result":{"protocolVersion":"2024-11-05","capabilities":{"tools":{}},"serverInfo":{"name":"microclaw-fixture","version":"1.0.0"}}}\n' "$id"
      ;;
    *'"method":"notifications/initialized"'*)
      ;;
    *'"method":"ping"'*)
      printf '{"jsonrpc":"2.0","id":%s,"result":{}}\n' "$id"
      ;;
    *'"method":"tools/list"'*)
      printf '{"jsonrpc":"2.0","id":%s,"result":{"tools":[{"name":"chat","inputSchema":{"type":"object"}}]}}\n' "$id"
      ;;
    *'"name":"chat"'*)
      printf '{"jsonrpc":"2.0","id":%s,"result":{"content":[{"type":"text","text":"hello back"}]}}\n' "$id"
      ;;
    *'"name":"install_skill"'*)
      printf '{"jsonrpc":"2.0","id":%s,"error":{"code":-32601,"message":"install_skill not supported"}}\n' "$id"
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

func TestMicroClawSendRoundTrip(t *testing.T) {
	path := mcpFixtureScript(t)
	defer os.Remove(path)

	a := New(Config{Command: "/bin/sh", Args: []string{path}})
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

	skills, err := a.ListSkills(ctx, h)
	require.NoError(t, err)
	require.Len(t, skills, 1)
	assert.Equal(t, "chat", skills[0].Name)
}

func TestMicroClawUnknownHandleFails(t *testing.T) {
	a := New(Config{Command: "/bin/sh"})
	_, err := a.Health(context.Background(), 42)
	assert.Error(t, err)
}

func TestMicroClawInstallSkillReportsMCPError(t *testing.T) {
	path := mcpFixtureScript(t)
	defer os.Remove(path)

	a := New(Config{Command: "/bin/sh", Args: []string{path}})
	ctx := context.Background()

	h, err := a.Start(ctx, adapter.AgentConfig{AgentID: "agent-1"})
	require.NoError(t, err)
	defer a.Stop(ctx, h)

	err = a.InstallSkill(ctx, h, adapter.SkillManifest{Name: "foo"})
	assert.Error(t, err)
}

func TestMicroClawStartFailsWhenCommandMissing(t *testing.T) {
	a := New(Config{Command: "/no/such/microclaw-executable"})
	_, err := a.Start(context.Background(), adapter.AgentConfig{AgentID: "agent-1"})
	assert.Error(t, err)
}
