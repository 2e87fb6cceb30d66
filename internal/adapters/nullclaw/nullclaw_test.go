package nullclaw

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codervisor/clawden/internal/adapter"
)

func TestNullClawLifecycle(t *testing.T) {
	a := New()
	ctx := context.Background()

	meta, err := a.Metadata(ctx)
	require.NoError(t, err)
	assert.Contains(t, meta.Capabilities, "echo")

	h, err := a.Start(ctx, adapter.AgentConfig{AgentID: "agent-1"})
	require.NoError(t, err)

	health, err := a.Health(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, adapter.HealthHealthy, health)

	resp, err := a.Send(ctx, h, adapter.Message{Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", resp.Content)

	require.NoError(t, a.SetConfig(ctx, h, map[string]string{"k": "v"}))
	cfg, err := a.GetConfig(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, "v", cfg["k"])

	require.NoError(t, a.Stop(ctx, h))

	_, err = a.Health(ctx, h)
	assert.Error(t, err)
}
