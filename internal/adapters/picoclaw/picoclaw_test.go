package picoclaw

import (
	"context"
	"testing"
	"time"

	"github.com/docker/docker/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codervisor/clawden/internal/adapter"
	"github.com/codervisor/clawden/internal/runtimekind"
)

// requireDocker skips the test when no Docker daemon is reachable, mirroring
// the environment-availability skip in internal/supervisor/supervisor_test.go.
func requireDocker(t *testing.T) *client.Client {
	t.Helper()
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		t.Skip("docker client unavailable in this environment")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		t.Skip("docker daemon unreachable in this environment")
	}
	return cli
}

func TestPicoClawMetadata(t *testing.T) {
	a := New(nil, Config{})
	meta, err := a.Metadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, runtimekind.PicoClaw, meta.RuntimeKind)
	assert.Contains(t, meta.Capabilities, "containerized")
}

func TestPicoClawDefaultsImageWhenUnset(t *testing.T) {
	a := New(nil, Config{})
	assert.NotEmpty(t, a.image)
}

func TestPicoClawUnknownHandleFails(t *testing.T) {
	a := New(nil, Config{})
	_, err := a.Health(context.Background(), 123)
	assert.Error(t, err)
	_, err = a.Metrics(context.Background(), 123)
	assert.Error(t, err)
	_, err = a.GetConfig(context.Background(), "")
	assert.Error(t, err)
}

func TestPicoClawStartStopLifecycle(t *testing.T) {
	cli := requireDocker(t)
	a := New(cli, Config{Image: "busybox:latest"})
	ctx := context.Background()

	if err := a.Install(ctx, adapter.InstallConfig{}); err != nil {
		t.Skipf("could not pull busybox:latest in this environment: %v", err)
	}

	h, err := a.Start(ctx, adapter.AgentConfig{AgentID: "agent-1"})
	require.NoError(t, err)

	id, ok := h.(string)
	require.True(t, ok)
	assert.NotEmpty(t, id)

	_, err = a.Health(ctx, h)
	assert.NoError(t, err)

	err = a.Stop(ctx, h)
	assert.NoError(t, err)
}
