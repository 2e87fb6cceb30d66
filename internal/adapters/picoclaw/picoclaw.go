// Package picoclaw implements the PicoClaw concrete adapter: a
// container-backed runtime driven through the Docker Engine API (spec.md
// §4.1 EXPANSION table), grounded on the teacher's Docker client wrapper.
package picoclaw

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/codervisor/clawden/internal/adapter"
	"github.com/codervisor/clawden/internal/runtimekind"
)

// Config selects the image PicoClaw instances run.
type Config struct {
	Image string
}

// Adapter is the PicoClaw concrete adapter.
type Adapter struct {
	cli    *client.Client
	image  string
	mu     sync.Mutex
	agents map[string]string // container ID (the handle) -> agent ID
}

// New wraps an existing Docker client.
func New(cli *client.Client, cfg Config) *Adapter {
	img := cfg.Image
	if img == "" {
		img = "clawden/pico-claw:latest"
	}
	return &Adapter{cli: cli, image: img, agents: make(map[string]string)}
}

func (a *Adapter) Metadata(ctx context.Context) (adapter.Metadata, error) {
	return adapter.Metadata{
		RuntimeKind:    runtimekind.PicoClaw,
		Version:        "1.0.0",
		Language:       "multi",
		Capabilities:   []string{"chat", "containerized"},
		ChannelSupport: map[string]bool{},
	}, nil
}

func (a *Adapter) Install(ctx context.Context, cfg adapter.InstallConfig) error {
	reader, err := a.cli.ImagePull(ctx, a.image, image.PullOptions{})
	if err != nil {
		return adapter.NewError("install", "image pull failed", err)
	}
	defer reader.Close()
	return nil
}

func (a *Adapter) Start(ctx context.Context, cfg adapter.AgentConfig) (adapter.Handle, error) {
	env := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	resp, err := a.cli.ContainerCreate(ctx, &container.Config{
		Image: a.image,
		Env:   env,
		Labels: map[string]string{
			"clawden.agent_id": cfg.AgentID,
		},
		Tty: false,
	}, &container.HostConfig{AutoRemove: true}, nil, nil, "")
	if err != nil {
		return nil, adapter.NewError("start", "container create failed", err)
	}

	if err := a.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, adapter.NewError("start", "container start failed", err)
	}

	a.mu.Lock()
	a.agents[resp.ID] = cfg.AgentID
	a.mu.Unlock()
	return resp.ID, nil
}

func containerID(h adapter.Handle) (string, error) {
	id, ok := h.(string)
	if !ok || id == "" {
		return "", adapter.NewError("handle", "invalid picoclaw handle", nil)
	}
	return id, nil
}

func (a *Adapter) Stop(ctx context.Context, h adapter.Handle) error {
	id, err := containerID(h)
	if err != nil {
		return err
	}
	if err := a.cli.ContainerStop(ctx, id, container.StopOptions{}); err != nil {
		return adapter.NewError("stop", "container stop failed", err)
	}
	a.mu.Lock()
	delete(a.agents, id)
	a.mu.Unlock()
	return nil
}

func (a *Adapter) Restart(ctx context.Context, h adapter.Handle) error {
	id, err := containerID(h)
	if err != nil {
		return err
	}
	if err := a.cli.ContainerRestart(ctx, id, container.StopOptions{}); err != nil {
		return adapter.NewError("restart", "container restart failed", err)
	}
	return nil
}

func (a *Adapter) Health(ctx context.Context, h adapter.Handle) (adapter.Health, error) {
	id, err := containerID(h)
	if err != nil {
		return adapter.HealthUnknown, err
	}
	inspect, err := a.cli.ContainerInspect(ctx, id)
	if err != nil {
		return adapter.HealthUnknown, adapter.NewError("health", "container inspect failed", err)
	}
	if !inspect.State.Running {
		return adapter.HealthUnhealthy, nil
	}
	if inspect.State.Health != nil {
		switch inspect.State.Health.Status {
		case "healthy":
			return adapter.HealthHealthy, nil
		case "unhealthy":
			return adapter.HealthUnhealthy, nil
		default:
			return adapter.HealthUnknown, nil
		}
	}
	return adapter.HealthHealthy, nil
}

func (a *Adapter) Metrics(ctx context.Context, h adapter.Handle) (adapter.Metrics, error) {
	id, err := containerID(h)
	if err != nil {
		return adapter.Metrics{}, err
	}
	stats, err := a.cli.ContainerStatsOneShot(ctx, id)
	if err != nil {
		return adapter.Metrics{}, adapter.NewError("metrics", "container stats failed", err)
	}
	defer stats.Body.Close()
	return adapter.Metrics{}, nil
}

// Send runs the message content through an interactive exec in the
// container and returns its stdout (stderr is discarded), keeping the adapter thin: all
// chat semantics live in the image's entrypoint, not here.
func (a *Adapter) Send(ctx context.Context, h adapter.Handle, msg adapter.Message) (adapter.Response, error) {
	id, err := containerID(h)
	if err != nil {
		return adapter.Response{}, err
	}

	execResp, err := a.cli.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          []string{"clawden-chat", msg.Role, msg.Content},
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return adapter.Response{}, adapter.NewError("send", "exec create failed", err)
	}

	attach, err := a.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return adapter.Response{}, adapter.NewError("send", "exec attach failed", err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		return adapter.Response{}, adapter.NewError("send", "exec demux failed", err)
	}

	return adapter.Response{Content: stdout.String()}, nil
}

func (a *Adapter) Subscribe(ctx context.Context, h adapter.Handle, event string) (<-chan []byte, error) {
	id, err := containerID(h)
	if err != nil {
		return nil, err
	}
	logs, err := a.cli.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, Follow: true})
	if err != nil {
		return nil, adapter.NewError("subscribe", "container logs failed", err)
	}

	ch := make(chan []byte)
	go func() {
		defer close(ch)
		defer logs.Close()
		buf := make([]byte, 4096)
		for {
			n, err := logs.Read(buf)
			if n > 0 {
				line := append([]byte(nil), buf[:n]...)
				select {
				case ch <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return ch, nil
}

func (a *Adapter) GetConfig(ctx context.Context, h adapter.Handle) (map[string]string, error) {
	id, err := containerID(h)
	if err != nil {
		return nil, err
	}
	inspect, err := a.cli.ContainerInspect(ctx, id)
	if err != nil {
		return nil, adapter.NewError("get_config", "container inspect failed", err)
	}
	cfg := make(map[string]string, len(inspect.Config.Env))
	for _, kv := range inspect.Config.Env {
		cfg[kv] = ""
	}
	return cfg, nil
}

// SetConfig is a no-op: a running container's environment cannot be
// mutated without a restart, which would violate Stop/Start's separation
// from Lifecycle Manager policy.
func (a *Adapter) SetConfig(ctx context.Context, h adapter.Handle, cfg map[string]string) error {
	return nil
}

func (a *Adapter) ListSkills(ctx context.Context, h adapter.Handle) ([]adapter.SkillManifest, error) {
	return nil, nil
}

func (a *Adapter) InstallSkill(ctx context.Context, h adapter.Handle, manifest adapter.SkillManifest) error {
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
