// Package mimiclaw implements the MimiClaw concrete adapter: a subprocess
// speaking JSON-RPC 2.0 over stdio (spec.md §4.1 EXPANSION table), driven
// through internal/jsonrpc.Client.
package mimiclaw

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/codervisor/clawden/internal/adapter"
	"github.com/codervisor/clawden/internal/jsonrpc"
	"github.com/codervisor/clawden/internal/runtimekind"
)

// Config names the executable MimiClaw instances run.
type Config struct {
	ExecutablePath string
	Args           []string
}

type instance struct {
	cmd    *exec.Cmd
	client *jsonrpc.Client
	mu     sync.Mutex
	config map[string]string
}

// Adapter is the MimiClaw concrete adapter.
type Adapter struct {
	cfg Config

	mu        sync.Mutex
	instances map[int64]*instance
	nextID    atomic.Int64
}

// New creates a MimiClaw Adapter that launches cfg.ExecutablePath per agent.
func New(cfg Config) *Adapter {
	return &Adapter{cfg: cfg, instances: make(map[int64]*instance)}
}

func (a *Adapter) Metadata(ctx context.Context) (adapter.Metadata, error) {
	return adapter.Metadata{
		RuntimeKind:    runtimekind.MimiClaw,
		Version:        "1.0.0",
		Language:       "multi",
		Capabilities:   []string{"chat", "rpc"},
		ChannelSupport: map[string]bool{},
	}, nil
}

func (a *Adapter) Install(ctx context.Context, cfg adapter.InstallConfig) error { return nil }

func (a *Adapter) Start(ctx context.Context, agentCfg adapter.AgentConfig) (adapter.Handle, error) {
	cmd := exec.Command(a.cfg.ExecutablePath, a.cfg.Args...)
	for k, v := range agentCfg.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, adapter.NewError("start", "stdin pipe failed", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, adapter.NewError("start", "stdout pipe failed", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, adapter.NewError("start", "process start failed", err)
	}

	client := jsonrpc.NewClient(context.Background(), stdin, stdout)
	inst := &instance{cmd: cmd, client: client, config: make(map[string]string)}

	id := a.nextID.Add(1)
	a.mu.Lock()
	a.instances[id] = inst
	a.mu.Unlock()
	return id, nil
}

func (a *Adapter) instanceFor(h adapter.Handle) (*instance, error) {
	id, ok := h.(int64)
	if !ok {
		return nil, adapter.NewError("handle", "invalid mimiclaw handle", nil)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	inst, ok := a.instances[id]
	if !ok {
		return nil, adapter.NewError("handle", "unknown mimiclaw handle", nil)
	}
	return inst, nil
}

func (a *Adapter) Stop(ctx context.Context, h adapter.Handle) error {
	id, ok := h.(int64)
	if !ok {
		return adapter.NewError("stop", "invalid mimiclaw handle", nil)
	}
	a.mu.Lock()
	inst, ok := a.instances[id]
	delete(a.instances, id)
	a.mu.Unlock()
	if !ok {
		return nil
	}
	inst.client.Close()
	if inst.cmd.Process != nil {
		_ = inst.cmd.Process.Kill()
	}
	return nil
}

func (a *Adapter) Restart(ctx context.Context, h adapter.Handle) error {
	_, err := a.instanceFor(h)
	return err
}

func (a *Adapter) Health(ctx context.Context, h adapter.Handle) (adapter.Health, error) {
	inst, err := a.instanceFor(h)
	if err != nil {
		return adapter.HealthUnknown, err
	}
	if _, err := inst.client.Call(ctx, "ping", nil); err != nil {
		return adapter.HealthUnhealthy, nil
	}
	return adapter.HealthHealthy, nil
}

func (a *Adapter) Metrics(ctx context.Context, h adapter.Handle) (adapter.Metrics, error) {
	if _, err := a.instanceFor(h); err != nil {
		return adapter.Metrics{}, err
	}
	return adapter.Metrics{}, nil
}

// Send issues a "chat" JSON-RPC call with the message as params.
func (a *Adapter) Send(ctx context.Context, h adapter.Handle, msg adapter.Message) (adapter.Response, error) {
	inst, err := a.instanceFor(h)
	if err != nil {
		return adapter.Response{}, err
	}

	result, err := inst.client.Call(ctx, "chat", map[string]string{
		"role":    msg.Role,
		"content": msg.Content,
	})
	if err != nil {
		return adapter.Response{}, adapter.NewError("send", "rpc call failed", err)
	}

	var reply struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(result, &reply); err != nil {
		return adapter.Response{}, adapter.NewError("send", "unmarshal result failed", err)
	}
	return adapter.Response{Content: reply.Content}, nil
}

func (a *Adapter) Subscribe(ctx context.Context, h adapter.Handle, event string) (<-chan []byte, error) {
	if _, err := a.instanceFor(h); err != nil {
		return nil, err
	}
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (a *Adapter) GetConfig(ctx context.Context, h adapter.Handle) (map[string]string, error) {
	inst, err := a.instanceFor(h)
	if err != nil {
		return nil, err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	out := make(map[string]string, len(inst.config))
	for k, v := range inst.config {
		out[k] = v
	}
	return out, nil
}

func (a *Adapter) SetConfig(ctx context.Context, h adapter.Handle, cfg map[string]string) error {
	inst, err := a.instanceFor(h)
	if err != nil {
		return err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.config = cfg
	return nil
}

func (a *Adapter) ListSkills(ctx context.Context, h adapter.Handle) ([]adapter.SkillManifest, error) {
	inst, err := a.instanceFor(h)
	if err != nil {
		return nil, err
	}
	result, err := inst.client.Call(ctx, "list_skills", nil)
	if err != nil {
		return nil, adapter.NewError("list_skills", "rpc call failed", err)
	}
	var skills []adapter.SkillManifest
	if err := json.Unmarshal(result, &skills); err != nil {
		return nil, adapter.NewError("list_skills", "unmarshal result failed", err)
	}
	return skills, nil
}

func (a *Adapter) InstallSkill(ctx context.Context, h adapter.Handle, manifest adapter.SkillManifest) error {
	inst, err := a.instanceFor(h)
	if err != nil {
		return err
	}
	if _, err := inst.client.Call(ctx, "install_skill", manifest); err != nil {
		return adapter.NewError("install_skill", "rpc call failed", err)
	}
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
