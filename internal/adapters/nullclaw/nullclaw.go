// Package nullclaw implements the NullClaw concrete adapter: an in-process
// stub with no external dependency, by design (spec.md §4.1 EXPANSION
// table — "trivial by design"). It exists so the Lifecycle Manager always
// has at least one runtime kind it can start without any host resources,
// useful for tests and smoke-checking the control plane itself.
package nullclaw

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/codervisor/clawden/internal/adapter"
	"github.com/codervisor/clawden/internal/runtimekind"
)

// Adapter is the NullClaw concrete adapter.
type Adapter struct {
	nextHandle atomic.Int64

	mu      sync.Mutex
	running map[int64]*instance
}

type instance struct {
	mu     sync.Mutex
	config map[string]string
}

// New creates a NullClaw Adapter.
func New() *Adapter {
	return &Adapter{running: make(map[int64]*instance)}
}

func (a *Adapter) Metadata(ctx context.Context) (adapter.Metadata, error) {
	return adapter.Metadata{
		RuntimeKind:    runtimekind.NullClaw,
		Version:        "1.0.0",
		Language:       "go",
		Capabilities:   []string{"echo"},
		ChannelSupport: map[string]bool{},
	}, nil
}

func (a *Adapter) Install(ctx context.Context, cfg adapter.InstallConfig) error { return nil }

func (a *Adapter) Start(ctx context.Context, cfg adapter.AgentConfig) (adapter.Handle, error) {
	id := a.nextHandle.Add(1)
	a.mu.Lock()
	a.running[id] = &instance{config: map[string]string{}}
	a.mu.Unlock()
	return id, nil
}

func (a *Adapter) handleOf(h adapter.Handle) (int64, *instance, bool) {
	id, ok := h.(int64)
	if !ok {
		return 0, nil, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	inst, ok := a.running[id]
	return id, inst, ok
}

func (a *Adapter) Stop(ctx context.Context, h adapter.Handle) error {
	id, _, ok := a.handleOf(h)
	if !ok {
		return adapter.NewError("stop", "unknown handle", nil)
	}
	a.mu.Lock()
	delete(a.running, id)
	a.mu.Unlock()
	return nil
}

func (a *Adapter) Restart(ctx context.Context, h adapter.Handle) error {
	_, _, ok := a.handleOf(h)
	if !ok {
		return adapter.NewError("restart", "unknown handle", nil)
	}
	return nil
}

func (a *Adapter) Health(ctx context.Context, h adapter.Handle) (adapter.Health, error) {
	_, _, ok := a.handleOf(h)
	if !ok {
		return adapter.HealthUnknown, adapter.NewError("health", "unknown handle", nil)
	}
	return adapter.HealthHealthy, nil
}

func (a *Adapter) Metrics(ctx context.Context, h adapter.Handle) (adapter.Metrics, error) {
	_, _, ok := a.handleOf(h)
	if !ok {
		return adapter.Metrics{}, adapter.NewError("metrics", "unknown handle", nil)
	}
	return adapter.Metrics{CPUPercent: 0, MemoryMB: 0, QueueDepth: 0}, nil
}

func (a *Adapter) Send(ctx context.Context, h adapter.Handle, msg adapter.Message) (adapter.Response, error) {
	_, _, ok := a.handleOf(h)
	if !ok {
		return adapter.Response{}, adapter.NewError("send", "unknown handle", nil)
	}
	return adapter.Response{Content: fmt.Sprintf("echo: %s", msg.Content)}, nil
}

func (a *Adapter) Subscribe(ctx context.Context, h adapter.Handle, event string) (<-chan []byte, error) {
	_, _, ok := a.handleOf(h)
	if !ok {
		return nil, adapter.NewError("subscribe", "unknown handle", nil)
	}
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (a *Adapter) GetConfig(ctx context.Context, h adapter.Handle) (map[string]string, error) {
	_, inst, ok := a.handleOf(h)
	if !ok {
		return nil, adapter.NewError("get_config", "unknown handle", nil)
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
	_, inst, ok := a.handleOf(h)
	if !ok {
		return adapter.NewError("set_config", "unknown handle", nil)
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.config = cfg
	return nil
}

func (a *Adapter) ListSkills(ctx context.Context, h adapter.Handle) ([]adapter.SkillManifest, error) {
	_, _, ok := a.handleOf(h)
	if !ok {
		return nil, adapter.NewError("list_skills", "unknown handle", nil)
	}
	return nil, nil
}

func (a *Adapter) InstallSkill(ctx context.Context, h adapter.Handle, manifest adapter.SkillManifest) error {
	_, _, ok := a.handleOf(h)
	if !ok {
		return adapter.NewError("install_skill", "unknown handle", nil)
	}
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
