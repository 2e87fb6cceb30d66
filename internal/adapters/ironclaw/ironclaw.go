// Package ironclaw implements the IronClaw concrete adapter: a runtime
// reached over NATS request/reply (spec.md §4.1 EXPANSION table). Subjects
// follow "clawden.ironclaw.<agent_id>.<verb>", giving each instance its own
// addressable subject tree on the same NATS server the Fleet Event Bus (C10)
// already connects to.
package ironclaw

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/codervisor/clawden/internal/adapter"
	"github.com/codervisor/clawden/internal/runtimekind"
)

// Config carries the NATS connection used for request/reply and the
// per-call timeout.
type Config struct {
	Conn           *nats.Conn
	RequestTimeout time.Duration
}

type instance struct {
	agentID string
	mu      sync.Mutex
	config  map[string]string
}

// Adapter is the IronClaw concrete adapter.
type Adapter struct {
	conn      *nats.Conn
	timeout   time.Duration
	mu        sync.Mutex
	instances map[int64]*instance
	nextID    atomic.Int64
}

// New wraps an existing NATS connection.
func New(cfg Config) *Adapter {
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Adapter{conn: cfg.Conn, timeout: timeout, instances: make(map[int64]*instance)}
}

func subject(agentID, verb string) string {
	return fmt.Sprintf("clawden.ironclaw.%s.%s", agentID, verb)
}

func (a *Adapter) Metadata(ctx context.Context) (adapter.Metadata, error) {
	return adapter.Metadata{
		RuntimeKind:    runtimekind.IronClaw,
		Version:        "1.0.0",
		Language:       "multi",
		Capabilities:   []string{"chat", "distributed"},
		ChannelSupport: map[string]bool{},
	}, nil
}

func (a *Adapter) Install(ctx context.Context, cfg adapter.InstallConfig) error { return nil }

func (a *Adapter) Start(ctx context.Context, cfg adapter.AgentConfig) (adapter.Handle, error) {
	req, err := json.Marshal(cfg)
	if err != nil {
		return nil, adapter.NewError("start", "marshal config failed", err)
	}
	reqCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	if _, err := a.conn.RequestWithContext(reqCtx, subject(cfg.AgentID, "start"), req); err != nil {
		return nil, adapter.NewError("start", "nats request failed", err)
	}

	inst := &instance{agentID: cfg.AgentID, config: make(map[string]string)}
	id := a.nextID.Add(1)
	a.mu.Lock()
	a.instances[id] = inst
	a.mu.Unlock()
	return id, nil
}

func (a *Adapter) instanceFor(h adapter.Handle) (*instance, error) {
	id, ok := h.(int64)
	if !ok {
		return nil, adapter.NewError("handle", "invalid ironclaw handle", nil)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	inst, ok := a.instances[id]
	if !ok {
		return nil, adapter.NewError("handle", "unknown ironclaw handle", nil)
	}
	return inst, nil
}

func (a *Adapter) request(ctx context.Context, agentID, verb string, payload interface{}, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var data []byte
	var err error
	if payload != nil {
		data, err = json.Marshal(payload)
		if err != nil {
			return err
		}
	}

	msg, err := a.conn.RequestWithContext(ctx, subject(agentID, verb), data)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(msg.Data, out)
}

func (a *Adapter) Stop(ctx context.Context, h adapter.Handle) error {
	id, ok := h.(int64)
	if !ok {
		return adapter.NewError("stop", "invalid ironclaw handle", nil)
	}
	a.mu.Lock()
	inst, ok := a.instances[id]
	delete(a.instances, id)
	a.mu.Unlock()
	if !ok {
		return nil
	}
	if err := a.request(ctx, inst.agentID, "stop", nil, nil); err != nil {
		return adapter.NewError("stop", "nats request failed", err)
	}
	return nil
}

func (a *Adapter) Restart(ctx context.Context, h adapter.Handle) error {
	inst, err := a.instanceFor(h)
	if err != nil {
		return err
	}
	if err := a.request(ctx, inst.agentID, "restart", nil, nil); err != nil {
		return adapter.NewError("restart", "nats request failed", err)
	}
	return nil
}

func (a *Adapter) Health(ctx context.Context, h adapter.Handle) (adapter.Health, error) {
	inst, err := a.instanceFor(h)
	if err != nil {
		return adapter.HealthUnknown, err
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := a.request(ctx, inst.agentID, "health", nil, &body); err != nil {
		return adapter.HealthUnhealthy, nil
	}
	switch body.Status {
	case "healthy":
		return adapter.HealthHealthy, nil
	case "degraded":
		return adapter.HealthDegraded, nil
	case "unhealthy":
		return adapter.HealthUnhealthy, nil
	default:
		return adapter.HealthUnknown, nil
	}
}

func (a *Adapter) Metrics(ctx context.Context, h adapter.Handle) (adapter.Metrics, error) {
	inst, err := a.instanceFor(h)
	if err != nil {
		return adapter.Metrics{}, err
	}
	var metrics adapter.Metrics
	if err := a.request(ctx, inst.agentID, "metrics", nil, &metrics); err != nil {
		return adapter.Metrics{}, nil
	}
	return metrics, nil
}

func (a *Adapter) Send(ctx context.Context, h adapter.Handle, msg adapter.Message) (adapter.Response, error) {
	inst, err := a.instanceFor(h)
	if err != nil {
		return adapter.Response{}, err
	}
	var resp adapter.Response
	if err := a.request(ctx, inst.agentID, "chat", msg, &resp); err != nil {
		return adapter.Response{}, adapter.NewError("send", "nats request failed", err)
	}
	return resp, nil
}

// Subscribe consumes the agent's broadcast subject rather than issuing
// request/reply calls, since streamed events have no single reply to wait
// on.
func (a *Adapter) Subscribe(ctx context.Context, h adapter.Handle, event string) (<-chan []byte, error) {
	inst, err := a.instanceFor(h)
	if err != nil {
		return nil, err
	}

	ch := make(chan []byte)
	sub, err := a.conn.Subscribe(subject(inst.agentID, "events."+event), func(msg *nats.Msg) {
		select {
		case ch <- msg.Data:
		case <-ctx.Done():
		}
	})
	if err != nil {
		close(ch)
		return nil, adapter.NewError("subscribe", "nats subscribe failed", err)
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
		close(ch)
	}()
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
	if err := a.request(ctx, inst.agentID, "set_config", cfg, nil); err != nil {
		return adapter.NewError("set_config", "nats request failed", err)
	}
	inst.mu.Lock()
	inst.config = cfg
	inst.mu.Unlock()
	return nil
}

func (a *Adapter) ListSkills(ctx context.Context, h adapter.Handle) ([]adapter.SkillManifest, error) {
	inst, err := a.instanceFor(h)
	if err != nil {
		return nil, err
	}
	var skills []adapter.SkillManifest
	if err := a.request(ctx, inst.agentID, "list_skills", nil, &skills); err != nil {
		return nil, adapter.NewError("list_skills", "nats request failed", err)
	}
	return skills, nil
}

func (a *Adapter) InstallSkill(ctx context.Context, h adapter.Handle, manifest adapter.SkillManifest) error {
	inst, err := a.instanceFor(h)
	if err != nil {
		return err
	}
	if err := a.request(ctx, inst.agentID, "install_skill", manifest, nil); err != nil {
		return adapter.NewError("install_skill", "nats request failed", err)
	}
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
