// Package openclaw implements the OpenClaw concrete adapter: a runtime
// reached over a plain REST API on net/http (spec.md §4.1 EXPANSION table),
// the simplest of the network-transport adapters.
package openclaw

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codervisor/clawden/internal/adapter"
	"github.com/codervisor/clawden/internal/runtimekind"
)

// Config carries the base URL template used to reach a OpenClaw instance.
// "{id}" is replaced with the agent ID at Start time.
type Config struct {
	BaseURLTemplate string
	Client          *http.Client
}

type instance struct {
	baseURL string
	mu      sync.Mutex
	config  map[string]string
}

// Adapter is the OpenClaw concrete adapter.
type Adapter struct {
	cfg       Config
	client    *http.Client
	mu        sync.Mutex
	instances map[int64]*instance
	nextID    atomic.Int64
}

// New creates a OpenClaw Adapter using cfg.BaseURLTemplate to locate
// instances.
func New(cfg Config) *Adapter {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Adapter{cfg: cfg, client: client, instances: make(map[int64]*instance)}
}

func (a *Adapter) Metadata(ctx context.Context) (adapter.Metadata, error) {
	return adapter.Metadata{
		RuntimeKind:    runtimekind.OpenClaw,
		Version:        "1.0.0",
		Language:       "multi",
		Capabilities:   []string{"chat", "rest"},
		ChannelSupport: map[string]bool{},
	}, nil
}

func (a *Adapter) Install(ctx context.Context, cfg adapter.InstallConfig) error { return nil }

func resolveURL(template, agentID string) string {
	out := make([]byte, 0, len(template))
	for i := 0; i < len(template); i++ {
		if i+4 <= len(template) && template[i:i+4] == "{id}" {
			out = append(out, agentID...)
			i += 3
			continue
		}
		out = append(out, template[i])
	}
	return string(out)
}

func (a *Adapter) Start(ctx context.Context, cfg adapter.AgentConfig) (adapter.Handle, error) {
	baseURL := resolveURL(a.cfg.BaseURLTemplate, cfg.AgentID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/start", bytes.NewReader(nil))
	if err != nil {
		return nil, adapter.NewError("start", "build request failed", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, adapter.NewError("start", "http request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, adapter.NewError("start", fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	inst := &instance{baseURL: baseURL, config: make(map[string]string)}
	id := a.nextID.Add(1)
	a.mu.Lock()
	a.instances[id] = inst
	a.mu.Unlock()
	return id, nil
}

func (a *Adapter) instanceFor(h adapter.Handle) (*instance, error) {
	id, ok := h.(int64)
	if !ok {
		return nil, adapter.NewError("handle", "invalid openclaw handle", nil)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	inst, ok := a.instances[id]
	if !ok {
		return nil, adapter.NewError("handle", "unknown openclaw handle", nil)
	}
	return inst, nil
}

func (a *Adapter) doJSON(ctx context.Context, method, url string, body interface{}, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (a *Adapter) Stop(ctx context.Context, h adapter.Handle) error {
	id, ok := h.(int64)
	if !ok {
		return adapter.NewError("stop", "invalid openclaw handle", nil)
	}
	a.mu.Lock()
	inst, ok := a.instances[id]
	delete(a.instances, id)
	a.mu.Unlock()
	if !ok {
		return nil
	}
	if err := a.doJSON(ctx, http.MethodPost, inst.baseURL+"/stop", nil, nil); err != nil {
		return adapter.NewError("stop", "http request failed", err)
	}
	return nil
}

func (a *Adapter) Restart(ctx context.Context, h adapter.Handle) error {
	inst, err := a.instanceFor(h)
	if err != nil {
		return err
	}
	if err := a.doJSON(ctx, http.MethodPost, inst.baseURL+"/restart", nil, nil); err != nil {
		return adapter.NewError("restart", "http request failed", err)
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
	if err := a.doJSON(ctx, http.MethodGet, inst.baseURL+"/health", nil, &body); err != nil {
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
	if err := a.doJSON(ctx, http.MethodGet, inst.baseURL+"/metrics", nil, &metrics); err != nil {
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
	if err := a.doJSON(ctx, http.MethodPost, inst.baseURL+"/chat", msg, &resp); err != nil {
		return adapter.Response{}, adapter.NewError("send", "http request failed", err)
	}
	return resp, nil
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
	if err := a.doJSON(ctx, http.MethodPut, inst.baseURL+"/config", cfg, nil); err != nil {
		return adapter.NewError("set_config", "http request failed", err)
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
	if err := a.doJSON(ctx, http.MethodGet, inst.baseURL+"/skills", nil, &skills); err != nil {
		return nil, adapter.NewError("list_skills", "http request failed", err)
	}
	return skills, nil
}

func (a *Adapter) InstallSkill(ctx context.Context, h adapter.Handle, manifest adapter.SkillManifest) error {
	inst, err := a.instanceFor(h)
	if err != nil {
		return err
	}
	if err := a.doJSON(ctx, http.MethodPost, inst.baseURL+"/skills", manifest, nil); err != nil {
		return adapter.NewError("install_skill", "http request failed", err)
	}
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
