// Package microclaw implements the MicroClaw concrete adapter: a runtime
// fronted by a real MCP (Model Context Protocol) tool server, reached via
// github.com/mark3labs/mcp-go's stdio client (spec.md §4.1 EXPANSION
// table). ListSkills/InstallSkill map directly onto MCP's tool listing and
// invocation surface.
package microclaw

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/codervisor/clawden/internal/adapter"
	"github.com/codervisor/clawden/internal/runtimekind"
)

// Config names the MCP server executable to launch per instance.
type Config struct {
	Command string
	Args    []string
}

// Adapter is the MicroClaw concrete adapter.
type Adapter struct {
	cfg Config

	mu      sync.Mutex
	clients map[string]*client.Client // handle ID -> MCP client
	nextID  int64
}

// New creates a MicroClaw Adapter that launches cfg.Command per agent.
func New(cfg Config) *Adapter {
	return &Adapter{cfg: cfg, clients: make(map[string]*client.Client)}
}

func (a *Adapter) Metadata(ctx context.Context) (adapter.Metadata, error) {
	return adapter.Metadata{
		RuntimeKind:    runtimekind.MicroClaw,
		Version:        "1.0.0",
		Language:       "multi",
		Capabilities:   []string{"chat", "tools"},
		ChannelSupport: map[string]bool{},
	}, nil
}

func (a *Adapter) Install(ctx context.Context, cfg adapter.InstallConfig) error { return nil }

func (a *Adapter) Start(ctx context.Context, cfg adapter.AgentConfig) (adapter.Handle, error) {
	env := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	c, err := client.NewStdioMCPClient(a.cfg.Command, env, a.cfg.Args...)
	if err != nil {
		return nil, adapter.NewError("start", "mcp client launch failed", err)
	}

	if _, err := c.Initialize(ctx, mcp.InitializeRequest{}); err != nil {
		c.Close()
		return nil, adapter.NewError("start", "mcp initialize failed", err)
	}

	a.mu.Lock()
	a.nextID++
	handle := fmt.Sprintf("microclaw-%d", a.nextID)
	a.clients[handle] = c
	a.mu.Unlock()
	return handle, nil
}

func (a *Adapter) clientFor(h adapter.Handle) (*client.Client, error) {
	id, ok := h.(string)
	if !ok {
		return nil, adapter.NewError("handle", "invalid microclaw handle", nil)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.clients[id]
	if !ok {
		return nil, adapter.NewError("handle", "unknown microclaw handle", nil)
	}
	return c, nil
}

func (a *Adapter) Stop(ctx context.Context, h adapter.Handle) error {
	id, ok := h.(string)
	if !ok {
		return adapter.NewError("stop", "invalid microclaw handle", nil)
	}
	a.mu.Lock()
	c, ok := a.clients[id]
	delete(a.clients, id)
	a.mu.Unlock()
	if !ok {
		return nil
	}
	return c.Close()
}

func (a *Adapter) Restart(ctx context.Context, h adapter.Handle) error {
	_, err := a.clientFor(h)
	return err
}

func (a *Adapter) Health(ctx context.Context, h adapter.Handle) (adapter.Health, error) {
	c, err := a.clientFor(h)
	if err != nil {
		return adapter.HealthUnknown, err
	}
	if _, err := c.Ping(ctx); err != nil {
		return adapter.HealthUnhealthy, nil
	}
	return adapter.HealthHealthy, nil
}

func (a *Adapter) Metrics(ctx context.Context, h adapter.Handle) (adapter.Metrics, error) {
	if _, err := a.clientFor(h); err != nil {
		return adapter.Metrics{}, err
	}
	return adapter.Metrics{}, nil
}

// Send invokes the MCP server's "chat" tool, the convention this adapter
// expects every MicroClaw-compatible server to expose.
func (a *Adapter) Send(ctx context.Context, h adapter.Handle, msg adapter.Message) (adapter.Response, error) {
	c, err := a.clientFor(h)
	if err != nil {
		return adapter.Response{}, err
	}

	result, err := c.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name: "chat",
			Arguments: map[string]interface{}{
				"role":    msg.Role,
				"content": msg.Content,
			},
		},
	})
	if err != nil {
		return adapter.Response{}, adapter.NewError("send", "mcp tool call failed", err)
	}

	var text string
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			text += tc.Text
		}
	}
	return adapter.Response{Content: text}, nil
}

func (a *Adapter) Subscribe(ctx context.Context, h adapter.Handle, event string) (<-chan []byte, error) {
	if _, err := a.clientFor(h); err != nil {
		return nil, err
	}
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (a *Adapter) GetConfig(ctx context.Context, h adapter.Handle) (map[string]string, error) {
	if _, err := a.clientFor(h); err != nil {
		return nil, err
	}
	return map[string]string{}, nil
}

func (a *Adapter) SetConfig(ctx context.Context, h adapter.Handle, cfg map[string]string) error {
	_, err := a.clientFor(h)
	return err
}

// ListSkills maps to an MCP tools/list call.
func (a *Adapter) ListSkills(ctx context.Context, h adapter.Handle) ([]adapter.SkillManifest, error) {
	c, err := a.clientFor(h)
	if err != nil {
		return nil, err
	}
	result, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, adapter.NewError("list_skills", "mcp list tools failed", err)
	}
	skills := make([]adapter.SkillManifest, 0, len(result.Tools))
	for _, tool := range result.Tools {
		skills = append(skills, adapter.SkillManifest{Name: tool.Name, Source: "mcp"})
	}
	return skills, nil
}

// InstallSkill maps to invoking the MCP server's convention "install_skill"
// tool, passing the manifest through as arguments.
func (a *Adapter) InstallSkill(ctx context.Context, h adapter.Handle, manifest adapter.SkillManifest) error {
	c, err := a.clientFor(h)
	if err != nil {
		return err
	}
	_, err = c.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name: "install_skill",
			Arguments: map[string]interface{}{
				"name":    manifest.Name,
				"version": manifest.Version,
				"source":  manifest.Source,
			},
		},
	})
	if err != nil {
		return adapter.NewError("install_skill", "mcp tool call failed", err)
	}
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
