// Package nanoclaw implements the NanoClaw concrete adapter: a runtime
// reached over a persistent WebSocket duplex (spec.md §4.1 EXPANSION
// table), grounded on the teacher's matrix streaming transport which also
// uses gorilla/websocket for long-lived duplex connections.
package nanoclaw

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codervisor/clawden/internal/adapter"
	"github.com/codervisor/clawden/internal/runtimekind"
)

// Config carries the URL template used to dial a NanoClaw instance. "{id}"
// is replaced with the agent ID at Start time.
type Config struct {
	URLTemplate string
	DialTimeout time.Duration
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type connection struct {
	conn  *websocket.Conn
	mu    sync.Mutex // one request-in-flight at a time over the socket
	alive atomic.Bool
}

// Adapter is the NanoClaw concrete adapter.
type Adapter struct {
	cfg Config

	mu          sync.Mutex
	connections map[int64]*connection
	nextID      atomic.Int64
	dialer      *websocket.Dialer
}

// New creates a NanoClaw Adapter using cfg.URLTemplate to locate instances.
func New(cfg Config) *Adapter {
	timeout := cfg.DialTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Adapter{
		cfg:         cfg,
		connections: make(map[int64]*connection),
		dialer:      &websocket.Dialer{HandshakeTimeout: timeout},
	}
}

func (a *Adapter) Metadata(ctx context.Context) (adapter.Metadata, error) {
	return adapter.Metadata{
		RuntimeKind:    runtimekind.NanoClaw,
		Version:        "1.0.0",
		Language:       "multi",
		Capabilities:   []string{"chat", "streaming"},
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
	url := resolveURL(a.cfg.URLTemplate, cfg.AgentID)
	conn, _, err := a.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, adapter.NewError("start", "websocket dial failed", err)
	}

	c := &connection{conn: conn}
	c.alive.Store(true)

	id := a.nextID.Add(1)
	a.mu.Lock()
	a.connections[id] = c
	a.mu.Unlock()
	return id, nil
}

func (a *Adapter) connFor(h adapter.Handle) (*connection, error) {
	id, ok := h.(int64)
	if !ok {
		return nil, adapter.NewError("handle", "invalid nanoclaw handle", nil)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.connections[id]
	if !ok {
		return nil, adapter.NewError("handle", "unknown nanoclaw handle", nil)
	}
	return c, nil
}

func (a *Adapter) Stop(ctx context.Context, h adapter.Handle) error {
	id, ok := h.(int64)
	if !ok {
		return adapter.NewError("stop", "invalid nanoclaw handle", nil)
	}
	a.mu.Lock()
	c, ok := a.connections[id]
	delete(a.connections, id)
	a.mu.Unlock()
	if !ok {
		return nil
	}
	c.alive.Store(false)
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

func (a *Adapter) Restart(ctx context.Context, h adapter.Handle) error {
	_, err := a.connFor(h)
	return err
}

func (a *Adapter) Health(ctx context.Context, h adapter.Handle) (adapter.Health, error) {
	c, err := a.connFor(h)
	if err != nil {
		return adapter.HealthUnknown, err
	}
	if !c.alive.Load() {
		return adapter.HealthUnhealthy, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	deadline := time.Now().Add(3 * time.Second)
	if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		return adapter.HealthUnhealthy, nil
	}
	return adapter.HealthHealthy, nil
}

func (a *Adapter) Metrics(ctx context.Context, h adapter.Handle) (adapter.Metrics, error) {
	if _, err := a.connFor(h); err != nil {
		return adapter.Metrics{}, err
	}
	return adapter.Metrics{}, nil
}

// Send writes one JSON text frame and blocks for the next inbound frame,
// the request/response convention this adapter layers over the duplex.
func (a *Adapter) Send(ctx context.Context, h adapter.Handle, msg adapter.Message) (adapter.Response, error) {
	c, err := a.connFor(h)
	if err != nil {
		return adapter.Response{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.WriteJSON(wireMessage{Role: msg.Role, Content: msg.Content}); err != nil {
		return adapter.Response{}, adapter.NewError("send", "websocket write failed", err)
	}

	var reply wireMessage
	if err := c.conn.ReadJSON(&reply); err != nil {
		c.alive.Store(false)
		return adapter.Response{}, adapter.NewError("send", "websocket read failed", err)
	}
	return adapter.Response{Content: reply.Content}, nil
}

// Subscribe streams every inbound frame on a background goroutine, letting
// Send's request/response traffic and out-of-band events share one socket.
func (a *Adapter) Subscribe(ctx context.Context, h adapter.Handle, event string) (<-chan []byte, error) {
	c, err := a.connFor(h)
	if err != nil {
		return nil, err
	}

	ch := make(chan []byte)
	go func() {
		defer close(ch)
		for {
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				return
			}
			var payload map[string]json.RawMessage
			if err := json.Unmarshal(data, &payload); err == nil {
				if raw, ok := payload["event"]; ok {
					var name string
					if json.Unmarshal(raw, &name) == nil && name != event {
						continue
					}
				}
			}
			select {
			case ch <- data:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (a *Adapter) GetConfig(ctx context.Context, h adapter.Handle) (map[string]string, error) {
	if _, err := a.connFor(h); err != nil {
		return nil, err
	}
	return map[string]string{}, nil
}

func (a *Adapter) SetConfig(ctx context.Context, h adapter.Handle, cfg map[string]string) error {
	_, err := a.connFor(h)
	return err
}

func (a *Adapter) ListSkills(ctx context.Context, h adapter.Handle) ([]adapter.SkillManifest, error) {
	if _, err := a.connFor(h); err != nil {
		return nil, err
	}
	return nil, nil
}

func (a *Adapter) InstallSkill(ctx context.Context, h adapter.Handle, manifest adapter.SkillManifest) error {
	_, err := a.connFor(h)
	return err
}

var _ adapter.Adapter = (*Adapter)(nil)
