// Package zeroclaw implements the ZeroClaw concrete adapter: a native
// subprocess speaking line-delimited JSON over stdin/stdout (spec.md §4.1
// EXPANSION table), grounded on the teacher's agentctl process manager
// (exec.Command with piped stdio and an atomic status).
package zeroclaw

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/codervisor/clawden/internal/adapter"
	"github.com/codervisor/clawden/internal/runtimekind"
)

// Config names the executable ZeroClaw instances run.
type Config struct {
	ExecutablePath string
	Args           []string
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	mu      sync.Mutex // serializes the one-request-in-flight-at-a-time stdio protocol
	alive   atomic.Bool
	configs map[string]string
}

// Adapter is the ZeroClaw concrete adapter.
type Adapter struct {
	cfg Config

	mu        sync.Mutex
	processes map[int64]*process
	nextID    atomic.Int64
}

// New creates a ZeroClaw Adapter that launches cfg.ExecutablePath per
// agent.
func New(cfg Config) *Adapter {
	return &Adapter{cfg: cfg, processes: make(map[int64]*process)}
}

func (a *Adapter) Metadata(ctx context.Context) (adapter.Metadata, error) {
	return adapter.Metadata{
		RuntimeKind:    runtimekind.ZeroClaw,
		Version:        "1.0.0",
		Language:       "multi",
		Capabilities:   []string{"chat", "embedded"},
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

	p := &process{cmd: cmd, stdin: stdin, stdout: bufio.NewReader(stdout), configs: make(map[string]string)}
	p.alive.Store(true)
	go func() {
		cmd.Wait()
		p.alive.Store(false)
	}()

	id := a.nextID.Add(1)
	a.mu.Lock()
	a.processes[id] = p
	a.mu.Unlock()
	return id, nil
}

func (a *Adapter) processFor(h adapter.Handle) (*process, error) {
	id, ok := h.(int64)
	if !ok {
		return nil, adapter.NewError("handle", "invalid zeroclaw handle", nil)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.processes[id]
	if !ok {
		return nil, adapter.NewError("handle", "unknown zeroclaw handle", nil)
	}
	return p, nil
}

func (a *Adapter) Stop(ctx context.Context, h adapter.Handle) error {
	id, ok := h.(int64)
	if !ok {
		return adapter.NewError("stop", "invalid zeroclaw handle", nil)
	}
	a.mu.Lock()
	p, ok := a.processes[id]
	delete(a.processes, id)
	a.mu.Unlock()
	if !ok {
		return nil
	}
	p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	return nil
}

func (a *Adapter) Restart(ctx context.Context, h adapter.Handle) error {
	_, err := a.processFor(h)
	return err
}

func (a *Adapter) Health(ctx context.Context, h adapter.Handle) (adapter.Health, error) {
	p, err := a.processFor(h)
	if err != nil {
		return adapter.HealthUnknown, err
	}
	if p.alive.Load() {
		return adapter.HealthHealthy, nil
	}
	return adapter.HealthUnhealthy, nil
}

func (a *Adapter) Metrics(ctx context.Context, h adapter.Handle) (adapter.Metrics, error) {
	if _, err := a.processFor(h); err != nil {
		return adapter.Metrics{}, err
	}
	return adapter.Metrics{}, nil
}

// Send writes one JSON line to stdin and reads one JSON line reply from
// stdout, the line-JSON protocol this adapter implements.
func (a *Adapter) Send(ctx context.Context, h adapter.Handle, msg adapter.Message) (adapter.Response, error) {
	p, err := a.processFor(h)
	if err != nil {
		return adapter.Response{}, err
	}
	if !p.alive.Load() {
		return adapter.Response{}, adapter.NewError("send", "process exited", nil)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := json.Marshal(wireMessage{Role: msg.Role, Content: msg.Content})
	if err != nil {
		return adapter.Response{}, adapter.NewError("send", "marshal request failed", err)
	}
	if _, err := p.stdin.Write(append(data, '\n')); err != nil {
		return adapter.Response{}, adapter.NewError("send", "write to stdin failed", err)
	}

	line, err := p.stdout.ReadBytes('\n')
	if err != nil {
		return adapter.Response{}, adapter.NewError("send", "read from stdout failed", err)
	}

	var reply wireMessage
	if err := json.Unmarshal(line, &reply); err != nil {
		return adapter.Response{}, adapter.NewError("send", "unmarshal response failed", err)
	}
	return adapter.Response{Content: reply.Content}, nil
}

func (a *Adapter) Subscribe(ctx context.Context, h adapter.Handle, event string) (<-chan []byte, error) {
	if _, err := a.processFor(h); err != nil {
		return nil, err
	}
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (a *Adapter) GetConfig(ctx context.Context, h adapter.Handle) (map[string]string, error) {
	p, err := a.processFor(h)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, len(p.configs))
	for k, v := range p.configs {
		out[k] = v
	}
	return out, nil
}

func (a *Adapter) SetConfig(ctx context.Context, h adapter.Handle, cfg map[string]string) error {
	p, err := a.processFor(h)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.configs = cfg
	return nil
}

func (a *Adapter) ListSkills(ctx context.Context, h adapter.Handle) ([]adapter.SkillManifest, error) {
	if _, err := a.processFor(h); err != nil {
		return nil, err
	}
	return nil, nil
}

func (a *Adapter) InstallSkill(ctx context.Context, h adapter.Handle, manifest adapter.SkillManifest) error {
	_, err := a.processFor(h)
	return err
}

var _ adapter.Adapter = (*Adapter)(nil)
