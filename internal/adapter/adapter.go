// Package adapter defines the uniform capability surface every runtime
// flavor implements (spec.md §4.1). Adapters are pure objects: the registry
// hands out shared references, and adapters never retain state that
// outlives a Stop call — the Lifecycle Manager owns the handle lifecycle.
package adapter

import (
	"context"

	"github.com/codervisor/clawden/internal/runtimekind"
)

// Health mirrors the agent record's health enumeration.
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthDegraded  Health = "degraded"
	HealthUnhealthy Health = "unhealthy"
	HealthUnknown   Health = "unknown"
)

// Handle is the opaque token returned by Start and required by every
// subsequent per-instance operation. Concrete adapters define what's behind
// it; callers never inspect it.
type Handle interface{}

// Metadata is the adapter's static, handle-less self-description.
type Metadata struct {
	RuntimeKind     runtimekind.Kind
	Version         string
	Language        string
	Capabilities    []string
	ChannelSupport  map[string]bool
}

// InstallConfig carries whatever a given adapter needs to prepare its
// runtime; adapters are free to treat Install as a no-op.
type InstallConfig struct {
	Options map[string]string
}

// AgentConfig carries whatever a given adapter needs to start an instance.
type AgentConfig struct {
	AgentID      string
	Name         string
	Capabilities []string
	Env          map[string]string
}

// Message is a single turn sent to Send.
type Message struct {
	Role    string
	Content string
}

// Response is Send's synchronous reply.
type Response struct {
	Content string
}

// Metrics is the point-in-time resource snapshot returned by Metrics.
type Metrics struct {
	CPUPercent float64
	MemoryMB   float64
	QueueDepth int
}

// SkillManifest describes one installable skill.
type SkillManifest struct {
	Name    string
	Version string
	Source  string
}

// Error is the single error kind every adapter operation may fail with.
type Error struct {
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return "adapter error: " + e.Op + ": " + e.Message + ": " + e.Err.Error()
	}
	return "adapter error: " + e.Op + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an adapter Error.
func NewError(op, message string, cause error) *Error {
	return &Error{Op: op, Message: message, Err: cause}
}

// Adapter is the uniform capability surface for one runtime flavor.
// Implementations must tolerate concurrent calls to distinct handles; for a
// single handle, callers serialize through the Lifecycle Manager's per-agent
// write lock, so implementations need not add their own per-handle mutex
// unless they hold state a naive caller could race.
type Adapter interface {
	Metadata(ctx context.Context) (Metadata, error)
	Install(ctx context.Context, cfg InstallConfig) error
	Start(ctx context.Context, cfg AgentConfig) (Handle, error)
	Stop(ctx context.Context, h Handle) error
	Restart(ctx context.Context, h Handle) error
	Health(ctx context.Context, h Handle) (Health, error)
	Metrics(ctx context.Context, h Handle) (Metrics, error)
	Send(ctx context.Context, h Handle, msg Message) (Response, error)
	Subscribe(ctx context.Context, h Handle, event string) (<-chan []byte, error)
	GetConfig(ctx context.Context, h Handle) (map[string]string, error)
	SetConfig(ctx context.Context, h Handle, cfg map[string]string) error
	ListSkills(ctx context.Context, h Handle) ([]SkillManifest, error)
	InstallSkill(ctx context.Context, h Handle, manifest SkillManifest) error
}
