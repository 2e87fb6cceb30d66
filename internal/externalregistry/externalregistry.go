// Package externalregistry implements the External Registry (spec.md
// §4.8): a boot-time-only read source that reconstructs the in-memory
// fleet from an externally managed table. It is consulted exactly once,
// before the Lifecycle Manager starts serving, and never written to.
package externalregistry

import (
	"context"
	"strings"
)

// AgentSeed is the flattened, storage-friendly projection of an agent
// record used only to seed register_agent calls at boot.
type AgentSeed struct {
	ID           string
	Name         string
	RuntimeKind  string
	Capabilities []string
	State        string
	TaskCount    uint64
}

// ExternalRegistry is the uniform read interface; LoadAgents never errors
// on a missing table or file — it returns zero seeds in that case, since
// an empty fleet at boot is the expected steady state, not a failure.
type ExternalRegistry interface {
	LoadAgents(ctx context.Context) ([]AgentSeed, error)
}

const selectAgentsQuery = `SELECT id, name, runtime_kind, capabilities, state, task_count FROM clawden_agents`

// parseCapabilities splits the storage-format comma-joined capability list
// back into an ordered slice, skipping empty segments (so an empty string
// column yields a nil slice, not [""]) and trimming incidental whitespace.
func parseCapabilities(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
