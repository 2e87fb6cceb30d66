// Package eventbus implements the Fleet Event Bus (spec.md §4.9): a
// publish/subscribe fabric used to mirror lifecycle, channel and audit
// activity to any interested observer (a dashboard, a log shipper, another
// clawden process). It is not durable and not authoritative — every fact it
// carries also lives in the subsystem that published it.
package eventbus

import (
	"fmt"
	"strings"
)

// Event is one bus message. Subject follows NATS-style dot-separated
// tokens, e.g. "agent.started" or "audit.bind".
type Event struct {
	Type            string
	Source          string
	Payload         map[string]interface{}
	TimestampUnixMS int64
}

// NewEvent builds an Event; callers supply Type/Source/Payload, the bus
// itself does not stamp time since it must stay deterministic for tests —
// callers needing a wall-clock timestamp set it in Payload or before
// construction.
func NewEvent(eventType, source string, payload map[string]interface{}) Event {
	return Event{Type: eventType, Source: source, Payload: payload}
}

// Handler receives events matching a subscription's subject pattern.
type Handler func(subject string, ev Event)

// Unsubscribe cancels a subscription previously returned by Subscribe.
type Unsubscribe func()

// EventBus is the uniform publish/subscribe surface. Two implementations
// exist: MemoryEventBus (single-process, no external dependency) and
// NATSEventBus (wraps github.com/nats-io/nats.go for multi-process fleets,
// matching IronClaw's transport).
type EventBus interface {
	Publish(subject string, ev Event) error
	Subscribe(subjectPattern string, h Handler) (Unsubscribe, error)
	Close() error
}

// matchSubject reports whether subject matches a NATS-style dot-tokenized
// pattern: "*" matches exactly one token, ">" matches one-or-more trailing
// tokens and must be the final pattern token.
func matchSubject(pattern, subject string) bool {
	pTokens := strings.Split(pattern, ".")
	sTokens := strings.Split(subject, ".")

	for i, pt := range pTokens {
		if pt == ">" {
			return i < len(sTokens)
		}
		if i >= len(sTokens) {
			return false
		}
		if pt != "*" && pt != sTokens[i] {
			return false
		}
	}
	return len(pTokens) == len(sTokens)
}

// errClosed is returned by operations on a bus that has already been closed.
var errClosed = fmt.Errorf("eventbus: closed")
