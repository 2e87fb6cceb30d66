// Package audit implements the append-only event log (spec.md §4.7): an
// in-memory vector mirrored best-effort to a tab-separated file. File I/O
// never propagates an error to the caller — a write failure only loses the
// durability of that one line, never the operation that triggered it.
package audit

import (
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/codervisor/clawden/internal/eventbus"
	"github.com/codervisor/clawden/internal/logger"
)

// Event is one audit record. Field order is (actor, action, target,
// timestamp_unix_ms) per spec.md §3 — independent from the supervisor's
// tab-separated file schema, which is its own sink (spec.md §9.2).
type Event struct {
	Actor           string
	Action          string
	Target          string
	TimestampUnixMS int64
}

// Sink is the audit log: an in-memory vector plus a best-effort file mirror
// and, when a Fleet Event Bus is attached, a best-effort bus publish under
// subject "audit.<action>".
type Sink struct {
	mu       sync.RWMutex
	events   []Event
	filePath string
	file     *os.File
	bus      eventbus.EventBus
	logger   *logger.Logger
}

// New creates a Sink. filePath may be empty to disable the file mirror; bus
// may be nil to disable publish-mirroring.
func New(filePath string, bus eventbus.EventBus, log *logger.Logger) *Sink {
	s := &Sink{filePath: filePath, bus: bus, logger: log.WithComponent("audit")}
	if filePath != "" {
		f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			s.logger.Warn("failed to open audit log file, continuing with memory-only sink", zap.Error(err))
		} else {
			s.file = f
		}
	}
	return s
}

// Append records a state-changing event. It never returns an error.
func (s *Sink) Append(actor, action, target string, nowUnixMS int64) {
	ev := Event{Actor: actor, Action: action, Target: target, TimestampUnixMS: nowUnixMS}

	s.mu.Lock()
	s.events = append(s.events, ev)
	file := s.file
	s.mu.Unlock()

	if file != nil {
		line := fmt.Sprintf("%d\t%s\t%s\t%s\n", ev.TimestampUnixMS, ev.Action, ev.Target, ev.Actor)
		if _, err := file.WriteString(line); err != nil {
			s.logger.Warn("audit file write failed, continuing", zap.Error(err))
		}
	}

	if s.bus != nil {
		_ = s.bus.Publish("audit."+action, eventbus.NewEvent(action, "audit-sink", map[string]interface{}{
			"actor":  ev.Actor,
			"target": ev.Target,
			"ts_ms":  ev.TimestampUnixMS,
		}))
	}
}

// List returns a snapshot of every recorded event, oldest first.
func (s *Sink) List() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Close releases the underlying file handle, if any.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// Now returns the current time in Unix milliseconds, the audit clock shared
// by every caller of Append.
func Now() int64 { return time.Now().UnixMilli() }
