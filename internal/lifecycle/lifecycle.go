// Package lifecycle implements the Lifecycle Manager (spec.md §4.5): the
// in-memory agent state machine, its health-monitor loop with
// backoff-scheduled recovery, and capability-aware task routing. It is the
// single largest subsystem and the one every other core component is
// wired through.
package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/codervisor/clawden/internal/adapter"
	"github.com/codervisor/clawden/internal/apperrors"
	"github.com/codervisor/clawden/internal/audit"
	"github.com/codervisor/clawden/internal/eventbus"
	"github.com/codervisor/clawden/internal/logger"
	"github.com/codervisor/clawden/internal/registry"
	"github.com/codervisor/clawden/internal/runtimekind"
)

// healthPollConcurrency bounds how many adapter Health calls RefreshHealth
// runs at once.
const healthPollConcurrency = 8

// State is one of the five recognized agent lifecycle states.
type State string

const (
	StateRegistered State = "registered"
	StateInstalled  State = "installed"
	StateRunning    State = "running"
	StateStopped    State = "stopped"
	StateDegraded   State = "degraded"
)

// legalEdges enumerates every non-self-loop transition; every state also
// self-loops, checked separately in canTransition.
var legalEdges = map[State]map[State]bool{
	StateRegistered: {StateInstalled: true},
	StateInstalled:  {StateRunning: true},
	StateRunning:    {StateStopped: true, StateDegraded: true},
	StateDegraded:   {StateRunning: true},
	StateStopped:    {StateRunning: true},
}

func canTransition(from, to State) bool {
	if from == to {
		return true
	}
	return legalEdges[from][to]
}

// AgentRecord is the in-memory projection of one registered agent.
type AgentRecord struct {
	ID                        string
	Name                      string
	RuntimeKind               runtimekind.Kind
	Capabilities              []string
	Env                       map[string]string
	State                     State
	TaskCount                 uint64
	Health                    adapter.Health
	ConsecutiveHealthFailures uint32
	LastHealthCheckUnixMS     *int64
	NextRecoveryAttemptUnixMS *int64
}

func (r AgentRecord) snapshot() AgentRecord {
	out := r
	out.Capabilities = append([]string(nil), r.Capabilities...)
	if r.Env != nil {
		out.Env = make(map[string]string, len(r.Env))
		for k, v := range r.Env {
			out.Env[k] = v
		}
	}
	if r.LastHealthCheckUnixMS != nil {
		v := *r.LastHealthCheckUnixMS
		out.LastHealthCheckUnixMS = &v
	}
	if r.NextRecoveryAttemptUnixMS != nil {
		v := *r.NextRecoveryAttemptUnixMS
		out.NextRecoveryAttemptUnixMS = &v
	}
	return out
}

// NowFunc is overridable in tests that need deterministic timestamps.
type NowFunc func() int64

func defaultNow() int64 { return time.Now().UnixMilli() }

// Manager is the concurrency-safe Lifecycle Manager.
type Manager struct {
	mu              sync.RWMutex
	registry        *registry.Registry
	agents          map[string]*AgentRecord
	handles         map[string]adapter.Handle
	nextID          uint64
	roundRobinIndex uint64

	audit  *audit.Sink
	bus    eventbus.EventBus
	logger *logger.Logger
	now    NowFunc
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithAudit attaches an audit sink; every state-changing operation appends
// an event to it.
func WithAudit(sink *audit.Sink) Option {
	return func(m *Manager) { m.audit = sink }
}

// WithEventBus attaches a Fleet Event Bus mirror for lifecycle transitions.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(m *Manager) { m.bus = bus }
}

// WithNowFunc overrides the clock; intended for tests.
func WithNowFunc(f NowFunc) Option {
	return func(m *Manager) { m.now = f }
}

// New creates a Manager bound to reg.
func New(reg *registry.Registry, log *logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		registry: reg,
		agents:   make(map[string]*AgentRecord),
		handles:  make(map[string]adapter.Handle),
		logger:   log.WithComponent("lifecycle"),
		now:      defaultNow,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) emitAudit(action, target string) {
	if m.audit != nil {
		m.audit.Append("lifecycle-manager", action, target, m.now())
	}
}

func (m *Manager) publish(eventType, agentID string, payload map[string]interface{}) {
	if m.bus == nil {
		return
	}
	if payload == nil {
		payload = map[string]interface{}{}
	}
	payload["agent_id"] = agentID
	_ = m.bus.Publish("agent."+eventType, eventbus.NewEvent(eventType, "lifecycle-manager", payload))
}

// RegisterAgent allocates a new agent-<n> ID and inserts a Registered
// record. This operation never fails.
func (m *Manager) RegisterAgent(name string, kind runtimekind.Kind, capabilities []string, env map[string]string) AgentRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := fmt.Sprintf("agent-%d", m.nextID)
	rec := &AgentRecord{
		ID:           id,
		Name:         name,
		RuntimeKind:  kind,
		Capabilities: append([]string(nil), capabilities...),
		Env:          env,
		State:        StateRegistered,
		Health:       adapter.HealthUnknown,
	}
	m.agents[id] = rec
	m.emitAudit("agent.registered", id)
	m.publish("registered", id, map[string]interface{}{"runtime_kind": kind.String()})
	return rec.snapshot()
}

// ListAgents returns every record, sorted by ID (lexicographic).
func (m *Manager) ListAgents() []AgentRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.agents))
	for id := range m.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]AgentRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.agents[id].snapshot())
	}
	return out
}

// GetAgent returns a single record by ID.
func (m *Manager) GetAgent(id string) (AgentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.agents[id]
	if !ok {
		return AgentRecord{}, apperrors.NotFound("agent", id)
	}
	return rec.snapshot(), nil
}

func (m *Manager) agentConfig(rec *AgentRecord) adapter.AgentConfig {
	return adapter.AgentConfig{
		AgentID:      rec.ID,
		Name:         rec.Name,
		Capabilities: append([]string(nil), rec.Capabilities...),
		Env:          rec.Env,
	}
}

// StartAgent transitions id toward Running, invoking the bound adapter's
// Start operation.
func (m *Manager) StartAgent(ctx context.Context, id string) (AgentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.agents[id]
	if !ok {
		return AgentRecord{}, apperrors.NotFound("agent", id)
	}

	a, ok := m.registry.Get(rec.RuntimeKind)
	if !ok {
		return AgentRecord{}, apperrors.NoAdapter(rec.RuntimeKind.String())
	}

	if rec.State != StateRegistered && !canTransition(rec.State, StateRunning) {
		return AgentRecord{}, apperrors.InvalidTransition(string(rec.State), string(StateRunning))
	}

	handle, err := a.Start(ctx, m.agentConfig(rec))
	if err != nil {
		return AgentRecord{}, apperrors.AdapterFailure("start", err)
	}

	rec.State = StateRunning
	rec.Health = adapter.HealthUnknown
	m.handles[id] = handle
	m.emitAudit("agent.started", id)
	m.publish("started", id, nil)
	return rec.snapshot(), nil
}

// StopAgent transitions id toward Stopped. It is idempotent: an agent with
// no recorded handle short-circuits to a state update.
func (m *Manager) StopAgent(ctx context.Context, id string) (AgentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.agents[id]
	if !ok {
		return AgentRecord{}, apperrors.NotFound("agent", id)
	}

	handle, hasHandle := m.handles[id]
	if !hasHandle {
		if canTransition(rec.State, StateStopped) {
			rec.State = StateStopped
		}
		return rec.snapshot(), nil
	}

	a, ok := m.registry.Get(rec.RuntimeKind)
	if !ok {
		return AgentRecord{}, apperrors.NoAdapter(rec.RuntimeKind.String())
	}

	if err := a.Stop(ctx, handle); err != nil {
		return AgentRecord{}, apperrors.AdapterFailure("stop", err)
	}

	delete(m.handles, id)
	if canTransition(rec.State, StateStopped) {
		rec.State = StateStopped
	}
	m.emitAudit("agent.stopped", id)
	m.publish("stopped", id, nil)
	return rec.snapshot(), nil
}

// RestartAgent stops id (ignoring a stop failure, matching the original
// restart handler's "stop then start, ignore stop error" shape) and starts
// it again.
func (m *Manager) RestartAgent(ctx context.Context, id string) (AgentRecord, error) {
	if _, err := m.StopAgent(ctx, id); err != nil {
		m.logger.Warn("restart: stop failed, continuing to start", zap.String("agent_id", id), zap.Error(err))
	}

	rec, err := m.StartAgent(ctx, id)
	if err != nil {
		return AgentRecord{}, err
	}
	m.emitAudit("agent.restarted", id)
	return rec, nil
}

// ListRuntimeMetadata returns adapter.Metadata for every registered runtime
// kind, sorted by canonical dashed form, for the /channels/support-matrix
// collaborator endpoint.
func (m *Manager) ListRuntimeMetadata(ctx context.Context) []adapter.Metadata {
	out := make([]adapter.Metadata, 0, len(m.registry.List()))
	for _, kind := range m.registry.List() {
		a, ok := m.registry.Get(kind)
		if !ok {
			continue
		}
		meta, err := a.Metadata(ctx)
		if err != nil {
			continue
		}
		out = append(out, meta)
	}
	return out
}

// backoff implements backoff(base_ms, failures) = min(base_ms *
// 2^min(failures-1,6), 300_000) from spec.md §4.5.
func backoff(baseMS int64, failures uint32) int64 {
	if failures == 0 {
		failures = 1
	}
	shift := failures - 1
	if shift > 6 {
		shift = 6
	}
	val := baseMS << shift
	const cap = 300_000
	if val > cap {
		val = cap
	}
	return val
}

// healthTarget is a snapshot of what RefreshHealth needs to poll one agent,
// captured under lock so the actual Health call can run lock-free.
type healthTarget struct {
	id     string
	handle adapter.Handle
	a      adapter.Adapter
}

type healthResult struct {
	id     string
	health adapter.Health
	err    error
}

// RefreshHealth polls every agent's adapter (if any) and updates health,
// failure counters and recovery scheduling. Polls run concurrently, bounded
// by a semaphore, since iteration order has no bearing on correctness here.
func (m *Manager) RefreshHealth(ctx context.Context, baseBackoffMS int64) {
	now := m.now()

	m.mu.Lock()
	targets := make([]healthTarget, 0, len(m.agents))
	for id, rec := range m.agents {
		rec.LastHealthCheckUnixMS = &now

		handle, hasHandle := m.handles[id]
		a, hasAdapter := m.registry.Get(rec.RuntimeKind)
		if !hasHandle || !hasAdapter {
			rec.Health = adapter.HealthUnknown
			continue
		}
		targets = append(targets, healthTarget{id: id, handle: handle, a: a})
	}
	m.mu.Unlock()

	results := make([]healthResult, len(targets))
	sem := semaphore.NewWeighted(healthPollConcurrency)
	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func(i int, t healthTarget) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				results[i] = healthResult{id: t.id, err: err}
				return
			}
			defer sem.Release(1)
			h, err := t.a.Health(ctx, t.handle)
			results[i] = healthResult{id: t.id, health: h, err: err}
		}(i, t)
	}
	wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range results {
		rec, ok := m.agents[r.id]
		if !ok {
			continue
		}

		if r.err == nil {
			rec.Health = r.health
			rec.ConsecutiveHealthFailures = 0
			rec.NextRecoveryAttemptUnixMS = nil
			continue
		}

		rec.Health = adapter.HealthDegraded
		if rec.ConsecutiveHealthFailures < ^uint32(0) {
			rec.ConsecutiveHealthFailures++
		}
		next := now + backoff(baseBackoffMS, rec.ConsecutiveHealthFailures)
		rec.NextRecoveryAttemptUnixMS = &next
		if canTransition(rec.State, StateDegraded) {
			rec.State = StateDegraded
			m.publish("degraded", r.id, nil)
		}
	}
}

// RecoverDegraded attempts to recover every Degraded agent whose recovery
// time is due.
func (m *Manager) RecoverDegraded(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, rec := range m.agents {
		if rec.State != StateDegraded {
			continue
		}
		due := rec.NextRecoveryAttemptUnixMS == nil || *rec.NextRecoveryAttemptUnixMS <= now
		if !due {
			continue
		}

		a, ok := m.registry.Get(rec.RuntimeKind)
		if !ok {
			continue
		}

		var err error
		if handle, hasHandle := m.handles[id]; hasHandle {
			err = a.Restart(ctx, handle)
		} else {
			var handle adapter.Handle
			handle, err = a.Start(ctx, m.agentConfig(rec))
			if err == nil {
				m.handles[id] = handle
			}
		}

		if err != nil {
			continue
		}

		if canTransition(rec.State, StateRunning) {
			rec.State = StateRunning
		}
		rec.ConsecutiveHealthFailures = 0
		rec.NextRecoveryAttemptUnixMS = nil
		rec.Health = adapter.HealthUnknown
		m.emitAudit("agent.recovered", id)
		m.publish("recovered", id, nil)
	}
}

// HealthTick runs RefreshHealth then RecoverDegraded and emits a health.tick
// audit event; this is the body invoked by the periodic health-monitor loop.
// Each step takes the manager's write lock on its own, and RefreshHealth
// releases it while adapter Health calls run, so other operations can
// interleave within one tick.
func (m *Manager) HealthTick(ctx context.Context, baseBackoffMS int64) {
	m.RefreshHealth(ctx, baseBackoffMS)
	m.RecoverDegraded(ctx)
	m.emitAudit("health.tick", "fleet")
}

// RunHealthLoop blocks, ticking HealthTick every interval until ctx is
// canceled. Callers run this in its own goroutine.
func (m *Manager) RunHealthLoop(ctx context.Context, interval time.Duration, baseBackoffMS int64) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.HealthTick(ctx, baseBackoffMS)
		}
	}
}

// hasOrderedSubsequence reports whether every element of required appears
// in capabilities, in order, as a (not necessarily contiguous) subsequence.
func hasOrderedSubsequence(capabilities, required []string) bool {
	idx := 0
	for _, want := range required {
		found := false
		for idx < len(capabilities) {
			if capabilities[idx] == want {
				found = true
				idx++
				break
			}
			idx++
		}
		if !found {
			return false
		}
	}
	return true
}

// Select implements the capability-aware ranking from spec.md §4.5:
// eligible Running agents whose capabilities satisfy required (as an
// ordered subsequence) are ranked by (task_count ASC, cost_tier ASC, id
// ASC); the top-scoring group round-robins via roundRobinIndex.
func (m *Manager) Select(required []string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectLocked(required)
}

func (m *Manager) selectLocked(required []string) (string, error) {
	var eligible []*AgentRecord
	for _, rec := range m.agents {
		if rec.State != StateRunning {
			continue
		}
		if !hasOrderedSubsequence(rec.Capabilities, required) {
			continue
		}
		eligible = append(eligible, rec)
	}
	if len(eligible) == 0 {
		return "", apperrors.SelectionFailed()
	}

	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.TaskCount != b.TaskCount {
			return a.TaskCount < b.TaskCount
		}
		at, bt := a.RuntimeKind.CostTier(), b.RuntimeKind.CostTier()
		if at != bt {
			return at < bt
		}
		return a.ID < b.ID
	})

	best := eligible[0]
	var group []*AgentRecord
	for _, rec := range eligible {
		if rec.TaskCount == best.TaskCount && rec.RuntimeKind.CostTier() == best.RuntimeKind.CostTier() {
			group = append(group, rec)
		}
	}

	chosen := group[m.roundRobinIndex%uint64(len(group))]
	m.roundRobinIndex++
	return chosen.ID, nil
}

// RouteAndSend dispatches message to targetAgentID if given, else to the
// result of Select(requiredCapabilities).
func (m *Manager) RouteAndSend(ctx context.Context, requiredCapabilities []string, message adapter.Message, targetAgentID *string) (AgentRecord, adapter.Response, error) {
	m.mu.Lock()

	var id string
	if targetAgentID != nil && *targetAgentID != "" {
		id = *targetAgentID
	} else {
		selected, err := m.selectLocked(requiredCapabilities)
		if err != nil {
			m.mu.Unlock()
			return AgentRecord{}, adapter.Response{}, err
		}
		id = selected
	}

	rec, ok := m.agents[id]
	if !ok {
		m.mu.Unlock()
		return AgentRecord{}, adapter.Response{}, apperrors.NotFound("agent", id)
	}

	handle, hasHandle := m.handles[id]
	if rec.State != StateRunning || !hasHandle {
		m.mu.Unlock()
		return AgentRecord{}, adapter.Response{}, apperrors.NoRunningHandle(id)
	}

	a, ok := m.registry.Get(rec.RuntimeKind)
	if !ok {
		m.mu.Unlock()
		return AgentRecord{}, adapter.Response{}, apperrors.NoAdapter(rec.RuntimeKind.String())
	}

	resp, err := a.Send(ctx, handle, message)
	if err != nil {
		m.mu.Unlock()
		return AgentRecord{}, adapter.Response{}, apperrors.AdapterFailure("send", err)
	}

	rec.TaskCount++
	snapshot := rec.snapshot()
	m.mu.Unlock()

	m.emitAudit("agent.task_dispatched", id)
	m.publish("task_dispatched", id, map[string]interface{}{"task_count": snapshot.TaskCount})
	return snapshot, resp, nil
}

// FleetStatus summarizes agent counts by state, for the /fleet/status
// collaborator endpoint.
type FleetStatus struct {
	TotalAgents    int
	RunningAgents  int
	DegradedAgents int
}

// Status computes a fresh FleetStatus snapshot.
func (m *Manager) Status() FleetStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := FleetStatus{TotalAgents: len(m.agents)}
	for _, rec := range m.agents {
		switch rec.State {
		case StateRunning:
			st.RunningAgents++
		case StateDegraded:
			st.DegradedAgents++
		}
	}
	return st
}

// SeedFromExternalRegistry inserts agent records recovered from a boot-time
// external registry seed (spec.md §4.8 EXPANSION), skipping any ID already
// present. It never overwrites in-memory state set up before boot
// completed.
func (m *Manager) SeedFromExternalRegistry(seeds []AgentRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	maxSeen := m.nextID
	for _, seed := range seeds {
		if _, exists := m.agents[seed.ID]; exists {
			continue
		}
		rec := seed
		rec.Health = adapter.HealthUnknown
		m.agents[seed.ID] = &rec

		var n uint64
		if _, err := fmt.Sscanf(seed.ID, "agent-%d", &n); err == nil && n > maxSeen {
			maxSeen = n
		}
	}
	if maxSeen > m.nextID {
		m.nextID = maxSeen
	}
}
