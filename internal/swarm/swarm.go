// Package swarm implements the Swarm Coordinator (spec.md §4.6): naming and
// membership for small agent teams, and round-robin fan-out of a parent
// task into per-member subtasks.
package swarm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/codervisor/clawden/internal/apperrors"
)

// fanOutDispatchConcurrency bounds how many child tasks FanOut dispatches
// at once when a Dispatcher is configured.
const fanOutDispatchConcurrency = 4

// Dispatcher hands a freshly assigned child task off to wherever actual
// work happens (typically a lifecycle.Manager.RouteAndSend call). FanOut
// treats a nil Dispatcher as "build tasks only, don't dispatch" so tests
// and dry-run callers can exercise assignment logic without wiring one.
type Dispatcher interface {
	Dispatch(ctx context.Context, agentID string, task Task) error
}

// Role is a team member's function within fan-out assignment.
type Role string

const (
	RoleLeader   Role = "leader"
	RoleWorker   Role = "worker"
	RoleReviewer Role = "reviewer"
)

// Member is one team participant.
type Member struct {
	AgentID string
	Role    Role
}

// Team is a named, ordered group of agents.
type Team struct {
	Name    string
	Members []Member
}

// TaskStatus is the lifecycle of a fan-out task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskAssigned  TaskStatus = "assigned"
	TaskCompleted TaskStatus = "completed"
)

// Task is one parent or child unit of work produced by FanOut.
type Task struct {
	ID          string
	TeamName    string
	ParentID    string // empty for the parent task itself
	Description string
	AssigneeID  string // empty for the parent task, which has no single assignee
	Status      TaskStatus
}

// Coordinator is the concurrency-safe Swarm Coordinator.
type Coordinator struct {
	mu         sync.RWMutex
	teams      map[string]*Team
	tasks      []Task
	dispatcher Dispatcher
}

// Option configures a Coordinator at construction time.
type Option func(*Coordinator)

// WithDispatcher attaches the sink FanOut hands assigned child tasks to.
func WithDispatcher(d Dispatcher) Option {
	return func(c *Coordinator) { c.dispatcher = d }
}

// New creates an empty Coordinator.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{teams: make(map[string]*Team)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateTeam replaces any existing team with the same name.
func (c *Coordinator) CreateTeam(name string, members []Member) Team {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &Team{Name: name, Members: append([]Member(nil), members...)}
	c.teams[name] = t
	return *t
}

// ListTeams returns every team, sorted by name.
func (c *Coordinator) ListTeams() []Team {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.teams))
	for name := range c.teams {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Team, 0, len(names))
	for _, name := range names {
		t := c.teams[name]
		out = append(out, Team{Name: t.Name, Members: append([]Member(nil), t.Members...)})
	}
	return out
}

// DispatchResult reports the outcome of handing one assigned child task to
// the configured Dispatcher.
type DispatchResult struct {
	TaskID string
	Err    error
}

// FanOut emits one parent task plus one child task per entry in
// subtaskDescriptions, assigned round-robin to the team's Worker members,
// then hands every assigned child to the configured Dispatcher (if any)
// concurrently, bounded by fanOutDispatchConcurrency. A dispatch failure for
// one child never aborts dispatch of its siblings; every outcome is
// reported in the returned results rather than swallowed. It fails outright
// only if teamName is unknown.
func (c *Coordinator) FanOut(ctx context.Context, teamName, taskDescription string, subtaskDescriptions []string) ([]Task, []DispatchResult, error) {
	c.mu.Lock()

	team, ok := c.teams[teamName]
	if !ok {
		c.mu.Unlock()
		return nil, nil, apperrors.NotFound("team", teamName)
	}

	var workers []string
	for _, m := range team.Members {
		if m.Role == RoleWorker {
			workers = append(workers, m.AgentID)
		}
	}

	parent := Task{
		ID:          fmt.Sprintf("task-%s", uuid.NewString()),
		TeamName:    teamName,
		Description: taskDescription,
		Status:      TaskPending,
	}
	c.tasks = append(c.tasks, parent)

	out := []Task{parent}
	for i, desc := range subtaskDescriptions {
		child := Task{
			ID:          fmt.Sprintf("task-%s", uuid.NewString()),
			TeamName:    teamName,
			ParentID:    parent.ID,
			Description: desc,
			Status:      TaskPending,
		}
		if len(workers) > 0 {
			child.AssigneeID = workers[i%len(workers)]
			child.Status = TaskAssigned
		}
		c.tasks = append(c.tasks, child)
		out = append(out, child)
	}
	dispatcher := c.dispatcher
	c.mu.Unlock()

	if dispatcher == nil {
		return out, nil, nil
	}

	assigned := make([]Task, 0, len(out))
	for _, t := range out[1:] {
		if t.AssigneeID != "" {
			assigned = append(assigned, t)
		}
	}
	if len(assigned) == 0 {
		return out, nil, nil
	}

	results := make([]DispatchResult, len(assigned))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOutDispatchConcurrency)
	for i, t := range assigned {
		i, t := i, t
		g.Go(func() error {
			err := dispatcher.Dispatch(gctx, t.AssigneeID, t)
			results[i] = DispatchResult{TaskID: t.ID, Err: err}
			return nil // collected per-child, never aborts siblings
		})
	}
	_ = g.Wait()

	return out, results, nil
}

// TaskFilter optionally narrows ListTasks by team and/or status; a zero
// value matches everything.
type TaskFilter struct {
	TeamName string
	Status   TaskStatus
}

// ListTasks returns every task matching filter, in creation order.
func (c *Coordinator) ListTasks(filter TaskFilter) []Task {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Task, 0, len(c.tasks))
	for _, t := range c.tasks {
		if filter.TeamName != "" && t.TeamName != filter.TeamName {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		out = append(out, t)
	}
	return out
}
