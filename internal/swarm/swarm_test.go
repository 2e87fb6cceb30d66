package swarm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codervisor/clawden/internal/apperrors"
)

func TestCreateTeamReplacesExisting(t *testing.T) {
	c := New()
	c.CreateTeam("alpha", []Member{{AgentID: "agent-1", Role: RoleLeader}})
	c.CreateTeam("alpha", []Member{{AgentID: "agent-2", Role: RoleWorker}})

	teams := c.ListTeams()
	require.Len(t, teams, 1)
	require.Len(t, teams[0].Members, 1)
	assert.Equal(t, "agent-2", teams[0].Members[0].AgentID)
}

func TestFanOutFailsForUnknownTeam(t *testing.T) {
	c := New()
	_, _, err := c.FanOut(context.Background(), "ghost", "parent task", []string{"sub1"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}

func TestFanOutAssignsRoundRobinToWorkers(t *testing.T) {
	c := New()
	c.CreateTeam("alpha", []Member{
		{AgentID: "leader-1", Role: RoleLeader},
		{AgentID: "worker-1", Role: RoleWorker},
		{AgentID: "worker-2", Role: RoleWorker},
	})

	tasks, results, err := c.FanOut(context.Background(), "alpha", "parent", []string{"s1", "s2", "s3"})
	require.NoError(t, err)
	require.Len(t, tasks, 4) // parent + 3 children
	assert.Nil(t, results) // no dispatcher configured

	assert.Equal(t, "", tasks[0].AssigneeID)
	assert.Equal(t, "worker-1", tasks[1].AssigneeID)
	assert.Equal(t, "worker-2", tasks[2].AssigneeID)
	assert.Equal(t, "worker-1", tasks[3].AssigneeID)

	for _, child := range tasks[1:] {
		assert.Equal(t, tasks[0].ID, child.ParentID)
		assert.Equal(t, TaskAssigned, child.Status)
	}
}

func TestFanOutWithNoWorkersLeavesSubtasksUnassigned(t *testing.T) {
	c := New()
	c.CreateTeam("solo", []Member{{AgentID: "leader-1", Role: RoleLeader}})

	tasks, _, err := c.FanOut(context.Background(), "solo", "parent", []string{"s1"})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "", tasks[1].AssigneeID)
	assert.Equal(t, TaskPending, tasks[1].Status)
}

func TestListTasksFiltersByTeamAndStatus(t *testing.T) {
	c := New()
	c.CreateTeam("alpha", []Member{{AgentID: "worker-1", Role: RoleWorker}})
	c.CreateTeam("beta", []Member{{AgentID: "worker-2", Role: RoleWorker}})
	_, _, err := c.FanOut(context.Background(), "alpha", "p1", []string{"s1"})
	require.NoError(t, err)
	_, _, err = c.FanOut(context.Background(), "beta", "p2", nil)
	require.NoError(t, err)

	alphaTasks := c.ListTasks(TaskFilter{TeamName: "alpha"})
	assert.Len(t, alphaTasks, 2)

	assigned := c.ListTasks(TaskFilter{Status: TaskAssigned})
	assert.Len(t, assigned, 1)
}

type fakeDispatcher struct {
	mu        sync.Mutex
	dispatched []string
	failFor   string
	concurrent atomic.Int32
	maxSeen   atomic.Int32
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, agentID string, task Task) error {
	cur := d.concurrent.Add(1)
	defer d.concurrent.Add(-1)
	for {
		max := d.maxSeen.Load()
		if cur <= max || d.maxSeen.CompareAndSwap(max, cur) {
			break
		}
	}

	d.mu.Lock()
	d.dispatched = append(d.dispatched, task.ID)
	d.mu.Unlock()

	if task.Description == d.failFor {
		return errors.New("dispatch failed")
	}
	return nil
}

func TestFanOutDispatchesAssignedChildrenConcurrentlyBounded(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	c := New(WithDispatcher(dispatcher))
	c.CreateTeam("alpha", []Member{
		{AgentID: "worker-1", Role: RoleWorker},
		{AgentID: "worker-2", Role: RoleWorker},
	})

	subtasks := make([]string, 10)
	for i := range subtasks {
		subtasks[i] = "sub"
	}

	tasks, results, err := c.FanOut(context.Background(), "alpha", "parent", subtasks)
	require.NoError(t, err)
	require.Len(t, results, 10)
	assert.LessOrEqual(t, int(dispatcher.maxSeen.Load()), fanOutDispatchConcurrency)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}
	assert.Len(t, dispatcher.dispatched, 10)
	_ = tasks
}

func TestFanOutReportsPerChildDispatchFailureWithoutAbortingSiblings(t *testing.T) {
	dispatcher := &fakeDispatcher{failFor: "bad"}
	c := New(WithDispatcher(dispatcher))
	c.CreateTeam("alpha", []Member{{AgentID: "worker-1", Role: RoleWorker}})

	_, results, err := c.FanOut(context.Background(), "alpha", "parent", []string{"good", "bad", "good"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	failures := 0
	for _, r := range results {
		if r.Err != nil {
			failures++
		}
	}
	assert.Equal(t, 1, failures)
}
