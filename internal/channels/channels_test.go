package channels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codervisor/clawden/internal/apperrors"
)

func TestUpsertConfigRejectsUnknownChannelType(t *testing.T) {
	s := New()
	_, err := s.UpsertConfig(InstanceConfig{InstanceName: "foo", ChannelType: "bogus"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidInput))
}

func TestUpsertConfigReplacesExisting(t *testing.T) {
	s := New()
	_, err := s.UpsertConfig(InstanceConfig{InstanceName: "inst-1", ChannelType: Telegram, Options: map[string]string{"a": "1"}})
	require.NoError(t, err)

	_, err = s.UpsertConfig(InstanceConfig{InstanceName: "inst-1", ChannelType: Telegram, Options: map[string]string{"a": "2"}})
	require.NoError(t, err)

	cfg, ok := s.GetConfig("inst-1")
	require.True(t, ok)
	assert.Equal(t, "2", cfg.Options["a"])
}

func TestDeleteConfigReportsExistence(t *testing.T) {
	s := New()
	assert.False(t, s.DeleteConfig("missing"))

	_, err := s.UpsertConfig(InstanceConfig{InstanceName: "inst-1", ChannelType: Slack})
	require.NoError(t, err)
	assert.True(t, s.DeleteConfig("inst-1"))
	assert.False(t, s.DeleteConfig("inst-1"))
}

func TestBindRejectsConflictingInstance(t *testing.T) {
	s := New()
	_, err := s.Bind("inst-1", Telegram, "secret-token")
	require.NoError(t, err)

	_, err = s.Bind("inst-2", Telegram, "secret-token")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeBindingConflict))
}

func TestBindAllowsSameInstanceRebind(t *testing.T) {
	s := New()
	_, err := s.Bind("inst-1", Telegram, "secret-token")
	require.NoError(t, err)

	_, err = s.Bind("inst-1", Telegram, "secret-token")
	assert.NoError(t, err)
}

func TestUnbindMarksReleasedAndKeepsRecord(t *testing.T) {
	s := New()
	b, err := s.Bind("inst-1", Telegram, "secret-token")
	require.NoError(t, err)

	require.NoError(t, s.Unbind(b.ID))
	require.Error(t, s.Unbind("nonexistent"))

	// after release, a new instance may bind the same token
	_, err = s.Bind("inst-2", Telegram, "secret-token")
	assert.NoError(t, err)
}

func TestBuildMatrixReturnsSortedRowsWithDisconnectedDefault(t *testing.T) {
	s := New()
	_, err := s.UpsertConfig(InstanceConfig{InstanceName: "zz-inst", ChannelType: Discord})
	require.NoError(t, err)
	_, err = s.UpsertConfig(InstanceConfig{InstanceName: "aa-inst", ChannelType: Slack})
	require.NoError(t, err)

	agents := []AgentView{{ID: "agent-1", RuntimeKind: "zero-claw"}}
	m := s.BuildMatrix(agents)

	require.Len(t, m.Rows, 2)
	assert.Equal(t, "aa-inst", m.Rows[0].InstanceName)
	assert.Equal(t, "zz-inst", m.Rows[1].InstanceName)
	require.Len(t, m.Rows[0].Cells, 1)
	assert.Equal(t, Disconnected, m.Rows[0].Cells[0].ConnectionStatus)
}

func TestStreamMatrixEmitsOnStatusChange(t *testing.T) {
	s := New()
	_, err := s.UpsertConfig(InstanceConfig{InstanceName: "inst-1", ChannelType: Slack})
	require.NoError(t, err)

	ch, cancel := s.StreamMatrix()
	defer cancel()

	agents := []AgentView{{ID: "agent-1", RuntimeKind: "zero-claw"}}
	s.SetConnectionStatus("agent-1", "inst-1", Connected, agents)

	select {
	case m := <-ch:
		require.Len(t, m.Rows, 1)
		assert.Equal(t, Connected, m.Rows[0].Cells[0].ConnectionStatus)
	default:
		t.Fatal("expected a matrix snapshot on status change")
	}
}
