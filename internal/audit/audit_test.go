package audit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codervisor/clawden/internal/eventbus"
	"github.com/codervisor/clawden/internal/logger"
)

func TestSinkAppendAndList(t *testing.T) {
	s := New("", nil, logger.Default())
	defer s.Close()

	s.Append("operator", "agent.started", "agent-1", 1000)
	s.Append("operator", "agent.stopped", "agent-1", 2000)

	events := s.List()
	require.Len(t, events, 2)
	assert.Equal(t, "agent.started", events[0].Action)
	assert.Equal(t, "agent-1", events[0].Target)
	assert.Equal(t, int64(1000), events[0].TimestampUnixMS)
}

func TestSinkMirrorsToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")

	s := New(path, nil, logger.Default())
	s.Append("operator", "agent.started", "agent-1", 1000)
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1000\tagent.started\tagent-1\toperator\n", string(data))
}

func TestSinkPublishesToEventBus(t *testing.T) {
	bus := eventbus.NewMemory()
	defer bus.Close()

	var received []eventbus.Event
	_, err := bus.Subscribe("audit.>", func(subject string, ev eventbus.Event) {
		received = append(received, ev)
	})
	require.NoError(t, err)

	s := New("", bus, logger.Default())
	s.Append("operator", "agent.started", "agent-1", 1000)

	require.Len(t, received, 1)
	assert.Equal(t, "agent-1", received[0].Payload["target"])
}
