package externalregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCapabilities(t *testing.T) {
	assert.Nil(t, parseCapabilities(""))
	assert.Nil(t, parseCapabilities("   "))
	assert.Equal(t, []string{"chat"}, parseCapabilities("chat"))
	assert.Equal(t, []string{"chat", "vision"}, parseCapabilities("chat,vision"))
	assert.Equal(t, []string{"chat", "vision"}, parseCapabilities(" chat , vision "))
	assert.Equal(t, []string{"chat", "vision"}, parseCapabilities("chat,,vision,"))
}

func TestIsMissingTableOrFile(t *testing.T) {
	assert.True(t, isMissingTableOrFile(errString("no such table: clawden_agents")))
	assert.False(t, isMissingTableOrFile(errString("syntax error")))
}

type errString string

func (e errString) Error() string { return string(e) }
