// Package manifest holds the embedded default-capability and channel
// metadata table clawden ships with, parsed from a YAML file embedded in the
// binary rather than hardcoded as Go literals — matching how the pack's
// config loaders treat YAML as the source of truth for static data.
package manifest

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// RuntimeDefaults is the default capability set a runtime kind gets when an
// agent is registered without an explicit capabilities list.
type RuntimeDefaults map[string][]string

// ChannelMetadata describes one recognized channel type's static
// requirements.
type ChannelMetadata struct {
	RequiresBotToken bool `yaml:"requires_bot_token"`
}

// Manifest is the parsed form of defaults.yaml.
type Manifest struct {
	Runtimes RuntimeDefaults            `yaml:"runtimes"`
	Channels map[string]ChannelMetadata `yaml:"channels"`
}

var (
	loadOnce sync.Once
	loaded   Manifest
	loadErr  error
)

// Load parses the embedded defaults.yaml exactly once and returns the
// shared, read-only result.
func Load() (Manifest, error) {
	loadOnce.Do(func() {
		loadErr = yaml.Unmarshal(defaultsYAML, &loaded)
	})
	if loadErr != nil {
		return Manifest{}, fmt.Errorf("manifest: parse embedded defaults.yaml: %w", loadErr)
	}
	return loaded, nil
}

// DefaultCapabilities returns the default capability list for runtimeKind
// (its canonical dashed form, e.g. "zero-claw"), or nil if unrecognized.
func DefaultCapabilities(runtimeKind string) []string {
	m, err := Load()
	if err != nil {
		return nil
	}
	caps, ok := m.Runtimes[runtimeKind]
	if !ok {
		return nil
	}
	out := make([]string, len(caps))
	copy(out, caps)
	return out
}
