// Package channels implements the Channel Binding Store (spec.md §4.4): the
// enforcement point for the one-token-one-instance invariant across
// messaging platforms. It has no network surface of its own — the HTTP edge
// exposes it and is its only caller; the Lifecycle Manager does not consult
// it when dispatching a task.
package channels

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codervisor/clawden/internal/apperrors"
)

// ChannelType is one of the closed set of recognized messaging platforms.
type ChannelType string

const (
	Telegram   ChannelType = "telegram"
	Discord    ChannelType = "discord"
	Slack      ChannelType = "slack"
	WhatsApp   ChannelType = "whatsapp"
	Signal     ChannelType = "signal"
	Matrix     ChannelType = "matrix"
	Email      ChannelType = "email"
	Feishu     ChannelType = "feishu"
	DingTalk   ChannelType = "dingtalk"
	Mattermost ChannelType = "mattermost"
	IRC        ChannelType = "irc"
	Teams      ChannelType = "teams"
	IMessage   ChannelType = "imessage"
	GoogleChat ChannelType = "google_chat"
	QQ         ChannelType = "qq"
	Line       ChannelType = "line"
	Nostr      ChannelType = "nostr"
)

var validChannelTypes = map[ChannelType]bool{
	Telegram: true, Discord: true, Slack: true, WhatsApp: true, Signal: true,
	Matrix: true, Email: true, Feishu: true, DingTalk: true, Mattermost: true,
	IRC: true, Teams: true, IMessage: true, GoogleChat: true, QQ: true,
	Line: true, Nostr: true,
}

// InstanceConfig describes one configured channel instance.
type InstanceConfig struct {
	InstanceName string
	ChannelType  ChannelType
	Credentials  map[string]string
	Options      map[string]string
}

// BindingStatus is the lifecycle of a ChannelBinding.
type BindingStatus string

const (
	BindingActive   BindingStatus = "active"
	BindingReleased BindingStatus = "released"
)

// Binding is one credential-to-instance grant.
type Binding struct {
	ID             string
	InstanceID     string
	ChannelType    ChannelType
	BotTokenHash   string
	Status         BindingStatus
	BoundAtUnixMS  int64
}

// ConnectionStatus is the live wire state of one (agent, instance) pairing.
type ConnectionStatus string

const (
	Disconnected ConnectionStatus = "disconnected"
	Connecting   ConnectionStatus = "connecting"
	Connected    ConnectionStatus = "connected"
	Proxied      ConnectionStatus = "proxied"
	Error        ConnectionStatus = "error"
)

type bindingKey struct {
	channelType ChannelType
	tokenHash   string
}

type connKey struct {
	agentID      string
	instanceName string
}

// MatrixCell is one (agent, connection status) cell of a build_matrix row.
type MatrixCell struct {
	AgentID          string
	RuntimeKind      string
	ConnectionStatus ConnectionStatus
}

// MatrixRow is one channel instance's full row across all agents.
type MatrixRow struct {
	InstanceName string
	ChannelType  ChannelType
	Cells        []MatrixCell
}

// Matrix is a build_matrix snapshot.
type Matrix struct {
	Rows []MatrixRow
}

// AgentView is the minimal agent projection build_matrix needs; the
// Lifecycle Manager supplies these, decoupling this package from agent
// record internals.
type AgentView struct {
	ID          string
	RuntimeKind string
}

// Store is the concurrency-safe Channel Binding Store.
type Store struct {
	mu                sync.RWMutex
	configs           map[string]InstanceConfig
	bindings          map[bindingKey]*Binding
	bindingsByID      map[string]*Binding
	assignments       map[string][]string
	connectionStatus  map[connKey]ConnectionStatus
	matrixSubscribers []chan Matrix
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		configs:          make(map[string]InstanceConfig),
		bindings:         make(map[bindingKey]*Binding),
		bindingsByID:     make(map[string]*Binding),
		assignments:      make(map[string][]string),
		connectionStatus: make(map[connKey]ConnectionStatus),
	}
}

// UpsertConfig validates channel_type against the closed set and replaces
// any existing config under the same instance name.
func (s *Store) UpsertConfig(cfg InstanceConfig) (InstanceConfig, error) {
	if !validChannelTypes[cfg.ChannelType] {
		return InstanceConfig{}, apperrors.InvalidInput(fmt.Sprintf("unknown channel_type %q", cfg.ChannelType))
	}
	if cfg.InstanceName == "" {
		return InstanceConfig{}, apperrors.InvalidInput("instance_name must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.InstanceName] = cfg
	return cfg, nil
}

// DeleteConfig removes a config and reports whether it existed.
func (s *Store) DeleteConfig(instanceName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.configs[instanceName]
	delete(s.configs, instanceName)
	return ok
}

// GetConfig returns the config for instanceName, if any.
func (s *Store) GetConfig(instanceName string) (InstanceConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.configs[instanceName]
	return c, ok
}

// Bind hashes rawToken and installs an Active binding, failing with a
// BindingConflict if a different instance already holds an Active binding
// for the same (channel_type, token_hash).
func (s *Store) Bind(instanceID string, channelType ChannelType, rawToken string) (Binding, error) {
	hash := sha256.Sum256([]byte(rawToken))
	tokenHash := hex.EncodeToString(hash[:])
	key := bindingKey{channelType: channelType, tokenHash: tokenHash}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.bindings[key]; ok && existing.Status == BindingActive && existing.InstanceID != instanceID {
		return Binding{}, apperrors.BindingConflict(string(channelType), existing.InstanceID)
	}

	b := &Binding{
		ID:            fmt.Sprintf("binding-%s", uuid.NewString()),
		InstanceID:    instanceID,
		ChannelType:   channelType,
		BotTokenHash:  tokenHash,
		Status:        BindingActive,
		BoundAtUnixMS: nowUnixMS(),
	}
	s.bindings[key] = b
	s.bindingsByID[b.ID] = b
	return *b, nil
}

// Unbind marks a binding Released, keeping the record for audit.
func (s *Store) Unbind(bindingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bindingsByID[bindingID]
	if !ok {
		return apperrors.NotFound("binding", bindingID)
	}
	b.Status = BindingReleased
	return nil
}

// DetectConflicts groups Active bindings by (channel_type, token_hash) and
// returns groups of size >= 2. Under this store's own Bind invariant such
// groups should never occur; this exists to audit state imported from
// elsewhere (e.g. a future external seed) that might violate it.
func (s *Store) DetectConflicts() [][]Binding {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := make(map[bindingKey][]Binding)
	for k, b := range s.bindings {
		if b.Status == BindingActive {
			groups[k] = append(groups[k], *b)
		}
	}

	var out [][]Binding
	for _, g := range groups {
		if len(g) >= 2 {
			out = append(out, g)
		}
	}
	return out
}

// SetConnectionStatus records the live wire state for an (agent, instance)
// pairing and notifies any stream_matrix subscribers.
func (s *Store) SetConnectionStatus(agentID, instanceName string, status ConnectionStatus, agents []AgentView) {
	s.mu.Lock()
	s.connectionStatus[connKey{agentID: agentID, instanceName: instanceName}] = status
	subs := append([]chan Matrix(nil), s.matrixSubscribers...)
	s.mu.Unlock()

	if len(subs) == 0 {
		return
	}
	m := s.BuildMatrix(agents)
	for _, ch := range subs {
		select {
		case ch <- m:
		default:
		}
	}
}

// BuildMatrix returns a Cartesian summary: one row per channel instance,
// one cell per supplied agent.
func (s *Store) BuildMatrix(agents []AgentView) Matrix {
	s.mu.RLock()
	defer s.mu.RUnlock()

	instanceNames := make([]string, 0, len(s.configs))
	for name := range s.configs {
		instanceNames = append(instanceNames, name)
	}
	sort.Strings(instanceNames)

	rows := make([]MatrixRow, 0, len(instanceNames))
	for _, name := range instanceNames {
		cfg := s.configs[name]
		cells := make([]MatrixCell, 0, len(agents))
		for _, a := range agents {
			status := s.connectionStatus[connKey{agentID: a.ID, instanceName: name}]
			if status == "" {
				status = Disconnected
			}
			cells = append(cells, MatrixCell{
				AgentID:          a.ID,
				RuntimeKind:      a.RuntimeKind,
				ConnectionStatus: status,
			})
		}
		rows = append(rows, MatrixRow{InstanceName: name, ChannelType: cfg.ChannelType, Cells: cells})
	}
	return Matrix{Rows: rows}
}

// StreamMatrix returns a channel of Matrix snapshots, emitted whenever a
// connection status changes. The returned cancel function unsubscribes and
// must be called to release the channel.
func (s *Store) StreamMatrix() (<-chan Matrix, func()) {
	ch := make(chan Matrix, 1)
	s.mu.Lock()
	s.matrixSubscribers = append(s.matrixSubscribers, ch)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.matrixSubscribers {
			if sub == ch {
				s.matrixSubscribers = append(s.matrixSubscribers[:i], s.matrixSubscribers[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}

func nowUnixMS() int64 { return time.Now().UnixMilli() }
