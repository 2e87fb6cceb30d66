package httpapi

import "time"

// RegisterAgentRequest is the body for POST /agents/register.
type RegisterAgentRequest struct {
	Name         string            `json:"name" binding:"required"`
	RuntimeKind  string            `json:"runtime_kind" binding:"required"`
	Capabilities []string          `json:"capabilities"`
	Env          map[string]string `json:"env"`
}

// RegisterDiscoveryEndpointRequest is the body for POST
// /discovery/endpoints/register.
type RegisterDiscoveryEndpointRequest struct {
	Host        string `json:"host" binding:"required"`
	Port        int    `json:"port" binding:"required"`
	Method      string `json:"method"`
	RuntimeHint string `json:"runtime_hint"`
}

// ScanDiscoveryRequest is the body for POST /discovery/scan.
type ScanDiscoveryRequest struct {
	Hosts []string `json:"hosts" binding:"required"`
	Ports []int    `json:"ports" binding:"required"`
}

// RouteRequest is the body for POST /task/send.
type RouteRequest struct {
	RequiredCapabilities []string `json:"required_capabilities"`
	Role                 string   `json:"role"`
	Content              string   `json:"content" binding:"required"`
	TargetAgentID        string   `json:"target_agent_id"`
}

// UpsertChannelConfigRequest is the body for PUT /channels/configs/:name.
type UpsertChannelConfigRequest struct {
	ChannelType string            `json:"channel_type" binding:"required"`
	Credentials map[string]string `json:"credentials"`
	Options     map[string]string `json:"options"`
}

// BindChannelRequest is the body for POST /channels/bindings.
type BindChannelRequest struct {
	InstanceID  string `json:"instance_id" binding:"required"`
	ChannelType string `json:"channel_type" binding:"required"`
	BotToken    string `json:"bot_token" binding:"required"`
}

// CreateTeamRequest is the body for POST /swarm/teams.
type CreateTeamRequest struct {
	Name    string         `json:"name" binding:"required"`
	Members []MemberRequest `json:"members"`
}

// MemberRequest names one team member in a CreateTeamRequest.
type MemberRequest struct {
	AgentID string `json:"agent_id" binding:"required"`
	Role    string `json:"role" binding:"required"`
}

// FanOutRequest is the body for POST /swarm/teams/:name/fan-out.
type FanOutRequest struct {
	TaskDescription      string   `json:"task_description" binding:"required"`
	SubtaskDescriptions  []string `json:"subtask_descriptions"`
}

// HealthResponse is the body for GET /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
