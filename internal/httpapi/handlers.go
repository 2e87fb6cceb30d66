// Package httpapi implements the HTTP Edge (C8): a gin router exposing the
// Lifecycle Manager, Channel Binding Store, Swarm Coordinator, Discovery
// Service and Audit Sink over REST, plus a WebSocket upgrade for streaming
// the channel matrix, grounded on the teacher's agent manager API
// (internal/agent/api/handlers.go, router.go).
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/codervisor/clawden/internal/adapter"
	"github.com/codervisor/clawden/internal/apperrors"
	"github.com/codervisor/clawden/internal/audit"
	"github.com/codervisor/clawden/internal/channels"
	"github.com/codervisor/clawden/internal/discovery"
	"github.com/codervisor/clawden/internal/lifecycle"
	"github.com/codervisor/clawden/internal/logger"
	"github.com/codervisor/clawden/internal/manifest"
	"github.com/codervisor/clawden/internal/runtimekind"
	"github.com/codervisor/clawden/internal/swarm"
)

// defaultHealthBackoffMS is the recovery backoff base RefreshHealth applies
// when GET /agents/health triggers an on-demand poll outside the periodic
// health loop (spec.md §4.5).
const defaultHealthBackoffMS = 1000

// Handler holds the core components the HTTP Edge fronts.
type Handler struct {
	lifecycle *lifecycle.Manager
	channels  *channels.Store
	swarm     *swarm.Coordinator
	discovery *discovery.Service
	audit     *audit.Sink
	logger    *logger.Logger
	upgrader  websocket.Upgrader
}

// NewHandler wires a Handler to the core subsystems.
func NewHandler(lm *lifecycle.Manager, ch *channels.Store, sw *swarm.Coordinator, disc *discovery.Service, auditSink *audit.Sink, log *logger.Logger) *Handler {
	return &Handler{
		lifecycle: lm,
		channels:  ch,
		swarm:     sw,
		discovery: disc,
		audit:     auditSink,
		logger:    log.WithComponent("http-edge"),
		upgrader:  websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
	}
}

func writeAppError(c *gin.Context, err error) {
	c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
}

// HealthCheck answers GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Timestamp: time.Now()})
}

// FleetStatus answers GET /fleet/status.
func (h *Handler) FleetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.lifecycle.Status())
}

// RegisterAgent answers POST /agents/register.
func (h *Handler) RegisterAgent(c *gin.Context) {
	var req RegisterAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAppError(c, apperrors.InvalidInput(err.Error()))
		return
	}

	kind, ok := runtimekind.Parse(req.RuntimeKind)
	if !ok {
		writeAppError(c, apperrors.InvalidInput("unknown runtime_kind "+req.RuntimeKind))
		return
	}

	capabilities := req.Capabilities
	if len(capabilities) == 0 {
		capabilities = manifest.DefaultCapabilities(kind.String())
	}

	rec := h.lifecycle.RegisterAgent(req.Name, kind, capabilities, req.Env)
	c.JSON(http.StatusCreated, rec)
}

// ListAgents answers GET /agents.
func (h *Handler) ListAgents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": h.lifecycle.ListAgents()})
}

// GetAgent answers GET /agents/:id.
func (h *Handler) GetAgent(c *gin.Context) {
	rec, err := h.lifecycle.GetAgent(c.Param("id"))
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// StartAgent answers POST /agents/:id/start.
func (h *Handler) StartAgent(c *gin.Context) {
	rec, err := h.lifecycle.StartAgent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("start agent failed", zap.String("agent_id", c.Param("id")), zap.Error(err))
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// StopAgent answers POST /agents/:id/stop.
func (h *Handler) StopAgent(c *gin.Context) {
	rec, err := h.lifecycle.StopAgent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("stop agent failed", zap.String("agent_id", c.Param("id")), zap.Error(err))
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// RestartAgent answers POST /agents/:id/restart.
func (h *Handler) RestartAgent(c *gin.Context) {
	rec, err := h.lifecycle.RestartAgent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("restart agent failed", zap.String("agent_id", c.Param("id")), zap.Error(err))
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// AgentsHealth answers GET /agents/health: it refreshes every agent's health
// before returning the fleet, so the response always reflects a live poll
// rather than the last background tick.
func (h *Handler) AgentsHealth(c *gin.Context) {
	h.lifecycle.RefreshHealth(c.Request.Context(), defaultHealthBackoffMS)
	c.JSON(http.StatusOK, gin.H{"agents": h.lifecycle.ListAgents()})
}

// AuditLog answers GET /audit with every recorded event, oldest first.
func (h *Handler) AuditLog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"events": h.audit.List()})
}

// ChannelSupportMatrix answers GET /channels/support-matrix: for every
// registered runtime kind, which channel types its adapter advertises
// support for.
func (h *Handler) ChannelSupportMatrix(c *gin.Context) {
	matrix := make(map[string]map[string]bool)
	for _, meta := range h.lifecycle.ListRuntimeMetadata(c.Request.Context()) {
		matrix[meta.RuntimeKind.String()] = meta.ChannelSupport
	}
	c.JSON(http.StatusOK, gin.H{"support_matrix": matrix})
}

// RegisterDiscoveryEndpoint answers POST /discovery/endpoints/register.
func (h *Handler) RegisterDiscoveryEndpoint(c *gin.Context) {
	var req RegisterDiscoveryEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAppError(c, apperrors.InvalidInput(err.Error()))
		return
	}

	method := discovery.Method(req.Method)
	switch method {
	case discovery.MethodManual, discovery.MethodNetworkScan, discovery.MethodDNSSD:
	default:
		method = discovery.MethodManual
	}

	key := h.discovery.RegisterEndpoint(discovery.Endpoint{
		Host:        req.Host,
		Port:        req.Port,
		Method:      method,
		RuntimeHint: req.RuntimeHint,
	})
	h.audit.Append("http-edge", "discovery.register", key, audit.Now())
	c.JSON(http.StatusCreated, gin.H{"key": key})
}

// ListDiscoveryEndpoints answers GET /discovery/endpoints.
func (h *Handler) ListDiscoveryEndpoints(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"endpoints": h.discovery.ListEndpoints()})
}

// ScanDiscoveryEndpoints answers POST /discovery/scan.
func (h *Handler) ScanDiscoveryEndpoints(c *gin.Context) {
	var req ScanDiscoveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAppError(c, apperrors.InvalidInput(err.Error()))
		return
	}
	found := h.discovery.ScanPorts(c.Request.Context(), req.Hosts, req.Ports)
	c.JSON(http.StatusOK, gin.H{"endpoints": found})
}

// RouteAndSend answers POST /task/send.
func (h *Handler) RouteAndSend(c *gin.Context) {
	var req RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAppError(c, apperrors.InvalidInput(err.Error()))
		return
	}

	var target *string
	if req.TargetAgentID != "" {
		target = &req.TargetAgentID
	}

	rec, resp, err := h.lifecycle.RouteAndSend(c.Request.Context(), req.RequiredCapabilities,
		adapter.Message{Role: req.Role, Content: req.Content}, target)
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent": rec, "response": resp})
}

// UpsertChannelConfig answers PUT /channels/configs/:name.
func (h *Handler) UpsertChannelConfig(c *gin.Context) {
	var req UpsertChannelConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAppError(c, apperrors.InvalidInput(err.Error()))
		return
	}

	cfg, err := h.channels.UpsertConfig(channels.InstanceConfig{
		InstanceName: c.Param("name"),
		ChannelType:  channels.ChannelType(req.ChannelType),
		Credentials:  req.Credentials,
		Options:      req.Options,
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// DeleteChannelConfig answers DELETE /channels/configs/:name.
func (h *Handler) DeleteChannelConfig(c *gin.Context) {
	if !h.channels.DeleteConfig(c.Param("name")) {
		writeAppError(c, apperrors.NotFound("channel config", c.Param("name")))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// BindChannel answers POST /channels/bindings.
func (h *Handler) BindChannel(c *gin.Context) {
	var req BindChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAppError(c, apperrors.InvalidInput(err.Error()))
		return
	}

	binding, err := h.channels.Bind(req.InstanceID, channels.ChannelType(req.ChannelType), req.BotToken)
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, binding)
}

// UnbindChannel answers DELETE /channels/bindings/:id.
func (h *Handler) UnbindChannel(c *gin.Context) {
	if err := h.channels.Unbind(c.Param("id")); err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "released"})
}

// ChannelConflicts answers GET /channels/conflicts.
func (h *Handler) ChannelConflicts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"conflicts": h.channels.DetectConflicts()})
}

// ChannelTypes answers GET /channels/types with the static metadata table
// (spec.md §1 domain-stack manifest) describing every recognized channel.
func (h *Handler) ChannelTypes(c *gin.Context) {
	m, err := manifest.Load()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"channels": m.Channels})
}

func (h *Handler) agentViews() []channels.AgentView {
	agents := h.lifecycle.ListAgents()
	out := make([]channels.AgentView, 0, len(agents))
	for _, a := range agents {
		out = append(out, channels.AgentView{ID: a.ID, RuntimeKind: a.RuntimeKind.String()})
	}
	return out
}

// ChannelMatrix answers GET /channels/matrix.
func (h *Handler) ChannelMatrix(c *gin.Context) {
	c.JSON(http.StatusOK, h.channels.BuildMatrix(h.agentViews()))
}

// StreamChannelMatrix upgrades GET /channels/matrix/stream to a WebSocket
// and pushes a fresh matrix snapshot whenever a connection status changes
// (SPEC_FULL §4.4 EXPANSION).
func (h *Handler) StreamChannelMatrix(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("matrix stream upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates, cancel := h.channels.StreamMatrix()
	defer cancel()

	if err := conn.WriteJSON(h.channels.BuildMatrix(h.agentViews())); err != nil {
		return
	}

	for m := range updates {
		if err := conn.WriteJSON(m); err != nil {
			return
		}
	}
}

// CreateTeam answers POST /swarm/teams.
func (h *Handler) CreateTeam(c *gin.Context) {
	var req CreateTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAppError(c, apperrors.InvalidInput(err.Error()))
		return
	}

	members := make([]swarm.Member, 0, len(req.Members))
	for _, m := range req.Members {
		members = append(members, swarm.Member{AgentID: m.AgentID, Role: swarm.Role(m.Role)})
	}

	team := h.swarm.CreateTeam(req.Name, members)
	c.JSON(http.StatusCreated, team)
}

// ListTeams answers GET /swarm/teams.
func (h *Handler) ListTeams(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"teams": h.swarm.ListTeams()})
}

// FanOut answers POST /swarm/teams/:name/fan-out.
func (h *Handler) FanOut(c *gin.Context) {
	var req FanOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAppError(c, apperrors.InvalidInput(err.Error()))
		return
	}

	tasks, results, err := h.swarm.FanOut(c.Request.Context(), c.Param("name"), req.TaskDescription, req.SubtaskDescriptions)
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"tasks": tasks, "dispatch_results": results})
}

// ListTasks answers GET /swarm/tasks.
func (h *Handler) ListTasks(c *gin.Context) {
	filter := swarm.TaskFilter{
		TeamName: c.Query("team_name"),
		Status:   swarm.TaskStatus(c.Query("status")),
	}
	c.JSON(http.StatusOK, gin.H{"tasks": h.swarm.ListTasks(filter)})
}
