package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codervisor/clawden/internal/adapters/nullclaw"
	"github.com/codervisor/clawden/internal/audit"
	"github.com/codervisor/clawden/internal/channels"
	"github.com/codervisor/clawden/internal/discovery"
	"github.com/codervisor/clawden/internal/eventbus"
	"github.com/codervisor/clawden/internal/lifecycle"
	"github.com/codervisor/clawden/internal/logger"
	"github.com/codervisor/clawden/internal/registry"
	"github.com/codervisor/clawden/internal/runtimekind"
	"github.com/codervisor/clawden/internal/swarm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "json", OutputPath: "stdout"})
	require.NoError(t, err)

	reg := registry.New()
	reg.Register(runtimekind.NullClaw, nullclaw.New())

	auditSink := audit.New("", eventbus.NewMemory(), log)
	lm := lifecycle.New(reg, log, lifecycle.WithAudit(auditSink))
	ch := channels.New()
	sw := swarm.New()
	disc := discovery.New()

	return NewRouter(lm, ch, sw, disc, auditSink, log)
}

func doRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	router := newTestRouter(t)
	rec := doRequest(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterAndStartAgentRoundTrip(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(router, http.MethodPost, "/agents/register", RegisterAgentRequest{
		Name:        "agent-a",
		RuntimeKind: "null-claw",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var rec1 lifecycle.AgentRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rec1))
	assert.Equal(t, lifecycle.StateRegistered, rec1.State)

	startRec := doRequest(router, http.MethodPost, "/agents/"+rec1.ID+"/start", nil)
	require.Equal(t, http.StatusOK, startRec.Code)

	var started lifecycle.AgentRecord
	require.NoError(t, json.Unmarshal(startRec.Body.Bytes(), &started))
	assert.Equal(t, lifecycle.StateRunning, started.State)
}

func TestRegisterAgentRejectsUnknownRuntimeKind(t *testing.T) {
	router := newTestRouter(t)
	rec := doRequest(router, http.MethodPost, "/agents/register", RegisterAgentRequest{
		Name:        "agent-a",
		RuntimeKind: "not-a-kind",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAgentNotFoundReturns404(t *testing.T) {
	router := newTestRouter(t)
	rec := doRequest(router, http.MethodGet, "/agents/agent-999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouteAndSendAfterStart(t *testing.T) {
	router := newTestRouter(t)

	reg := doRequest(router, http.MethodPost, "/agents/register", RegisterAgentRequest{
		Name:         "agent-a",
		RuntimeKind:  "null-claw",
		Capabilities: []string{"echo"},
	})
	var rec1 lifecycle.AgentRecord
	require.NoError(t, json.Unmarshal(reg.Body.Bytes(), &rec1))
	doRequest(router, http.MethodPost, "/agents/"+rec1.ID+"/start", nil)

	routed := doRequest(router, http.MethodPost, "/task/send", RouteRequest{
		RequiredCapabilities: []string{"echo"},
		Content:              "hi",
	})
	assert.Equal(t, http.StatusOK, routed.Code)
}

func TestRestartAgentAfterStart(t *testing.T) {
	router := newTestRouter(t)

	reg := doRequest(router, http.MethodPost, "/agents/register", RegisterAgentRequest{
		Name:        "agent-a",
		RuntimeKind: "null-claw",
	})
	var rec1 lifecycle.AgentRecord
	require.NoError(t, json.Unmarshal(reg.Body.Bytes(), &rec1))
	doRequest(router, http.MethodPost, "/agents/"+rec1.ID+"/start", nil)

	restarted := doRequest(router, http.MethodPost, "/agents/"+rec1.ID+"/restart", nil)
	require.Equal(t, http.StatusOK, restarted.Code)

	var rec2 lifecycle.AgentRecord
	require.NoError(t, json.Unmarshal(restarted.Body.Bytes(), &rec2))
	assert.Equal(t, lifecycle.StateRunning, rec2.State)
}

func TestAgentsHealthReturnsFleet(t *testing.T) {
	router := newTestRouter(t)
	doRequest(router, http.MethodPost, "/agents/register", RegisterAgentRequest{
		Name:        "agent-a",
		RuntimeKind: "null-claw",
	})

	rec := doRequest(router, http.MethodGet, "/agents/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Agents []lifecycle.AgentRecord `json:"agents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Agents, 1)
}

func TestAuditLogRecordsAgentRegistration(t *testing.T) {
	router := newTestRouter(t)
	doRequest(router, http.MethodPost, "/agents/register", RegisterAgentRequest{
		Name:        "agent-a",
		RuntimeKind: "null-claw",
	})

	rec := doRequest(router, http.MethodGet, "/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Events []audit.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Events)
	assert.Equal(t, "agent.registered", body.Events[0].Action)
}

func TestChannelSupportMatrix(t *testing.T) {
	router := newTestRouter(t)
	rec := doRequest(router, http.MethodGet, "/channels/support-matrix", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		SupportMatrix map[string]map[string]bool `json:"support_matrix"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.SupportMatrix, "null-claw")
}

func TestDiscoveryRegisterListAndScan(t *testing.T) {
	router := newTestRouter(t)

	registered := doRequest(router, http.MethodPost, "/discovery/endpoints/register", RegisterDiscoveryEndpointRequest{
		Host:        "10.0.0.5",
		Port:        9100,
		Method:      "manual",
		RuntimeHint: "zero-claw",
	})
	require.Equal(t, http.StatusCreated, registered.Code)

	listed := doRequest(router, http.MethodGet, "/discovery/endpoints", nil)
	require.Equal(t, http.StatusOK, listed.Code)
	var listBody struct {
		Endpoints []discovery.Endpoint `json:"endpoints"`
	}
	require.NoError(t, json.Unmarshal(listed.Body.Bytes(), &listBody))
	require.Len(t, listBody.Endpoints, 1)
	assert.Equal(t, "10.0.0.5", listBody.Endpoints[0].Host)

	auditRec := doRequest(router, http.MethodGet, "/audit", nil)
	var auditBody struct {
		Events []audit.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(auditRec.Body.Bytes(), &auditBody))
	found := false
	for _, e := range auditBody.Events {
		if e.Action == "discovery.register" {
			found = true
		}
	}
	assert.True(t, found, "discovery registration must append an audit event")

	scanned := doRequest(router, http.MethodPost, "/discovery/scan", ScanDiscoveryRequest{
		Hosts: []string{"127.0.0.1"},
		Ports: []int{1},
	})
	assert.Equal(t, http.StatusOK, scanned.Code)
}

func TestChannelBindConflictReturns409(t *testing.T) {
	router := newTestRouter(t)

	first := doRequest(router, http.MethodPost, "/channels/bindings", BindChannelRequest{
		InstanceID:  "inst-a",
		ChannelType: "telegram",
		BotToken:    "secret-token",
	})
	require.Equal(t, http.StatusCreated, first.Code)

	second := doRequest(router, http.MethodPost, "/channels/bindings", BindChannelRequest{
		InstanceID:  "inst-b",
		ChannelType: "telegram",
		BotToken:    "secret-token",
	})
	assert.Equal(t, http.StatusConflict, second.Code)
}

func TestSwarmCreateTeamAndFanOut(t *testing.T) {
	router := newTestRouter(t)

	teamRec := doRequest(router, http.MethodPost, "/swarm/teams", CreateTeamRequest{
		Name: "alpha",
		Members: []MemberRequest{
			{AgentID: "agent-1", Role: "worker"},
		},
	})
	require.Equal(t, http.StatusCreated, teamRec.Code)

	fanRec := doRequest(router, http.MethodPost, "/swarm/teams/alpha/fan-out", FanOutRequest{
		TaskDescription:     "parent",
		SubtaskDescriptions: []string{"s1", "s2"},
	})
	assert.Equal(t, http.StatusCreated, fanRec.Code)
}
