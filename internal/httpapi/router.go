package httpapi

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/codervisor/clawden/internal/audit"
	"github.com/codervisor/clawden/internal/channels"
	"github.com/codervisor/clawden/internal/discovery"
	"github.com/codervisor/clawden/internal/lifecycle"
	"github.com/codervisor/clawden/internal/logger"
	"github.com/codervisor/clawden/internal/swarm"
	"github.com/codervisor/clawden/internal/telemetry"
)

// tracingMiddleware starts one span per HTTP request, tagged with the
// matched route so the HTTP Edge shows up in the same traces as the
// adapter calls (internal/telemetry) it triggers downstream.
func tracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := telemetry.StartSpan(c.Request.Context(), "http."+c.Request.Method+" "+c.FullPath())
		defer span.End()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
		span.SetAttributes(attribute.Int("http.status_code", c.Writer.Status()))
	}
}

// NewRouter builds the full clawden HTTP Edge on top of gin, grouping
// routes the way the teacher's SetupRoutes does.
func NewRouter(lm *lifecycle.Manager, ch *channels.Store, sw *swarm.Coordinator, disc *discovery.Service, auditSink *audit.Sink, log *logger.Logger) *gin.Engine {
	handler := NewHandler(lm, ch, sw, disc, auditSink, log)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(tracingMiddleware())

	router.GET("/health", handler.HealthCheck)
	router.GET("/fleet/status", handler.FleetStatus)
	router.GET("/audit", handler.AuditLog)

	agents := router.Group("/agents")
	{
		agents.GET("", handler.ListAgents)
		agents.GET("/health", handler.AgentsHealth)
		agents.POST("/register", handler.RegisterAgent)
		agents.GET("/:id", handler.GetAgent)
		agents.POST("/:id/start", handler.StartAgent)
		agents.POST("/:id/stop", handler.StopAgent)
		agents.POST("/:id/restart", handler.RestartAgent)
	}

	router.POST("/task/send", handler.RouteAndSend)

	channelsGroup := router.Group("/channels")
	{
		channelsGroup.PUT("/configs/:name", handler.UpsertChannelConfig)
		channelsGroup.DELETE("/configs/:name", handler.DeleteChannelConfig)
		channelsGroup.POST("/bindings", handler.BindChannel)
		channelsGroup.DELETE("/bindings/:id", handler.UnbindChannel)
		channelsGroup.GET("/conflicts", handler.ChannelConflicts)
		channelsGroup.GET("/types", handler.ChannelTypes)
		channelsGroup.GET("/matrix", handler.ChannelMatrix)
		channelsGroup.GET("/matrix/stream", handler.StreamChannelMatrix)
		channelsGroup.GET("/support-matrix", handler.ChannelSupportMatrix)
	}

	swarmGroup := router.Group("/swarm")
	{
		swarmGroup.POST("/teams", handler.CreateTeam)
		swarmGroup.GET("/teams", handler.ListTeams)
		swarmGroup.POST("/teams/:name/fan-out", handler.FanOut)
		swarmGroup.GET("/tasks", handler.ListTasks)
	}

	discoveryGroup := router.Group("/discovery")
	{
		discoveryGroup.POST("/endpoints/register", handler.RegisterDiscoveryEndpoint)
		discoveryGroup.GET("/endpoints", handler.ListDiscoveryEndpoints)
		discoveryGroup.POST("/scan", handler.ScanDiscoveryEndpoints)
	}

	return router
}
