package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docker/docker/client"
	"github.com/gin-gonic/gin"
	natsgo "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/codervisor/clawden/internal/adapter"
	"github.com/codervisor/clawden/internal/adapters/ironclaw"
	"github.com/codervisor/clawden/internal/adapters/microclaw"
	"github.com/codervisor/clawden/internal/adapters/mimiclaw"
	"github.com/codervisor/clawden/internal/adapters/nanoclaw"
	"github.com/codervisor/clawden/internal/adapters/nullclaw"
	"github.com/codervisor/clawden/internal/adapters/openclaw"
	"github.com/codervisor/clawden/internal/adapters/picoclaw"
	"github.com/codervisor/clawden/internal/adapters/zeroclaw"
	"github.com/codervisor/clawden/internal/audit"
	"github.com/codervisor/clawden/internal/channels"
	"github.com/codervisor/clawden/internal/config"
	"github.com/codervisor/clawden/internal/discovery"
	"github.com/codervisor/clawden/internal/eventbus"
	"github.com/codervisor/clawden/internal/externalregistry"
	"github.com/codervisor/clawden/internal/httpapi"
	"github.com/codervisor/clawden/internal/lifecycle"
	"github.com/codervisor/clawden/internal/logger"
	"github.com/codervisor/clawden/internal/registry"
	"github.com/codervisor/clawden/internal/runtimekind"
	"github.com/codervisor/clawden/internal/swarm"
	"github.com/codervisor/clawden/internal/telemetry"
)

// dispatcherFunc adapts lifecycle.Manager.RouteAndSend to swarm.Dispatcher so
// the Swarm Coordinator can hand subtasks straight to the fleet it already
// routes everything else through.
type dispatcherFunc func(ctx context.Context, agentID string, task swarm.Task) error

func (f dispatcherFunc) Dispatch(ctx context.Context, agentID string, task swarm.Task) error {
	return f(ctx, agentID, task)
}

func adapterMessageFromTask(task swarm.Task) adapter.Message {
	return adapter.Message{Role: "system", Content: task.Description}
}

// loadExternalSeeds opens the configured External Registry backend, reads
// its boot-time seed rows and projects them into lifecycle.AgentRecord,
// skipping any seed whose runtime_kind is no longer recognized.
func loadExternalSeeds(ctx context.Context, cfg *config.Config, log *logger.Logger) ([]lifecycle.AgentRecord, error) {
	var source externalregistry.ExternalRegistry
	switch cfg.ExternalRegistry.Kind {
	case "postgres":
		reg, err := externalregistry.NewPostgresRegistry(ctx, cfg.ExternalRegistry.DSN)
		if err != nil {
			return nil, err
		}
		defer reg.Close()
		source = reg
	case "sqlite":
		reg, err := externalregistry.NewSQLiteRegistry(cfg.ExternalRegistry.DSN)
		if err != nil {
			return nil, err
		}
		defer reg.Close()
		source = reg
	default:
		return nil, fmt.Errorf("unrecognized externalRegistry.kind %q", cfg.ExternalRegistry.Kind)
	}

	seeds, err := source.LoadAgents(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]lifecycle.AgentRecord, 0, len(seeds))
	for _, s := range seeds {
		kind, ok := runtimekind.Parse(s.RuntimeKind)
		if !ok {
			log.Warn("skipping external registry seed with unrecognized runtime_kind", zap.String("agent_id", s.ID), zap.String("runtime_kind", s.RuntimeKind))
			continue
		}
		out = append(out, lifecycle.AgentRecord{
			ID:           s.ID,
			Name:         s.Name,
			RuntimeKind:  kind,
			Capabilities: s.Capabilities,
			State:        lifecycle.State(s.State),
			TaskCount:    s.TaskCount,
		})
	}
	return out, nil
}

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, OutputPath: "stdout"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting clawden server")

	// 3. Create a cancellable root context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Init(ctx, cfg.Tracing.OTLPEndpoint, "clawden-server")
	if err != nil {
		log.Fatal("failed to initialize tracing", zap.Error(err))
	}
	defer shutdownTracing(context.Background())

	// 4. Connect the Fleet Event Bus: NATS when configured, in-process
	// otherwise (spec.md §4.9).
	var bus eventbus.EventBus
	if cfg.NATS.URL != "" {
		bus, err = eventbus.NewNATS(cfg.NATS.URL)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		log.Info("connected to NATS event bus", zap.String("url", cfg.NATS.URL))
	} else {
		bus = eventbus.NewMemory()
		log.Info("using in-process event bus (no nats.url configured)")
	}
	defer bus.Close()

	// 5. Build the runtime-kind registry and register every concrete adapter
	// we know how to serve.
	reg := registry.New()
	reg.Register(runtimekind.NullClaw, telemetry.Wrap(nullclaw.New(), runtimekind.NullClaw))
	reg.Register(runtimekind.MicroClaw, telemetry.Wrap(microclaw.New(microclaw.Config{Command: cfg.Adapters.MicroClawCommand}), runtimekind.MicroClaw))
	reg.Register(runtimekind.ZeroClaw, telemetry.Wrap(zeroclaw.New(zeroclaw.Config{ExecutablePath: cfg.Adapters.ZeroClawExecutable}), runtimekind.ZeroClaw))
	reg.Register(runtimekind.MimiClaw, telemetry.Wrap(mimiclaw.New(mimiclaw.Config{ExecutablePath: cfg.Adapters.MimiClawExecutable}), runtimekind.MimiClaw))
	reg.Register(runtimekind.NanoClaw, telemetry.Wrap(nanoclaw.New(nanoclaw.Config{URLTemplate: cfg.Adapters.NanoClawURLTemplate}), runtimekind.NanoClaw))
	reg.Register(runtimekind.OpenClaw, telemetry.Wrap(openclaw.New(openclaw.Config{BaseURLTemplate: cfg.Adapters.OpenClawBaseURL}), runtimekind.OpenClaw))

	if !cfg.Docker.NoDocker {
		dockerCli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			log.Fatal("failed to initialize Docker client", zap.Error(err))
		}
		if _, err := dockerCli.Ping(ctx); err != nil {
			log.Fatal("failed to connect to Docker daemon", zap.Error(err))
		}
		reg.Register(runtimekind.PicoClaw, telemetry.Wrap(picoclaw.New(dockerCli, picoclaw.Config{Image: cfg.Adapters.PicoClawImage}), runtimekind.PicoClaw))
		log.Info("connected to Docker daemon, registered pico-claw")
	} else {
		log.Info("docker.noDocker set, skipping pico-claw registration")
	}

	if cfg.NATS.URL != "" {
		natsConn, err := natsgo.Connect(cfg.NATS.URL)
		if err != nil {
			log.Fatal("failed to connect iron-claw to NATS", zap.Error(err))
		}
		defer natsConn.Close()
		reg.Register(runtimekind.IronClaw, telemetry.Wrap(ironclaw.New(ironclaw.Config{Conn: natsConn}), runtimekind.IronClaw))
	} else {
		log.Info("nats.url not configured, skipping iron-claw registration")
	}

	log.Info("registered adapters", zap.Int("count", len(reg.List())))

	// 6. Initialize the append-only audit sink.
	auditSink := audit.New(cfg.Audit.FilePath, bus, log)
	defer auditSink.Close()

	// 7. Initialize the Lifecycle Manager and seed it from the External
	// Registry, if configured (spec.md §4.8 EXPANSION).
	lm := lifecycle.New(reg, log, lifecycle.WithAudit(auditSink), lifecycle.WithEventBus(bus))

	if cfg.ExternalRegistry.Kind != "" {
		seeds, err := loadExternalSeeds(ctx, cfg, log)
		if err != nil {
			log.Error("failed to load external registry seeds, continuing with empty fleet", zap.Error(err))
		} else {
			lm.SeedFromExternalRegistry(seeds)
			log.Info("seeded fleet from external registry", zap.Int("agents", len(seeds)))
		}
	}

	// 8. Initialize the Channel Binding Store and the Swarm Coordinator,
	// wiring fan-out dispatch straight through the Lifecycle Manager.
	ch := channels.New()
	dispatcher := dispatcherFunc(func(ctx context.Context, agentID string, task swarm.Task) error {
		target := agentID
		_, _, err := lm.RouteAndSend(ctx, nil, adapterMessageFromTask(task), &target)
		return err
	})
	sw := swarm.New(swarm.WithDispatcher(dispatcher))

	// 8b. Initialize the Discovery Service (spec.md §5, §6 EXPANSION).
	disc := discovery.New()

	// 9. Start the periodic health-monitor loop (spec.md §4.5).
	healthInterval := time.Duration(cfg.Health.IntervalMS) * time.Millisecond
	go lm.RunHealthLoop(ctx, healthInterval, int64(cfg.Health.RecoveryBaseBackoffMS))
	log.Info("started health monitor loop", zap.Duration("interval", healthInterval))

	// 10. Build the HTTP Edge.
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpapi.NewRouter(lm, ch, sw, disc, auditSink, log)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	// 11. Start serving.
	go func() {
		log.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	// 12. Wait for a shutdown signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down clawden server")

	// 13. Graceful shutdown.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", zap.Error(err))
	}

	log.Info("clawden server stopped")
}
