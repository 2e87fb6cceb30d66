package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/codervisor/clawden/internal/adapter"
	"github.com/codervisor/clawden/internal/runtimekind"
)

// tracingAdapter wraps any concrete adapter.Adapter with a span around each
// operation, tagged with the runtime kind it decorates. It changes no
// behavior — every call is forwarded unchanged — so it composes with every
// existing adapter test without modification.
type tracingAdapter struct {
	inner adapter.Adapter
	kind  runtimekind.Kind
}

// Wrap decorates inner with tracing spans. Every concrete adapter the
// registry holds should go through this so the Lifecycle Manager's calls
// into Docker, subprocesses, WebSockets, REST and NATS are all visible in
// the same trace as the HTTP request that triggered them.
func Wrap(inner adapter.Adapter, kind runtimekind.Kind) adapter.Adapter {
	return &tracingAdapter{inner: inner, kind: kind}
}

func (a *tracingAdapter) span(ctx context.Context, op string) (context.Context, func(err error)) {
	ctx, span := StartSpan(ctx, "adapter."+op, attribute.String("runtime_kind", a.kind.String()))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

func (a *tracingAdapter) Metadata(ctx context.Context) (adapter.Metadata, error) {
	ctx, end := a.span(ctx, "metadata")
	m, err := a.inner.Metadata(ctx)
	end(err)
	return m, err
}

func (a *tracingAdapter) Install(ctx context.Context, cfg adapter.InstallConfig) error {
	ctx, end := a.span(ctx, "install")
	err := a.inner.Install(ctx, cfg)
	end(err)
	return err
}

func (a *tracingAdapter) Start(ctx context.Context, cfg adapter.AgentConfig) (adapter.Handle, error) {
	ctx, end := a.span(ctx, "start")
	h, err := a.inner.Start(ctx, cfg)
	end(err)
	return h, err
}

func (a *tracingAdapter) Stop(ctx context.Context, h adapter.Handle) error {
	ctx, end := a.span(ctx, "stop")
	err := a.inner.Stop(ctx, h)
	end(err)
	return err
}

func (a *tracingAdapter) Restart(ctx context.Context, h adapter.Handle) error {
	ctx, end := a.span(ctx, "restart")
	err := a.inner.Restart(ctx, h)
	end(err)
	return err
}

func (a *tracingAdapter) Health(ctx context.Context, h adapter.Handle) (adapter.Health, error) {
	ctx, end := a.span(ctx, "health")
	health, err := a.inner.Health(ctx, h)
	end(err)
	return health, err
}

func (a *tracingAdapter) Metrics(ctx context.Context, h adapter.Handle) (adapter.Metrics, error) {
	ctx, end := a.span(ctx, "metrics")
	m, err := a.inner.Metrics(ctx, h)
	end(err)
	return m, err
}

func (a *tracingAdapter) Send(ctx context.Context, h adapter.Handle, msg adapter.Message) (adapter.Response, error) {
	ctx, end := a.span(ctx, "send")
	resp, err := a.inner.Send(ctx, h, msg)
	end(err)
	return resp, err
}

func (a *tracingAdapter) Subscribe(ctx context.Context, h adapter.Handle, event string) (<-chan []byte, error) {
	ctx, end := a.span(ctx, "subscribe")
	ch, err := a.inner.Subscribe(ctx, h, event)
	end(err)
	return ch, err
}

func (a *tracingAdapter) GetConfig(ctx context.Context, h adapter.Handle) (map[string]string, error) {
	ctx, end := a.span(ctx, "get_config")
	cfg, err := a.inner.GetConfig(ctx, h)
	end(err)
	return cfg, err
}

func (a *tracingAdapter) SetConfig(ctx context.Context, h adapter.Handle, cfg map[string]string) error {
	ctx, end := a.span(ctx, "set_config")
	err := a.inner.SetConfig(ctx, h, cfg)
	end(err)
	return err
}

func (a *tracingAdapter) ListSkills(ctx context.Context, h adapter.Handle) ([]adapter.SkillManifest, error) {
	ctx, end := a.span(ctx, "list_skills")
	skills, err := a.inner.ListSkills(ctx, h)
	end(err)
	return skills, err
}

func (a *tracingAdapter) InstallSkill(ctx context.Context, h adapter.Handle, manifest adapter.SkillManifest) error {
	ctx, end := a.span(ctx, "install_skill")
	err := a.inner.InstallSkill(ctx, h, manifest)
	end(err)
	return err
}

var _ adapter.Adapter = (*tracingAdapter)(nil)
