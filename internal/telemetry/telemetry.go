// Package telemetry wires go.opentelemetry.io/otel tracing around the
// pieces of clawden that cross a process boundary: adapter calls (which
// reach a container, subprocess or remote endpoint) and HTTP Edge requests.
// It never affects behavior when no OTLP endpoint is configured — spans are
// still created locally but exported nowhere a collector isn't listening.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope every clawden span is recorded
// under.
const TracerName = "github.com/codervisor/clawden"

// Init configures the global TracerProvider. When otlpEndpoint is empty the
// provider still samples and records spans (useful for tests and local
// `-v` runs) but has no span processor exporting them anywhere. Callers
// should defer the returned shutdown func.
func Init(ctx context.Context, otlpEndpoint, serviceName string) (shutdown func(context.Context) error, err error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceNameKey.String(serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	if otlpEndpoint != "" {
		exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(otlpEndpoint), otlptracehttp.WithInsecure())
		if err != nil {
			return nil, fmt.Errorf("telemetry: build otlp exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer returns the package-scoped tracer for clawden spans.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartSpan is a thin helper so call sites don't repeat Tracer().Start.
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, spanName, trace.WithAttributes(attrs...))
}
