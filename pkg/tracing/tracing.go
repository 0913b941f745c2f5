// Package tracing configures the node's OpenTelemetry tracer provider.
// Grounded on the teacher's otel dependencies (go.opentelemetry.io/otel
// plus the stdout/jaeger/zipkin exporters), carried in the teacher's
// go.mod but never wired to a tracer provider anywhere in its tree.
// Selectable backend, one tracer provider per process, same shape as
// pkg/metrics' single-registry/selectable-exporter pattern.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Backend selects which exporter the tracer provider ships spans to.
type Backend string

const (
	BackendNone   Backend = ""
	BackendStdout Backend = "stdout"
	BackendJaeger Backend = "jaeger"
	BackendZipkin Backend = "zipkin"
)

// Config configures the node's tracer provider. A zero-value Backend
// disables tracing: Setup then leaves otel's default no-op provider in
// place and every span becomes a cheap no-op.
type Config struct {
	Backend Backend

	// ServiceName labels every span's resource attributes.
	ServiceName string

	// Endpoint is the exporter's collector URL. Required for
	// BackendJaeger and BackendZipkin; ignored for BackendStdout.
	Endpoint string
}

// Setup builds and installs the process-wide tracer provider per cfg,
// returning a shutdown func that flushes and releases exporter
// resources. Call Setup once at process startup.
func Setup(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if cfg.Backend == BackendNone {
		// otel's package-level default tracer provider is already a
		// no-op; leave it in place rather than installing one explicitly.
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tracing: building %s exporter: %w", cfg.Backend, err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "swarmdb-node"
	}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.Backend {
	case BackendStdout:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case BackendJaeger:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("tracing: jaeger backend requires Endpoint")
		}
		return jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Endpoint)))
	case BackendZipkin:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("tracing: zipkin backend requires Endpoint")
		}
		return zipkin.New(cfg.Endpoint)
	default:
		return nil, fmt.Errorf("tracing: unknown backend %q", cfg.Backend)
	}
}

// Tracer returns the node's tracer, for starting spans around the
// Replication Engine's sync sessions and the Query Engine's bounded
// executions. Safe to call before Setup (returns a no-op tracer then).
func Tracer() trace.Tracer {
	return otel.Tracer("swarmdb-node")
}

// StreamAttribute tags a span with the stream it operated on.
func StreamAttribute(streamID string) attribute.KeyValue {
	return attribute.String("swarmdb.stream_id", streamID)
}
