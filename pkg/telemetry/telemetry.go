// Package telemetry installs the OpenTelemetry tracer provider used by the
// processor, query handler and memory retriever spans.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const DefaultServiceName = "recall"

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

type Config struct {
	// Endpoint is an OTLP/HTTP collector, either "host:port" (plain HTTP)
	// or a full URL. Empty disables tracing.
	Endpoint string

	ServiceName string
	Version     string
	Logger      *slog.Logger
}

// Setup installs a batching OTLP/HTTP tracer provider as the global provider.
// With no endpoint the global no-op provider is left in place.
func Setup(ctx context.Context, c Config) (ShutdownFunc, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if c.Endpoint == "" {
		logger.Debug("tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}

	var opts []otlptracehttp.Option
	if strings.Contains(c.Endpoint, "://") {
		opts = append(opts, otlptracehttp.WithEndpointURL(c.Endpoint))
	} else {
		opts = append(opts, otlptracehttp.WithEndpoint(c.Endpoint), otlptracehttp.WithInsecure())
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	attrs := []attribute.KeyValue{attribute.String("service.name", c.ServiceName)}
	if c.Version != "" {
		attrs = append(attrs, attribute.String("service.version", c.Version))
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return nil, fmt.Errorf("creating trace resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	logger.Info("tracing enabled", "endpoint", c.Endpoint, "service", c.ServiceName)

	return provider.Shutdown, nil
}
