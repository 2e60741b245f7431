package observe

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Telemetry names the service for the OpenTelemetry SDK and picks where its
// spans go.
type Telemetry struct {
	// Service defaults to "vellum" when empty.
	Service string

	// Version is reported as-is and may stay empty.
	Version string

	// Spans receives finished spans. Leaving it nil keeps spans in-process
	// only, which is enough for tests and for deployments that scrape
	// /metrics without running a collector.
	Spans sdktrace.SpanExporter
}

// StartTelemetry installs the global OTel meter and tracer providers. Metrics
// are served to Prometheus scrapes through /metrics; spans are batched to
// t.Spans when one is set. The returned stop function flushes both providers;
// defer it from main.
func StartTelemetry(t Telemetry) (stop func(context.Context) error, err error) {
	if t.Service == "" {
		t.Service = "vellum"
	}
	res, err := serviceResource(t.Service, t.Version)
	if err != nil {
		return nil, fmt.Errorf("observe: build resource: %w", err)
	}

	prom, err := promexporter.New()
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}
	meters := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(prom),
	)
	otel.SetMeterProvider(meters)

	tracers := newTracerProvider(res, t.Spans)
	otel.SetTracerProvider(tracers)

	stop = func(ctx context.Context) error {
		return errors.Join(meters.Shutdown(ctx), tracers.Shutdown(ctx))
	}
	return stop, nil
}

// serviceResource merges the service identity into the SDK's default
// resource, which already carries host and runtime attributes.
func serviceResource(name, version string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(name),
			semconv.ServiceVersion(version),
		),
	)
}

func newTracerProvider(res *resource.Resource, exp sdktrace.SpanExporter) *sdktrace.TracerProvider {
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if exp != nil {
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	return sdktrace.NewTracerProvider(opts...)
}
