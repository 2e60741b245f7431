// Package observe wires Vellum's observability together: OpenTelemetry
// metrics and traces, the Prometheus bridge they are scraped through, and
// the HTTP middleware plus provider wrappers that feed them.
//
// Instruments live on [Metrics]. Production code shares the lazily built
// [DefaultMetrics] instance; tests build their own through [NewMetrics] with
// a manual reader so nothing leaks between them.
package observe

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Bucket boundaries in seconds. Single backend calls resolve in fractions of
// a second; whole ingestion runs and agent turns can take minutes.
var (
	fastBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	slowBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}
)

// Metrics bundles every instrument the application records. The OTel
// instruments synchronize internally, so one instance serves all goroutines.
type Metrics struct {
	// Stage latency histograms, in seconds.
	IngestDuration        metric.Float64Histogram // whole pipeline, per document
	EmbedDuration         metric.Float64Histogram // one embedding batch call
	SearchDuration        metric.Float64Histogram // one index search
	LLMDuration           metric.Float64Histogram // one completion
	ToolExecutionDuration metric.Float64Histogram // one tool run
	TurnDuration          metric.Float64Histogram // full agent turn

	// Counters. The attribute keys are the ones the Record helpers set.
	ProviderRequests  metric.Int64Counter // provider, kind, status
	ToolCalls         metric.Int64Counter // tool, status
	DocumentsIngested metric.Int64Counter // status
	ChunksIndexed     metric.Int64Counter
	TokenUsage        metric.Int64Counter // kind: prompt or completion
	ProviderErrors    metric.Int64Counter // provider, kind

	// In-flight work.
	ActiveTurns   metric.Int64UpDownCounter
	ActiveIngests metric.Int64UpDownCounter

	// HTTPRequestDuration is recorded by [Middleware] with method and path.
	HTTPRequestDuration metric.Float64Histogram
}

// instrumentSet creates instruments one by one and keeps the first error.
// After a failure the remaining creators return nil instruments, so the
// error check happens once, at the end.
type instrumentSet struct {
	meter metric.Meter
	err   error
}

func (s *instrumentSet) histogram(name, desc string, buckets []float64) metric.Float64Histogram {
	if s.err != nil {
		return nil
	}
	opts := []metric.Float64HistogramOption{
		metric.WithDescription(desc),
		metric.WithUnit("s"),
	}
	if len(buckets) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := s.meter.Float64Histogram(name, opts...)
	if err != nil {
		s.err = fmt.Errorf("%s: %w", name, err)
	}
	return h
}

func (s *instrumentSet) counter(name, desc string) metric.Int64Counter {
	if s.err != nil {
		return nil
	}
	c, err := s.meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		s.err = fmt.Errorf("%s: %w", name, err)
	}
	return c
}

func (s *instrumentSet) upDown(name, desc string) metric.Int64UpDownCounter {
	if s.err != nil {
		return nil
	}
	c, err := s.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	if err != nil {
		s.err = fmt.Errorf("%s: %w", name, err)
	}
	return c
}

// NewMetrics builds every instrument on mp. Production passes the global
// provider; tests pass one backed by a manual reader.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	s := &instrumentSet{meter: mp.Meter(scopeName)}

	m := &Metrics{
		IngestDuration:        s.histogram("vellum.ingest.duration", "End-to-end document ingestion latency.", slowBuckets),
		EmbedDuration:         s.histogram("vellum.embed.duration", "Latency of embedding batch calls.", fastBuckets),
		SearchDuration:        s.histogram("vellum.search.duration", "Latency of vector index searches.", fastBuckets),
		LLMDuration:           s.histogram("vellum.llm.duration", "Latency of LLM completions.", fastBuckets),
		ToolExecutionDuration: s.histogram("vellum.tool_execution.duration", "Latency of tool execution.", fastBuckets),
		TurnDuration:          s.histogram("vellum.agent.turn.duration", "Full agent turn latency across all reasoning steps.", slowBuckets),

		ProviderRequests:  s.counter("vellum.provider.requests", "Provider API requests by provider, kind and status."),
		ToolCalls:         s.counter("vellum.tool.calls", "Tool invocations by tool name and status."),
		DocumentsIngested: s.counter("vellum.documents.ingested", "Finished ingestion runs by final status."),
		ChunksIndexed:     s.counter("vellum.chunks.indexed", "Chunks written to the vector index."),
		TokenUsage:        s.counter("vellum.llm.tokens", "LLM tokens consumed by kind."),
		ProviderErrors:    s.counter("vellum.provider.errors", "Provider errors by provider and kind."),

		ActiveTurns:   s.upDown("vellum.active_turns", "Agent turns currently in flight."),
		ActiveIngests: s.upDown("vellum.active_ingests", "Ingestion pipelines currently running."),

		// Default SDK buckets suit sub-second HTTP handling fine.
		HTTPRequestDuration: s.histogram("vellum.http.request.duration", "HTTP request latency by method and path.", nil),
	}
	if s.err != nil {
		return nil, fmt.Errorf("observe: create instruments: %w", s.err)
	}
	return m, nil
}

// RegisterIndexSize exposes the vector count of the index as an observable
// gauge. count runs on every collection; returning ok=false skips the
// observation, which keeps an unreachable index from reporting zero.
// Unregister the returned registration on shutdown.
func RegisterIndexSize(mp metric.MeterProvider, count func(ctx context.Context) (int64, bool)) (metric.Registration, error) {
	meter := mp.Meter(scopeName)
	gauge, err := meter.Int64ObservableGauge("vellum.index.vectors",
		metric.WithDescription("Number of vectors currently in the index."),
	)
	if err != nil {
		return nil, err
	}
	return meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		if n, ok := count(ctx); ok {
			o.ObserveInt64(gauge, n)
		}
		return nil
	}, gauge)
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the shared [Metrics] built on the global meter
// provider, creating it on first call. It panics if instrument creation
// fails, which the global provider does not do.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordProviderRequest counts one provider API call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

// RecordToolCall counts one tool invocation.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	))
}

// RecordDocumentIngested counts one finished ingestion run.
func (m *Metrics) RecordDocumentIngested(ctx context.Context, status string) {
	m.DocumentsIngested.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordTokenUsage adds a turn's prompt and completion token counts. Zero
// counts emit nothing.
func (m *Metrics) RecordTokenUsage(ctx context.Context, prompt, completion int64) {
	if prompt > 0 {
		m.TokenUsage.Add(ctx, prompt, metric.WithAttributes(attribute.String("kind", "prompt")))
	}
	if completion > 0 {
		m.TokenUsage.Add(ctx, completion, metric.WithAttributes(attribute.String("kind", "completion")))
	}
}

// RecordProviderError counts one provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
	))
}
