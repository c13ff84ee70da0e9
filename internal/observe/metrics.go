// Package observe provides application-wide observability primitives for
// Voiceline: OpenTelemetry metrics, structured logging helpers, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Voiceline metrics.
const meterName = "github.com/averro/voiceline"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks LLM inference latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// TurnDuration tracks end-of-user-turn to first-audio latency.
	TurnDuration metric.Float64Histogram

	// ToolExecutionDuration tracks tool execution latency.
	ToolExecutionDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// Utterances counts assistant replies. Use with attribute:
	//   attribute.String("assistant", ...)
	Utterances metric.Int64Counter

	// PromptTokens counts LLM prompt tokens consumed. Use with attribute:
	//   attribute.String("assistant", ...)
	PromptTokens metric.Int64Counter

	// CompletionTokens counts LLM completion tokens generated. Use with
	// attribute: attribute.String("assistant", ...)
	CompletionTokens metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live voice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	b := builder{meter: mp.Meter(meterName)}
	met := &Metrics{
		STTDuration: b.latencyHistogram("voiceline.stt.duration",
			"Latency of speech-to-text transcription."),
		LLMDuration: b.latencyHistogram("voiceline.llm.duration",
			"Latency of LLM inference."),
		TTSDuration: b.latencyHistogram("voiceline.tts.duration",
			"Latency of text-to-speech synthesis."),
		TurnDuration: b.latencyHistogram("voiceline.turn.duration",
			"End-of-user-turn to first-audio latency."),
		ToolExecutionDuration: b.latencyHistogram("voiceline.tool_execution.duration",
			"Latency of tool execution."),

		ProviderRequests: b.counter("voiceline.provider.requests",
			"Total provider API requests by provider, kind, and status."),
		ToolCalls: b.counter("voiceline.tool.calls",
			"Total tool invocations by tool name and status."),
		Utterances: b.counter("voiceline.assistant.utterances",
			"Total assistant replies by assistant name."),
		PromptTokens: b.counter("voiceline.llm.prompt_tokens",
			"Total LLM prompt tokens consumed by assistant name."),
		CompletionTokens: b.counter("voiceline.llm.completion_tokens",
			"Total LLM completion tokens generated by assistant name."),
		ProviderErrors: b.counter("voiceline.provider.errors",
			"Total provider errors by provider and kind."),

		ActiveSessions: b.upDown("voiceline.active_sessions",
			"Number of live voice sessions."),

		HTTPRequestDuration: b.histogram("voiceline.http.request.duration",
			"HTTP request latency by method and path."),
	}
	if b.err != nil {
		return nil, b.err
	}
	return met, nil
}

// builder creates instruments and keeps the first error it hits, so NewMetrics
// can build the whole struct in one literal.
type builder struct {
	meter metric.Meter
	err   error
}

func (b *builder) latencyHistogram(name, desc string) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	)
	if err != nil && b.err == nil {
		b.err = err
	}
	return h
}

func (b *builder) histogram(name, desc string) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
	)
	if err != nil && b.err == nil {
		b.err = err
	}
	return h
}

func (b *builder) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil && b.err == nil {
		b.err = err
	}
	return c
}

func (b *builder) upDown(name, desc string) metric.Int64UpDownCounter {
	c, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	if err != nil && b.err == nil {
		b.err = err
	}
	return c
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordToolCall is a convenience method that records a tool call counter
// increment with the standard attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordUtterance is a convenience method that records an assistant reply
// counter increment.
func (m *Metrics) RecordUtterance(ctx context.Context, assistant string) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("assistant", assistant)),
	)
}

// RecordTokens records prompt and completion token consumption for one LLM
// round.
func (m *Metrics) RecordTokens(ctx context.Context, assistant string, prompt, completion int) {
	attrs := metric.WithAttributes(attribute.String("assistant", assistant))
	if prompt > 0 {
		m.PromptTokens.Add(ctx, int64(prompt), attrs)
	}
	if completion > 0 {
		m.CompletionTokens.Add(ctx, int64(completion), attrs)
	}
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
