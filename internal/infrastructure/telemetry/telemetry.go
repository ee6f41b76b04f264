// Package telemetry wires OpenTelemetry tracing across the dispatch
// engine: one span per Dispatch call, tagged with the resolved (provider,
// model) of each retry attempt.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerName identifies the proxy's tracer among others sharing a process.
const TracerName = "github.com/modelrelay/relay/dispatch"

// NewProvider builds the process-global TracerProvider. Without a
// registered exporter, spans are created and ended but not shipped
// anywhere; wiring an OTLP exporter against the configured endpoint is left
// to the deployment (config.TracingConfig.OTLPEndpoint is reserved for it).
// cmd/gateway builds it only when tracing is enabled; with tracing
// disabled no SDK provider is constructed and NewTracer returns a no-op
// tracer.
func NewProvider(serviceName string) *sdktrace.TracerProvider {
	res := resource.NewSchemaless(semconv.ServiceName(serviceName))
	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)
	return tp
}

// NewTracer returns the global tracer when enabled, otherwise a no-op
// tracer so an unconfigured proxy pays nothing for instrumentation.
func NewTracer(enabled bool) trace.Tracer {
	if !enabled {
		return noop.NewTracerProvider().Tracer(TracerName)
	}
	return otel.Tracer(TracerName)
}

// StartDispatch opens the span covering one client request end to end,
// tagged with the client's wire dialect.
func StartDispatch(ctx context.Context, tracer trace.Tracer, sourceFormat string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "dispatch.request", trace.WithAttributes(
		attribute.String("relay.source_format", sourceFormat),
	))
}

// RecordAttempt tags the active span with the target resolved for one
// retry attempt.
func RecordAttempt(span trace.Span, attempt int, provider, model string) {
	span.AddEvent("attempt", trace.WithAttributes(
		attribute.Int("relay.attempt", attempt),
		attribute.String("relay.provider", provider),
		attribute.String("relay.model", model),
	))
}

// End records err (if non-nil) on span and closes it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
