// Package telemetry implements the metrics/tracing exporter (C7): a
// pluggable backend interface plus a reference OpenTelemetry
// implementation, driven by an export loop that periodically rebuilds the
// flow/scoring pipeline from recent event-store data and publishes the
// result.
package telemetry

import "context"

// Labels tag a metric sample or span attribute set.
type Labels map[string]string

// SpanHandle is an opaque reference to a span opened by StartSpan; callers
// hold it only to end the span or attach events.
type SpanHandle interface{}

// Backend is the pluggable export surface. Implementations must tolerate
// being called from a single goroutine at whatever rate the export loop
// runs; failures are the backend's to swallow or log, never to propagate
// back into the capture path. Repeated Shutdown calls must be no-ops.
type Backend interface {
	RecordCounter(ctx context.Context, name string, value float64, labels Labels)
	RecordHistogram(ctx context.Context, name string, value float64, labels Labels)
	RecordGauge(ctx context.Context, name string, value float64, labels Labels)

	StartSpan(ctx context.Context, name string, attrs Labels) (context.Context, SpanHandle)
	AddSpanEvent(handle SpanHandle, name string, attrs Labels)
	EndSpan(handle SpanHandle, err error)

	Shutdown(ctx context.Context) error
}
