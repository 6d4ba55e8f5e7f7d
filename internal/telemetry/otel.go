package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// OtelConfig configures the reference OpenTelemetry backend.
type OtelConfig struct {
	ServiceName string
	// OTLPTraceEndpoint is the gRPC OTLP collector address for spans
	// (e.g. "localhost:4317"). When Console is true this is ignored and
	// spans are written to stdout instead.
	OTLPTraceEndpoint string
	// OTLPMetricEndpoint is the OTLP/HTTP collector address for metrics
	// (e.g. "localhost:4318").
	OTLPMetricEndpoint string
	// Console routes spans to stdout rather than an OTLP collector, for
	// local runs with no collector available.
	Console bool
}

// OtelBackend maps the generic Backend contract onto OpenTelemetry
// instruments, creating each counter/histogram/gauge lazily the first time
// a metric name is recorded.
type OtelBackend struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter

	mu         sync.Mutex
	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
	gauges     map[string]metric.Float64Gauge
	shutdown   bool
}

// NewOtelBackend sets up a TracerProvider and MeterProvider for the
// configured endpoints and registers them as the global providers via
// otel.SetTracerProvider/SetMeterProvider. Each call builds new providers;
// a second call does not reuse the ones an earlier call registered, it
// replaces them.
func NewOtelBackend(ctx context.Context, cfg OtelConfig) (*OtelBackend, error) {
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion("1.0.0"),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	var spanExporter sdktrace.SpanExporter
	if cfg.Console {
		spanExporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	} else {
		endpoint := cfg.OTLPTraceEndpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		spanExporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	}
	if err != nil {
		return nil, fmt.Errorf("telemetry: build span exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(spanExporter), sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	metricEndpoint := cfg.OTLPMetricEndpoint
	if metricEndpoint == "" {
		metricEndpoint = "localhost:4318"
	}
	metricExporter, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(metricEndpoint), otlpmetrichttp.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("telemetry: build metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
	)
	otel.SetMeterProvider(mp)

	return &OtelBackend{
		tracerProvider: tp,
		meterProvider:  mp,
		tracer:         tp.Tracer("mcpaudit"),
		meter:          mp.Meter("mcpaudit"),
		counters:       make(map[string]metric.Float64Counter),
		histograms:     make(map[string]metric.Float64Histogram),
		gauges:         make(map[string]metric.Float64Gauge),
	}, nil
}

// RecordCounter adds value to the named counter.
func (b *OtelBackend) RecordCounter(ctx context.Context, name string, value float64, labels Labels) {
	b.mu.Lock()
	inst, ok := b.counters[name]
	if !ok {
		var err error
		inst, err = b.meter.Float64Counter(name)
		if err != nil {
			b.mu.Unlock()
			return
		}
		b.counters[name] = inst
	}
	b.mu.Unlock()
	inst.Add(ctx, value, metric.WithAttributes(toAttributes(labels)...))
}

// RecordHistogram records one sample in the named histogram.
func (b *OtelBackend) RecordHistogram(ctx context.Context, name string, value float64, labels Labels) {
	b.mu.Lock()
	inst, ok := b.histograms[name]
	if !ok {
		var err error
		inst, err = b.meter.Float64Histogram(name)
		if err != nil {
			b.mu.Unlock()
			return
		}
		b.histograms[name] = inst
	}
	b.mu.Unlock()
	inst.Record(ctx, value, metric.WithAttributes(toAttributes(labels)...))
}

// RecordGauge sets the named gauge's current value.
func (b *OtelBackend) RecordGauge(ctx context.Context, name string, value float64, labels Labels) {
	b.mu.Lock()
	inst, ok := b.gauges[name]
	if !ok {
		var err error
		inst, err = b.meter.Float64Gauge(name)
		if err != nil {
			b.mu.Unlock()
			return
		}
		b.gauges[name] = inst
	}
	b.mu.Unlock()
	inst.Record(ctx, value, metric.WithAttributes(toAttributes(labels)...))
}

// StartSpan opens a span; the returned context parents any span started
// under it, so nested StartSpan calls build a real trace tree.
func (b *OtelBackend) StartSpan(ctx context.Context, name string, attrs Labels) (context.Context, SpanHandle) {
	ctx, span := b.tracer.Start(ctx, name, trace.WithAttributes(toAttributes(attrs)...))
	return ctx, span
}

// AddSpanEvent attaches a named event to an open span.
func (b *OtelBackend) AddSpanEvent(handle SpanHandle, name string, attrs Labels) {
	span, ok := handle.(trace.Span)
	if !ok {
		return
	}
	span.AddEvent(name, trace.WithAttributes(toAttributes(attrs)...))
}

// EndSpan closes a span, marking it errored when err is non-nil.
func (b *OtelBackend) EndSpan(handle SpanHandle, err error) {
	span, ok := handle.(trace.Span)
	if !ok {
		return
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Shutdown flushes and closes the trace and metric providers. Safe to call
// more than once.
func (b *OtelBackend) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if b.shutdown {
		b.mu.Unlock()
		return nil
	}
	b.shutdown = true
	b.mu.Unlock()

	if err := b.tracerProvider.Shutdown(ctx); err != nil {
		return err
	}
	return b.meterProvider.Shutdown(ctx)
}

func toAttributes(labels Labels) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		out = append(out, attribute.String(k, v))
	}
	return out
}
