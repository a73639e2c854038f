// Package telemetry wraps goa.design/clue/log and OpenTelemetry tracing and
// metrics for use across the runtime, following the same thin-wrapper shape
// as the teacher's runtime/agent/telemetry package so every component logs
// and traces the same way regardless of which concrete backend is wired.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"
)

// Logger emits structured log records. Debug/Info/Warn/Error accept
// alternating key/value pairs, matching clue/log's Fielder convention.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, err error, keyvals ...any)
}

// Meter records counters and histograms.
type Meter interface {
	IncCounter(name string, value float64, attrs ...attribute.KeyValue)
	RecordHistogram(name string, value float64, attrs ...attribute.KeyValue)
	RecordGauge(name string, value float64, attrs ...attribute.KeyValue)
}

// Tracer starts spans for a named instrumentation scope.
type Tracer interface {
	Start(ctx context.Context, name string) (context.Context, trace.Span)
}

// ClueLogger delegates to goa.design/clue/log.
type ClueLogger struct{}

// NewClueLogger returns the default clue-backed Logger.
func NewClueLogger() Logger { return ClueLogger{} }

// Debug implements Logger.
func (ClueLogger) Debug(ctx context.Context, msg string, keyvals ...any) {
	log.Debug(ctx, fielders(msg, keyvals)...)
}

// Info implements Logger.
func (ClueLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	log.Info(ctx, fielders(msg, keyvals)...)
}

// Warn implements Logger.
func (ClueLogger) Warn(ctx context.Context, msg string, keyvals ...any) {
	log.Warn(ctx, fielders(msg, keyvals)...)
}

// Error implements Logger.
func (ClueLogger) Error(ctx context.Context, msg string, err error, keyvals ...any) {
	log.Error(ctx, err, fielders(msg, keyvals)...)
}

func fielders(msg string, keyvals []any) []log.Fielder {
	out := make([]log.Fielder, 0, len(keyvals)/2+1)
	out = append(out, log.KV{K: "msg", V: msg})
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, _ := keyvals[i].(string)
		out = append(out, log.KV{K: key, V: keyvals[i+1]})
	}
	return out
}

// otelMeter delegates to the global OTEL MeterProvider.
type otelMeter struct {
	meter metric.Meter
}

// NewMeter constructs a Meter scoped to name, using the global
// MeterProvider (configure it via clue.ConfigureOpenTelemetry before use).
func NewMeter(name string) Meter {
	return &otelMeter{meter: otel.Meter(name)}
}

// IncCounter implements Meter.
func (m *otelMeter) IncCounter(name string, value float64, attrs ...attribute.KeyValue) {
	c, err := m.meter.Float64Counter(name)
	if err != nil {
		return
	}
	c.Add(context.Background(), value, metric.WithAttributes(attrs...))
}

// RecordHistogram implements Meter.
func (m *otelMeter) RecordHistogram(name string, value float64, attrs ...attribute.KeyValue) {
	h, err := m.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	h.Record(context.Background(), value, metric.WithAttributes(attrs...))
}

// RecordGauge implements Meter using an UpDownCounter, since OTEL has no
// synchronous gauge instrument.
func (m *otelMeter) RecordGauge(name string, value float64, attrs ...attribute.KeyValue) {
	g, err := m.meter.Float64UpDownCounter(name)
	if err != nil {
		return
	}
	g.Add(context.Background(), value, metric.WithAttributes(attrs...))
}

// otelTracer delegates to the global OTEL TracerProvider.
type otelTracer struct {
	tracer trace.Tracer
}

// NewTracer constructs a Tracer scoped to name.
func NewTracer(name string) Tracer {
	return &otelTracer{tracer: otel.Tracer(name)}
}

// Start implements Tracer.
func (t *otelTracer) Start(ctx context.Context, name string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name)
}

// RecordDuration is a convenience helper for timing a span of work and
// reporting it as a histogram in seconds.
func RecordDuration(m Meter, name string, start time.Time, attrs ...attribute.KeyValue) {
	m.RecordHistogram(name, time.Since(start).Seconds(), attrs...)
}
