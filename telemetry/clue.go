package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"
)

// instrumentationName identifies this module's meter/tracer to the
// OpenTelemetry SDK, distinct from any host application's own
// instrumentation scope.
const instrumentationName = "github.com/loopkit/agentcore"

type (
	// ClueLogger delegates to goa.design/clue/log, reading formatting and
	// debug settings from the context (set via log.Context and
	// log.WithFormat/log.WithDebug).
	ClueLogger struct{}

	// ClueMetrics delegates to OTEL metrics via the global MeterProvider;
	// configure it before use (e.g. via clue.ConfigureOpenTelemetry).
	ClueMetrics struct {
		meter metric.Meter
	}

	// ClueTracer delegates to OTEL tracing via the global TracerProvider.
	ClueTracer struct {
		tracer trace.Tracer
	}

	clueSpan struct {
		span trace.Span
	}
)

// NewClueLogger constructs a Logger backed by goa.design/clue/log.
func NewClueLogger() Logger { return ClueLogger{} }

// NewClueMetrics constructs a Metrics recorder backed by OTEL metrics.
func NewClueMetrics() Metrics {
	return &ClueMetrics{meter: otel.Meter(instrumentationName)}
}

// NewClueTracer constructs a Tracer backed by OTEL tracing.
func NewClueTracer() Tracer {
	return &ClueTracer{tracer: otel.Tracer(instrumentationName)}
}

func (ClueLogger) Debug(ctx context.Context, msg string, keyvals ...any) {
	log.Debug(ctx, append([]log.Fielder{log.KV{K: "msg", V: msg}}, kvSliceToClue(keyvals)...)...)
}

func (ClueLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	log.Info(ctx, append([]log.Fielder{log.KV{K: "msg", V: msg}}, kvSliceToClue(keyvals)...)...)
}

func (ClueLogger) Warn(ctx context.Context, msg string, keyvals ...any) {
	fielders := []log.Fielder{log.KV{K: "msg", V: msg}, log.KV{K: "severity", V: "warning"}}
	log.Warn(ctx, append(fielders, kvSliceToClue(keyvals)...)...)
}

func (ClueLogger) Error(ctx context.Context, msg string, keyvals ...any) {
	log.Error(ctx, nil, append([]log.Fielder{log.KV{K: "msg", V: msg}}, kvSliceToClue(keyvals)...)...)
}

func (m *ClueMetrics) IncCounter(name string, value float64, tags ...string) {
	counter, err := m.meter.Float64Counter(name)
	if err != nil {
		return
	}
	counter.Add(context.Background(), value, metric.WithAttributes(tagsToAttrs(tags)...))
}

func (m *ClueMetrics) RecordTimer(name string, duration time.Duration, tags ...string) {
	histogram, err := m.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	histogram.Record(context.Background(), duration.Seconds(), metric.WithAttributes(tagsToAttrs(tags)...))
}

// RecordGauge records a gauge value. OTEL has no synchronous gauge
// instrument, so this falls back to a histogram suffixed "_gauge", matching
// how the rest of the pack works around the same gap.
func (m *ClueMetrics) RecordGauge(name string, value float64, tags ...string) {
	histogram, err := m.meter.Float64Histogram(name + "_gauge")
	if err != nil {
		return
	}
	histogram.Record(context.Background(), value, metric.WithAttributes(tagsToAttrs(tags)...))
}

func (t *ClueTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span) {
	newCtx, span := t.tracer.Start(ctx, name, opts...)
	return newCtx, &clueSpan{span: span}
}

func (t *ClueTracer) Span(ctx context.Context) Span {
	return &clueSpan{span: trace.SpanFromContext(ctx)}
}

func (s *clueSpan) End(opts ...trace.SpanEndOption) { s.span.End(opts...) }

func (s *clueSpan) AddEvent(name string, attrs ...any) {
	s.span.AddEvent(name, trace.WithAttributes(kvSliceToAttrs(attrs)...))
}

func (s *clueSpan) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

func (s *clueSpan) RecordError(err error, opts ...trace.EventOption) {
	s.span.RecordError(err, opts...)
}

// kvSliceToClue converts variadic key-value pairs into Clue's log.Fielder
// slice. A trailing unpaired key is dropped; non-string keys are skipped.
func kvSliceToClue(keyvals []any) []log.Fielder {
	var fielders []log.Fielder
	for i := 0; i+1 < len(keyvals); i += 2 {
		k, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		fielders = append(fielders, log.KV{K: k, V: keyvals[i+1]})
	}
	return fielders
}

// tagsToAttrs converts tag strings (k1, v1, k2, v2, ...) into OTEL
// attributes for metrics dimensions.
func tagsToAttrs(tags []string) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for i := 0; i+1 < len(tags); i += 2 {
		attrs = append(attrs, attribute.String(tags[i], tags[i+1]))
	}
	return attrs
}

// kvSliceToAttrs converts variadic key-value pairs into OTEL attributes for
// span events, type-switching common Go value kinds.
func kvSliceToAttrs(keyvals []any) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for i := 0; i+1 < len(keyvals); i += 2 {
		k, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		switch v := keyvals[i+1].(type) {
		case string:
			attrs = append(attrs, attribute.String(k, v))
		case int:
			attrs = append(attrs, attribute.Int(k, v))
		case int64:
			attrs = append(attrs, attribute.Int64(k, v))
		case float64:
			attrs = append(attrs, attribute.Float64(k, v))
		case bool:
			attrs = append(attrs, attribute.Bool(k, v))
		default:
			attrs = append(attrs, attribute.String(k, ""))
		}
	}
	return attrs
}
