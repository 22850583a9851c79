// Package telemetry defines the observability seams the loop and tool
// pipeline call into: structured logging, counters/timers/gauges, and
// tracing spans. Implementations are swappable — a Noop set for tests and
// minimal deployments, a Clue/OTEL-backed set for production.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger captures structured logging used throughout the loop and tool
// pipeline. Kept intentionally small so tests can provide lightweight
// stubs without pulling in a logging framework.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter/timer/gauge helpers for runtime instrumentation.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation so callers stay agnostic of the
// underlying OpenTelemetry provider.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span represents an in-flight tracing span.
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}

// ToolTelemetry captures observability metadata collected during one tool
// execution. Extra holds tool-specific data (API response headers, cache
// keys, provider-specific details) not covered by the common fields.
type ToolTelemetry struct {
	DurationMs int64
	TokensUsed int
	Model      string
	Extra      map[string]any
}
