// Package telemetry defines the logging, metrics, and tracing abstractions
// used throughout the orchestration core. Every component takes a Logger (and
// optionally Metrics/Tracer) via constructor injection; the default is the
// no-op implementation so packages work standalone in tests.
//
// The package ships a structured key-value Logger, a counter/timer/gauge
// Metrics recorder, and a Tracer producing spans compatible with
// go.opentelemetry.io/otel.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger is a structured, leveled logger. keyvals is an alternating list of
// keys and values, matching the convention used across this codebase's log
// call sites.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics records counters, timers, and gauges. tags is an optional list of
// "key:value" style labels.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, d time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Span represents an in-flight trace span.
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, keyvals ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}

// Tracer starts spans for units of work.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
}
