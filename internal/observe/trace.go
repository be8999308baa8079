package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = meterName

// Tracer returns the package-level [trace.Tracer] from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span. The caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

type utteranceKey struct{}

// WithUtterance tags ctx with an utterance number picked up by [Logger].
func WithUtterance(ctx context.Context, n int) context.Context {
	return context.WithValue(ctx, utteranceKey{}, n)
}

// UtteranceFrom returns the utterance number stored by [WithUtterance].
func UtteranceFrom(ctx context.Context) (int, bool) {
	n, ok := ctx.Value(utteranceKey{}).(int)
	return n, ok
}

// Logger returns the default [slog.Logger] with the trace_id and span_id of
// the active span and the utterance number of ctx, where present.
func Logger(ctx context.Context) *slog.Logger {
	var attrs []any
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if n, ok := UtteranceFrom(ctx); ok {
		attrs = append(attrs, slog.Int("utterance", n))
	}
	if len(attrs) == 0 {
		return slog.Default()
	}
	return slog.Default().With(attrs...)
}
