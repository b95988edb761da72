// Package logctx carries the scoped logger of one HTTP request, bus event or
// use case run through a context.
package logctx

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/Zhima-Mochi/minishop-inventory/internal/observability"
)

type ctxKey struct{}

// With returns ctx carrying logger. A nil ctx or logger is returned as is.
func With(ctx context.Context, logger observability.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, logger)
}

// From returns the logger on ctx, or nil.
func From(ctx context.Context) observability.Logger {
	if ctx == nil {
		return nil
	}
	logger, _ := ctx.Value(ctxKey{}).(observability.Logger)
	return logger
}

func FromOr(ctx context.Context, fallback observability.Logger) observability.Logger {
	if logger := From(ctx); logger != nil {
		return logger
	}
	return fallback
}

// Extend derives a logger from the one on ctx, or from fallback, with fields
// added and stores it on the returned context. Nested use case runs stack
// their fields this way.
func Extend(ctx context.Context, fallback observability.Logger, fields ...observability.Field) (context.Context, observability.Logger) {
	logger := FromOr(ctx, fallback)
	if logger == nil {
		logger = observability.NopLogger()
	}
	if len(fields) > 0 {
		logger = logger.With(fields...)
	}
	return With(ctx, logger), logger
}

// SpanFields returns trace_id and span_id of the span on ctx, or nil when
// ctx has no valid span.
func SpanFields(ctx context.Context) []observability.Field {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []observability.Field{
		observability.F("trace_id", sc.TraceID().String()),
		observability.F("span_id", sc.SpanID().String()),
	}
}
