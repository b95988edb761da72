package logctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/Zhima-Mochi/minishop-inventory/internal/observability"
	"github.com/Zhima-Mochi/minishop-inventory/internal/observability/obstest"
)

func TestFromOr(t *testing.T) {
	fallback := observability.NopLogger()
	assert.Equal(t, fallback, FromOr(context.Background(), fallback))

	rec := obstest.New()
	scoped := rec.Logger().With(observability.F("request_id", "req-1"))
	ctx := With(context.Background(), scoped)
	FromOr(ctx, fallback).Info("hello")

	entries := rec.Entries("hello")
	assert.Len(t, entries, 1)
	assert.Nil(t, From(context.Background()))
	assert.Equal(t, context.Background(), With(context.Background(), nil))
}

func TestExtendStacksFields(t *testing.T) {
	rec := obstest.New()
	ctx := With(context.Background(), rec.Logger().With(observability.F("request_id", "req-1")))

	ctx, outer := Extend(ctx, nil, observability.F("use_case", "order.create"))
	_, inner := Extend(ctx, nil, observability.F("use_case", "stock.reserve_checkout"))
	outer.Info("outer")
	inner.Info("inner")

	entries := rec.Entries("inner")
	require.Len(t, entries, 1)
	assert.Equal(t, "req-1", entries[0].Fields["request_id"])
	assert.Equal(t, "stock.reserve_checkout", entries[0].Fields["use_case"])
	assert.Equal(t, "order.create", rec.Entries("outer")[0].Fields["use_case"])

	_, fallback := Extend(context.Background(), nil)
	assert.NotNil(t, fallback)
}

func TestSpanFields(t *testing.T) {
	assert.Nil(t, SpanFields(context.Background()))

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1},
		SpanID:  trace.SpanID{2},
	})
	fields := SpanFields(trace.ContextWithSpanContext(context.Background(), sc))
	require.Len(t, fields, 2)
	assert.Equal(t, observability.F("trace_id", sc.TraceID().String()), fields[0])
	assert.Equal(t, observability.F("span_id", sc.SpanID().String()), fields[1])
}
