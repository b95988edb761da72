package workerpresentation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	domoutbox "github.com/Zhima-Mochi/minishop-inventory/internal/domain/outbox"
	dompayment "github.com/Zhima-Mochi/minishop-inventory/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-inventory/internal/observability/logctx"
	"github.com/Zhima-Mochi/minishop-inventory/internal/observability/obstest"
)

type captureSubscriber struct {
	handlers map[string]domoutbox.Handler
}

func (c *captureSubscriber) Subscribe(name string, h domoutbox.Handler) {
	if c.handlers == nil {
		c.handlers = map[string]domoutbox.Handler{}
	}
	c.handlers[name] = h
}

func TestSubscriberInjectsEventLogger(t *testing.T) {
	rec := obstest.New()
	inner := &captureSubscriber{}
	sub := NewSubscriber(inner, "payment_worker", rec)

	evt := dompayment.GatewayResultEvent{EventID: "evt-1", PaymentID: "pay-1"}
	sub.Subscribe(evt.EventName(), func(ctx context.Context, _ domoutbox.Event) error {
		logger := logctx.From(ctx)
		require.NotNil(t, logger)
		logger.Info("handled")
		return nil
	})

	h := inner.handlers[evt.EventName()]
	require.NotNil(t, h)
	require.NoError(t, h(context.Background(), evt))

	entries := rec.Entries("handled")
	require.Len(t, entries, 1)
	fields := entries[0].Fields
	assert.Equal(t, "evt-1", fields["event_id"])
	assert.Equal(t, "pay-1", fields["aggregate_id"])
	assert.Equal(t, "payment_worker", fields["worker"])
	assert.Equal(t, "payment.gateway_result", fields["event"])
	assert.NotContains(t, fields, "trace_id")
}

func TestWithEventContextGeneratesIDAndTrace(t *testing.T) {
	rec := obstest.New()
	traceID := trace.TraceID{1, 2, 3}
	spanID := trace.SpanID{4, 5, 6}

	ctx := WithEventContext(context.Background(), nil, rec, traceID, spanID, nil)
	logctx.From(ctx).Info("tick")

	entries := rec.Entries("tick")
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].Fields["event_id"])
	assert.Equal(t, traceID.String(), entries[0].Fields["trace_id"])
	assert.Equal(t, spanID.String(), entries[0].Fields["span_id"])
}
