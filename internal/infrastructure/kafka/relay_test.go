package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	dominv "github.com/Zhima-Mochi/minishop-inventory/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-inventory/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-inventory/internal/observability"
	"github.com/Zhima-Mochi/minishop-inventory/internal/observability/obstest"
)

type fakeProducer struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (p *fakeProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func (p *fakeProducer) messages() []kafka.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]kafka.Message(nil), p.msgs...)
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestRelayForwardsBusEvents(t *testing.T) {
	producer := &fakeProducer{}
	rec := obstest.New()
	relay := NewRelay(producer, "minishop.events", rec)

	bus := outbox.NewBus(nil, outbox.Options{})
	relay.Attach(bus)
	bus.Start(context.Background())

	event := dominv.StockReservedEvent{
		ReservationID: "res-1",
		ProductID:     "sku-1",
		HolderID:      "cart-1",
		Reason:        dominv.ReasonCart,
		Quantity:      2,
		Available:     8,
		OccurredAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, bus.Publish(context.Background(), event))
	bus.Stop(context.Background())

	msgs := producer.messages()
	require.Len(t, msgs, 1)
	msg := msgs[0]
	assert.Equal(t, "minishop.events", msg.Topic)
	assert.Equal(t, "sku-1", string(msg.Key))
	assert.Equal(t, "inventory.reserved", header(msg, HeaderEventName))

	var env Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, "inventory.reserved", env.Name)
	assert.Equal(t, "sku-1", env.Key)

	var payload dominv.StockReservedEvent
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, event, payload)

	assert.Equal(t, 1.0, rec.Count(observability.MExternalRequests, "peer=kafka,endpoint=inventory.reserved,outcome=success"))
}

func TestRelayReportsWriteFailures(t *testing.T) {
	producer := &fakeProducer{err: errors.New("broker down")}
	rec := obstest.New()
	relay := NewRelay(producer, "minishop.events", rec)

	err := relay.Forward(context.Background(), dominv.StockReleasedEvent{ProductID: "sku-1", Quantity: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Equal(t, 1.0, rec.Count(observability.MExternalRequests, "peer=kafka,endpoint=inventory.released,outcome=error"))
	assert.Len(t, rec.Entries("event_relay_failed"), 1)
}

func TestTraceContextRoundTrip(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	producer := &fakeProducer{}
	relay := NewRelay(producer, "minishop.events", nil)
	require.NoError(t, relay.Forward(ctx, dominv.StockReleasedEvent{ProductID: "sku-1", Quantity: 1}))

	msgs := producer.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", header(msgs[0], "traceparent"))

	restored := trace.SpanContextFromContext(ExtractHeaders(context.Background(), msgs[0].Headers))
	assert.Equal(t, traceID, restored.TraceID())
	assert.True(t, restored.IsRemote())
}
