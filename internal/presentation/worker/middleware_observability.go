package workerpresentation

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	domoutbox "github.com/Zhima-Mochi/minishop-inventory/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-inventory/internal/observability"
	"github.com/Zhima-Mochi/minishop-inventory/internal/observability/logctx"
)

// WithEventContext injects a request-scoped logger for background/worker executions.
// Dynamic fields only: trace_id/span_id (if valid), event_id (generated if empty),
// plus caller-provided low-cardinality attributes (e.g. "worker", "event").
func WithEventContext(
	ctx context.Context,
	base observability.Logger,
	tel observability.Observability,
	traceID trace.TraceID,
	spanID trace.SpanID,
	attrs map[string]string,
) context.Context {
	if base == nil {
		if tel == nil {
			tel = observability.Nop()
		}
		base = tel.Logger()
	}

	fields := make([]observability.Field, 0, len(attrs)+3)

	evtID := attrs["event_id"]
	if evtID == "" {
		evtID = uuid.NewString()
	}
	fields = append(fields, observability.F("event_id", evtID))

	if traceID.IsValid() {
		fields = append(fields, observability.F("trace_id", traceID.String()))
	}
	if spanID.IsValid() {
		fields = append(fields, observability.F("span_id", spanID.String()))
	}
	for k, v := range attrs {
		if k == "event_id" || v == "" {
			continue
		}
		fields = append(fields, observability.F(k, v))
	}

	return logctx.With(ctx, base.With(fields...))
}

type eventIdentified interface {
	EventIdentifier() string
}

// Subscriber decorates a domoutbox.Subscriber so every handler it registers
// runs with an event-scoped logger on its context.
type Subscriber struct {
	next   domoutbox.Subscriber
	worker string
	base   observability.Logger
	tel    observability.Observability
}

func NewSubscriber(next domoutbox.Subscriber, worker string, tel observability.Observability) *Subscriber {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Subscriber{next: next, worker: worker, base: tel.Logger(), tel: tel}
}

func (s *Subscriber) Subscribe(eventName string, h domoutbox.Handler) {
	s.next.Subscribe(eventName, func(ctx context.Context, e domoutbox.Event) error {
		attrs := map[string]string{"worker": s.worker, "event": e.EventName()}
		if id, ok := e.(eventIdentified); ok {
			attrs["event_id"] = id.EventIdentifier()
		}
		if k, ok := e.(domoutbox.Keyed); ok {
			attrs["aggregate_id"] = k.AggregateID()
		}
		sc := trace.SpanContextFromContext(ctx)
		return h(WithEventContext(ctx, s.base, s.tel, sc.TraceID(), sc.SpanID(), attrs), e)
	})
}
