package application

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Zhima-Mochi/minishop-inventory/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-inventory/internal/domain/shared"
	"github.com/Zhima-Mochi/minishop-inventory/internal/observability"
	"github.com/Zhima-Mochi/minishop-inventory/internal/observability/logctx"
)

const (
	spanPrefix     = "UC."
	publishPeer    = "outbox"
	publishTimeout = 300 * time.Millisecond
)

// Instrumentation carries the RED metrics, tracer and base logger a service
// shares across its use cases. Instruments are resolved once at construction.
type Instrumentation struct {
	log          observability.Logger
	tracer       observability.Tracer
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewInstrumentation(service string, tel observability.Observability) Instrumentation {
	if tel == nil {
		tel = observability.Nop()
	}
	m := tel.Metrics()
	return Instrumentation{
		log:          tel.Logger().With(observability.F("service", service)),
		tracer:       tel.Tracer(),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
	}
}

func (i Instrumentation) Logger() observability.Logger { return i.log }

// Run tracks one execution of a use case from Begin to End.
type Run struct {
	inst       Instrumentation
	useCase    string
	span       trace.Span
	logger     observability.Logger
	start      time.Time
	statusText string
	fields     []observability.Field
	publishErr error
}

// Begin starts the span and the request-scoped logger for a use case. The
// returned context carries both.
func (i Instrumentation) Begin(ctx context.Context, useCase, spanName string, attrs ...attribute.KeyValue) (context.Context, *Run) {
	attrs = append([]attribute.KeyValue{attribute.String("use_case", useCase)}, attrs...)
	ctx, span := i.tracer.Start(ctx, spanPrefix+spanName, attrs...)

	ctx, logger := logctx.Extend(ctx, i.log,
		append([]observability.Field{observability.F("use_case", useCase)}, logctx.SpanFields(ctx)...)...)

	return ctx, &Run{
		inst:       i,
		useCase:    useCase,
		span:       span,
		logger:     logger,
		start:      time.Now(),
		statusText: "OK",
	}
}

func (r *Run) Logger() observability.Logger { return r.logger }

func (r *Run) Span() trace.Span { return r.span }

// Status overrides the status text reported in use_case_done.
func (r *Run) Status(text string) { r.statusText = text }

// Field adds a field to the closing log line.
func (r *Run) Field(k string, v any) { r.fields = append(r.fields, observability.F(k, v)) }

// Publish sends an event through p best-effort. Failures are recorded on the
// span and the closing log line, never returned.
func (r *Run) Publish(ctx context.Context, p outbox.Publisher, e outbox.Event) {
	if p == nil || e == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	start := time.Now()
	outcome := "success"
	err := p.Publish(pubCtx, e)
	switch {
	case err != nil:
		outcome = "error"
	case pubCtx.Err() != nil:
		outcome = "canceled"
		err = pubCtx.Err()
	}
	if err != nil {
		r.publishErr = errors.Join(r.publishErr, err)
		r.span.RecordError(err)
		r.logger.Warn("event_publish_failed",
			observability.F("event", e.EventName()),
			observability.F("error", err.Error()),
		)
	}

	r.inst.extCounter.Add(1,
		observability.L("peer", publishPeer),
		observability.L("endpoint", e.EventName()),
		observability.L("outcome", outcome),
	)
	r.inst.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", publishPeer),
		observability.L("endpoint", e.EventName()),
	)
}

// End closes the span, records RED metrics and writes the use_case_done line.
// Errors signalling a broken invariant are logged at error level.
func (r *Run) End(err error) {
	lat := time.Since(r.start).Seconds()
	outcome := "success"
	if err != nil {
		outcome = "error"
		if r.statusText == "OK" {
			r.statusText = StatusFor(err)
		}
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, r.statusText)
	} else {
		r.span.SetStatus(codes.Ok, r.statusText)
	}
	r.span.End()

	r.inst.reqCounter.Add(1,
		observability.L("use_case", r.useCase),
		observability.L("outcome", outcome),
	)
	r.inst.durHistogram.Observe(lat, observability.L("use_case", r.useCase))

	fields := append([]observability.Field{
		observability.F("outcome", outcome),
		observability.F("status", r.statusText),
		observability.F("latency_seconds", lat),
	}, r.fields...)
	if r.publishErr != nil {
		fields = append(fields, observability.F("event_publish_error", r.publishErr.Error()))
	}
	if err != nil {
		fields = append(fields, observability.F("error", err.Error()))
	}

	if shared.IsInvariantViolation(err) {
		r.logger.Error("use_case_done", fields...)
		return
	}
	r.logger.Info("use_case_done", fields...)
}

// StatusFor maps an error to the status text used in logs and spans.
func StatusFor(err error) string {
	switch {
	case err == nil:
		return "OK"
	case errors.Is(err, shared.ErrValidation):
		return "VALIDATION_FAILED"
	case errors.Is(err, shared.ErrInsufficientStock):
		return "INSUFFICIENT_STOCK"
	case errors.Is(err, shared.ErrNotFound):
		return "NOT_FOUND"
	case shared.IsInvariantViolation(err):
		return "INVARIANT_VIOLATION"
	case errors.Is(err, shared.ErrState):
		return "ILLEGAL_TRANSITION"
	case errors.Is(err, shared.ErrConflict):
		return "CONFLICT"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "CONTEXT_CANCELED"
	default:
		return "INTERNAL"
	}
}
