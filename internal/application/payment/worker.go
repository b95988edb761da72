package payment

import (
	"context"

	domoutbox "github.com/Zhima-Mochi/minishop-inventory/internal/domain/outbox"
	domain "github.com/Zhima-Mochi/minishop-inventory/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-inventory/internal/observability"
	"github.com/Zhima-Mochi/minishop-inventory/internal/observability/logctx"
)

const paymentWorker = "payment_worker"

// ResultRecorder applies one gateway result. Lifecycle implements it through
// Execute.
type ResultRecorder interface {
	Execute(ctx context.Context, cmd RecordResultInput) (*RecordResultOutput, error)
}

// Worker feeds asynchronous gateway results into the record-result use case.
type Worker struct {
	subscriber domoutbox.Subscriber
	useCase    ResultRecorder
	log        observability.Logger
}

func NewWorker(
	subscriber domoutbox.Subscriber,
	useCase ResultRecorder,
	tel observability.Observability,
) *Worker {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Worker{
		subscriber: subscriber,
		useCase:    useCase,
		log:        tel.Logger().With(observability.F("service", paymentWorker)),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.useCase == nil {
		return
	}
	w.subscriber.Subscribe(domain.GatewayResultEvent{}.EventName(), w.handleGatewayResult)
}

func (w *Worker) handleGatewayResult(ctx context.Context, e domoutbox.Event) error {
	logger := logctx.FromOr(ctx, w.log).With(observability.F("event", e.EventName()))

	evt, ok := e.(domain.GatewayResultEvent)
	if !ok {
		return nil
	}

	out, err := w.useCase.Execute(ctx, RecordResultInput{
		PaymentID:  evt.PaymentID,
		EventID:    evt.EventID,
		GatewayRef: evt.GatewayRef,
		Success:    evt.Success,
		Reason:     evt.Reason,
	})
	if err != nil {
		logger.Warn("gateway_result_failed",
			observability.F("payment_id", evt.PaymentID),
			observability.F("error", err.Error()),
		)
		return err
	}

	fields := []observability.Field{
		observability.F("payment_id", evt.PaymentID),
		observability.F("payment_status", string(out.Payment.Status)),
		observability.F("duplicate", out.Duplicate),
	}
	if out.Order != nil {
		fields = append(fields, observability.F("order_status", string(out.Order.Status)))
	}
	logger.Info("gateway_result_processed", fields...)
	return nil
}
