package inventory

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Zhima-Mochi/minishop-inventory/internal/application"
	dominv "github.com/Zhima-Mochi/minishop-inventory/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/minishop-inventory/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-inventory/internal/observability"
)

const (
	workerService     = "inventory_worker"
	useCaseLowStock   = "inventory.worker.low_stock"
	ignoredEventState = "IGNORED"
)

// Worker reacts to inventory events. Low stock is flagged for reorder
// through a counter and a warning; reorder automation is out of scope.
type Worker struct {
	subscriber domoutbox.Subscriber
	inst       application.Instrumentation
	lowStock   observability.Counter // stock_low_total{product_id}
}

func NewWorker(subscriber domoutbox.Subscriber, tel observability.Observability) *Worker {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Worker{
		subscriber: subscriber,
		inst:       application.NewInstrumentation(workerService, tel),
		lowStock:   tel.Metrics().Counter(observability.MStockLow),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil {
		return
	}
	w.subscriber.Subscribe(dominv.LowStockEvent{}.EventName(), w.handleLowStock)
}

func (w *Worker) handleLowStock(ctx context.Context, e domoutbox.Event) (err error) {
	ctx, run := w.inst.Begin(ctx, useCaseLowStock, "LowStock", attribute.String("event", e.EventName()))
	defer func() { run.End(err) }()

	evt, ok := e.(dominv.LowStockEvent)
	if !ok {
		run.Status(ignoredEventState)
		return nil
	}
	run.Field("product_id", evt.ProductID)

	w.lowStock.Add(1, observability.L("product_id", evt.ProductID))
	run.Logger().Warn("stock_below_reorder_level",
		observability.F("product_id", evt.ProductID),
		observability.F("on_hand", evt.OnHand),
		observability.F("reorder_level", evt.ReorderLevel),
	)
	return nil
}
