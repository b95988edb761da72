package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Zhima-Mochi/minishop-inventory/internal/application"
	"github.com/Zhima-Mochi/minishop-inventory/internal/application/cart"
	domain "github.com/Zhima-Mochi/minishop-inventory/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-inventory/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/minishop-inventory/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-inventory/internal/domain/shared"
	"github.com/Zhima-Mochi/minishop-inventory/internal/observability"
	"github.com/Zhima-Mochi/minishop-inventory/internal/pkg/keylock"
)

const (
	orderService = "order-service"

	useCaseCreate         = "order.create"
	useCasePaymentSuccess = "order.payment_succeeded"
	useCasePaymentFailure = "order.payment_failed"
	useCaseCancel         = "order.cancel"
	useCaseRefund         = "order.refund"
	useCaseAdvance        = "order.advance"

	defaultCancelReason = "cancelled by customer"
	restockReasonCancel = "order_cancelled"
	restockReasonRefund = "payment_refunded"
)

var ErrRepository = errors.New("order: repository failure")

// Pricing holds the flat shipping and tax amounts added to every order.
type Pricing struct {
	Shipping decimal.Decimal
	Tax      decimal.Decimal
}

// Lifecycle drives orders through their states and keeps stock and payment
// in step with each transition. Work on one order id is serialized.
type Lifecycle struct {
	repo      domain.Repository
	validator CartValidator
	inventory InventoryPort
	payments  PaymentPort
	ids       IDGenerator
	publisher domoutbox.Publisher
	pricing   Pricing
	locks     *keylock.Locker
	inst      application.Instrumentation
}

func NewLifecycle(
	repo domain.Repository,
	validator CartValidator,
	inventory InventoryPort,
	ids IDGenerator,
	publisher domoutbox.Publisher,
	pricing Pricing,
	tel observability.Observability,
) *Lifecycle {
	return &Lifecycle{
		repo:      repo,
		validator: validator,
		inventory: inventory,
		ids:       ids,
		publisher: publisher,
		pricing:   pricing,
		locks:     keylock.New(),
		inst:      application.NewInstrumentation(orderService, tel),
	}
}

// SetPaymentPort completes wiring; payments and orders refer to each other.
func (l *Lifecycle) SetPaymentPort(p PaymentPort) { l.payments = p }

type CreateOrderInput struct {
	IdempotencyKey string
	CustomerID     string
	// CartHolderID names the holder of the customer's cart holds. Matching
	// active holds are handed over to the order.
	CartHolderID  string
	Lines         []cart.Line
	Address       domain.Address
	PaymentMethod dompay.Method
}

type CreateOrderResult struct {
	Order    *domain.Order
	Payment  *dompay.Payment
	Warnings []cart.Issue
	Replayed bool
}

// Create validates the cart, reserves every line and persists a PENDING
// order with its payment. Nothing is persisted when a reservation fails.
func (l *Lifecycle) Create(ctx context.Context, cmd CreateOrderInput) (_ *CreateOrderResult, err error) {
	ctx, run := l.inst.Begin(ctx, useCaseCreate, "CreateOrder",
		attribute.String("order.customer_id", cmd.CustomerID),
		attribute.String("payment.method", string(cmd.PaymentMethod)),
		attribute.Int("order.lines", len(cmd.Lines)),
	)
	defer func() { run.End(err) }()

	if cmd.CustomerID == "" {
		return nil, shared.NewValidationError("customerId", "is required")
	}
	if len(cmd.Lines) == 0 {
		return nil, domain.ErrNoLines
	}
	if !cmd.PaymentMethod.Valid() {
		return nil, shared.NewValidationError("paymentMethod", fmt.Sprintf("unsupported method %q", cmd.PaymentMethod))
	}
	if err := cmd.Address.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cmd.IdempotencyKey != "" {
		existing, rerr := l.repo.FindByIdempotency(ctx, cmd.CustomerID, cmd.IdempotencyKey)
		switch {
		case rerr == nil:
			l.replayed(run, existing)
			return &CreateOrderResult{Order: existing, Replayed: true}, nil
		case errors.Is(rerr, shared.ErrNotFound):
		default:
			return nil, wrapRepositoryError(rerr)
		}
	}

	var held map[string]int
	if cmd.CartHolderID != "" {
		run.Field("cart_holder_id", cmd.CartHolderID)
		if held, err = l.inventory.HeldByCart(ctx, cmd.CartHolderID); err != nil {
			return nil, err
		}
	}
	checked, err := l.validator.ValidateWithHolds(ctx, cmd.Lines, held)
	if err != nil {
		return nil, err
	}
	if !checked.IsValid {
		return nil, cartError(cmd.Lines, checked)
	}

	orderID := l.ids.NewID()
	run.Field("order_id", orderID)
	run.Span().SetAttributes(attribute.String("order.id", orderID))

	lines := make([]domain.Line, 0, len(checked.CorrectedLines))
	for _, cl := range checked.CorrectedLines {
		lines = append(lines, domain.Line{ProductID: cl.ProductID, Quantity: cl.Quantity, UnitPrice: cl.UnitPrice})
	}
	entity, err := domain.New(orderID, cmd.CustomerID, cmd.IdempotencyKey, lines, cmd.Address,
		cmd.PaymentMethod, l.pricing.Shipping, l.pricing.Tax, cmd.CustomerID)
	if err != nil {
		return nil, err
	}

	holds, err := l.inventory.ReserveCheckout(ctx, orderID, cmd.CartHolderID, entity.StockLines())
	if err != nil {
		return nil, err
	}
	for i, h := range holds {
		entity.Lines[i].ReservationID = h.ID
	}

	pay, err := l.payments.Initiate(ctx, orderID, entity.Total, cmd.PaymentMethod)
	if err != nil {
		l.releaseQuietly(ctx, run, entity)
		return nil, fmt.Errorf("order: initiate payment: %w", err)
	}
	entity.PaymentID = pay.ID

	if err := l.repo.Insert(ctx, entity); err != nil {
		l.releaseQuietly(ctx, run, entity)
		if _, verr := l.payments.Void(ctx, pay.ID, "order not persisted"); verr != nil {
			run.Logger().Warn("payment_void_failed",
				observability.F("payment_id", pay.ID),
				observability.F("error", verr.Error()),
			)
		}
		if errors.Is(err, shared.ErrConflict) && cmd.IdempotencyKey != "" {
			if existing, lerr := l.repo.FindByIdempotency(ctx, cmd.CustomerID, cmd.IdempotencyKey); lerr == nil {
				l.replayed(run, existing)
				return &CreateOrderResult{Order: existing, Replayed: true}, nil
			}
		}
		return nil, wrapRepositoryError(err)
	}

	run.Publish(ctx, l.publisher, domain.NewOrderCreatedEvent(entity))
	run.Span().AddEvent("order.created", trace.WithAttributes(attribute.String("order.id", orderID)))

	result := &CreateOrderResult{Order: entity, Payment: pay, Warnings: checked.Warnings}
	if cmd.PaymentMethod.Online() {
		submitted, serr := l.payments.Submit(ctx, pay.ID)
		if serr != nil {
			run.Status("PAYMENT_SUBMIT_FAILED")
			run.Logger().Warn("payment_submit_failed",
				observability.F("payment_id", pay.ID),
				observability.F("error", serr.Error()),
			)
		}
		if submitted != nil {
			result.Payment = submitted
		}
		if current, gerr := l.repo.Get(ctx, orderID); gerr == nil {
			result.Order = current
		}
	}
	run.Span().SetAttributes(attribute.String("order.status", string(result.Order.Status)))
	return result, nil
}

// OnPaymentSuccess confirms every reserved line and moves the order to PAID.
// When a confirmation fails the order stays PENDING, is flagged for review
// and the error is returned.
func (l *Lifecycle) OnPaymentSuccess(ctx context.Context, orderID, actor string) (_ *domain.Order, err error) {
	ctx, run := l.inst.Begin(ctx, useCasePaymentSuccess, "OnPaymentSuccess", attribute.String("order.id", orderID))
	defer func() { run.End(err) }()
	run.Field("order_id", orderID)

	unlock := l.locks.Lock(orderID)
	defer unlock()

	o, err := l.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	switch o.Status {
	case domain.StatusCancelled:
		return o, domain.ErrAlreadyCancelled
	case domain.StatusPaid, domain.StatusShipped, domain.StatusDelivered:
		if !o.IsCOD() {
			run.Status("ALREADY_PAID")
			return o, nil
		}
	}

	next := o.Clone()
	if err := next.MarkPaid(actor); err != nil {
		return nil, err
	}

	if err := l.inventory.ConfirmAll(ctx, o.ReservationIDs()); err != nil {
		o.FlagForReview("stock confirmation failed: " + err.Error())
		if uerr := l.repo.Update(ctx, o); uerr != nil {
			run.Logger().Error("order_review_flag_failed", observability.F("error", uerr.Error()))
		} else {
			run.Publish(ctx, l.publisher, domain.NewOrderReviewRequiredEvent(o))
		}
		run.Status("REVIEW_REQUIRED")
		return o, err
	}
	next.SetStockConfirmed(true)

	if err := l.repo.Update(ctx, next); err != nil {
		if uerr := l.inventory.UnconfirmAll(ctx, o.ReservationIDs()); uerr != nil {
			run.Logger().Error("confirm_compensation_failed", observability.F("error", uerr.Error()))
		}
		return nil, wrapRepositoryError(err)
	}
	run.Publish(ctx, l.publisher, domain.NewOrderStatusChangedEvent(next))
	return next, nil
}

// OnPaymentFailure releases the reservations and cancels the order.
func (l *Lifecycle) OnPaymentFailure(ctx context.Context, orderID, reason, actor string) (_ *domain.Order, err error) {
	ctx, run := l.inst.Begin(ctx, useCasePaymentFailure, "OnPaymentFailure", attribute.String("order.id", orderID))
	defer func() { run.End(err) }()
	run.Field("order_id", orderID)

	unlock := l.locks.Lock(orderID)
	defer unlock()

	o, err := l.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status == domain.StatusCancelled {
		run.Status("ALREADY_CANCELLED")
		return o, nil
	}
	if reason == "" {
		reason = "payment declined"
	}
	if err := o.MarkPaymentFailed(reason, actor); err != nil {
		return nil, err
	}
	if err := l.inventory.ReleaseAll(ctx, o.ReservationIDs()); err != nil {
		return nil, err
	}
	if err := l.repo.Update(ctx, o); err != nil {
		return nil, wrapRepositoryError(err)
	}
	run.Publish(ctx, l.publisher, domain.NewOrderStatusChangedEvent(o))
	return o, nil
}

// Cancel cancels a PENDING or PAID order. Reserved stock is released; stock
// of a paid order is restocked and its payment refunded, both or neither.
// Both steps are keyed on the order's holds and payment, so retrying after a
// failed save neither restocks nor refunds twice.
func (l *Lifecycle) Cancel(ctx context.Context, orderID, reason, actor string) (_ *domain.Order, err error) {
	ctx, run := l.inst.Begin(ctx, useCaseCancel, "CancelOrder", attribute.String("order.id", orderID))
	defer func() { run.End(err) }()
	run.Field("order_id", orderID)

	if reason == "" {
		reason = defaultCancelReason
	}

	unlock := l.locks.Lock(orderID)
	defer unlock()

	o, err := l.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.CanCancel() {
		return nil, o.Cancel(reason, actor, false)
	}

	switch o.Status {
	case domain.StatusPending:
		refunded := false
		if o.PaymentID != "" {
			pay, verr := l.payments.Void(ctx, o.PaymentID, reason)
			if verr != nil {
				return nil, fmt.Errorf("order: void payment: %w", verr)
			}
			refunded = pay.Status == dompay.StatusRefunded
		}
		if err := l.inventory.ReleaseAll(ctx, o.ReservationIDs()); err != nil {
			return nil, err
		}
		if err := o.Cancel(reason, actor, refunded); err != nil {
			return nil, err
		}

	case domain.StatusPaid:
		holds := o.ReservationIDs()
		if err := l.inventory.RestockAll(ctx, holds, restockReasonCancel); err != nil {
			return nil, err
		}
		if _, rerr := l.payments.RefundForOrder(ctx, o.ID, reason); rerr != nil {
			l.rollbackRestock(ctx, run, holds)
			return nil, fmt.Errorf("order: refund payment: %w", rerr)
		}
		if err := o.Cancel(reason, actor, true); err != nil {
			return nil, err
		}
	}

	if err := l.repo.Update(ctx, o); err != nil {
		run.Logger().Error("order_update_after_side_effects_failed",
			observability.F("order_id", o.ID),
			observability.F("error", err.Error()),
		)
		return nil, wrapRepositoryError(err)
	}
	run.Publish(ctx, l.publisher, domain.NewOrderStatusChangedEvent(o))
	return o, nil
}

// ApplyRefund reverses the stock of an order whose payment is being refunded
// and cancels it. commit persists the refunded payment; it runs after the
// stock reversal and a failed commit rolls the reversal back.
func (l *Lifecycle) ApplyRefund(ctx context.Context, orderID, reason, actor string, commit func(context.Context) error) (_ *domain.Order, err error) {
	ctx, run := l.inst.Begin(ctx, useCaseRefund, "ApplyRefund", attribute.String("order.id", orderID))
	defer func() { run.End(err) }()
	run.Field("order_id", orderID)

	unlock := l.locks.Lock(orderID)
	defer unlock()

	o, err := l.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := o.CheckRefundable(); err != nil {
		return nil, err
	}

	switch o.Status {
	case domain.StatusCancelled:
		run.Status("ALREADY_CANCELLED")
		if err := commit(ctx); err != nil {
			return nil, err
		}
		return o, nil

	case domain.StatusPaid:
		holds := o.ReservationIDs()
		if err := l.inventory.RestockAll(ctx, holds, restockReasonRefund); err != nil {
			return nil, err
		}
		if err := commit(ctx); err != nil {
			l.rollbackRestock(ctx, run, holds)
			return nil, err
		}

	case domain.StatusPending:
		if err := commit(ctx); err != nil {
			return nil, err
		}
		if err := l.inventory.ReleaseAll(ctx, o.ReservationIDs()); err != nil {
			return nil, err
		}
	}

	if err := o.Cancel(reason, actor, true); err != nil {
		return nil, err
	}
	if err := l.repo.Update(ctx, o); err != nil {
		run.Logger().Error("order_update_after_side_effects_failed",
			observability.F("order_id", o.ID),
			observability.F("error", err.Error()),
		)
		return nil, wrapRepositoryError(err)
	}
	run.Publish(ctx, l.publisher, domain.NewOrderStatusChangedEvent(o))
	return o, nil
}

// Advance applies the administrative SHIPPED and DELIVERED transitions.
// Cash-on-delivery orders confirm their stock and settle their payment on
// delivery.
func (l *Lifecycle) Advance(ctx context.Context, orderID string, next domain.Status, actor, note string) (_ *domain.Order, err error) {
	ctx, run := l.inst.Begin(ctx, useCaseAdvance, "AdvanceOrder",
		attribute.String("order.id", orderID),
		attribute.String("order.next_status", string(next)),
	)
	defer func() { run.End(err) }()
	run.Field("order_id", orderID)

	unlock := l.locks.Lock(orderID)
	defer unlock()

	o, err := l.load(ctx, orderID)
	if err != nil {
		return nil, err
	}

	confirmed := false
	switch next {
	case domain.StatusShipped:
		if err := o.Ship(actor, noteOr(note, "shipped")); err != nil {
			return nil, err
		}
	case domain.StatusDelivered:
		if o.Status == domain.StatusShipped && o.IsCOD() && !o.StockConfirmed() {
			if err := l.inventory.ConfirmAll(ctx, o.ReservationIDs()); err != nil {
				o.FlagForReview("stock confirmation failed: " + err.Error())
				if uerr := l.repo.Update(ctx, o); uerr == nil {
					run.Publish(ctx, l.publisher, domain.NewOrderReviewRequiredEvent(o))
				}
				run.Status("REVIEW_REQUIRED")
				return nil, err
			}
			o.SetStockConfirmed(true)
			confirmed = true
		}
		if err := o.Deliver(actor, noteOr(note, "delivered")); err != nil {
			return nil, err
		}
	default:
		return nil, shared.NewValidationError("status", fmt.Sprintf("cannot advance to %q", next))
	}

	if err := l.repo.Update(ctx, o); err != nil {
		if confirmed {
			if uerr := l.inventory.UnconfirmAll(ctx, o.ReservationIDs()); uerr != nil {
				run.Logger().Error("confirm_compensation_failed", observability.F("error", uerr.Error()))
			}
		}
		return nil, wrapRepositoryError(err)
	}
	run.Publish(ctx, l.publisher, domain.NewOrderStatusChangedEvent(o))

	if o.Status == domain.StatusDelivered && o.IsCOD() {
		if _, serr := l.payments.SettleCOD(ctx, o.ID); serr != nil {
			run.Status("SETTLEMENT_FAILED")
			run.Logger().Error("cod_settlement_failed",
				observability.F("order_id", o.ID),
				observability.F("error", serr.Error()),
			)
		}
	}
	return o, nil
}

func (l *Lifecycle) Get(ctx context.Context, id string) (*domain.Order, error) {
	return l.load(ctx, id)
}

func (l *Lifecycle) load(ctx context.Context, id string) (*domain.Order, error) {
	if id == "" {
		return nil, shared.NewValidationError("orderId", "is required")
	}
	o, err := l.repo.Get(ctx, id)
	if err != nil {
		return nil, wrapRepositoryError(err)
	}
	return o, nil
}

func (l *Lifecycle) replayed(run *application.Run, existing *domain.Order) {
	run.Status("IDEMPOTENT_REPLAY")
	run.Field("order_id", existing.ID)
	run.Span().AddEvent("order.idempotent_replay",
		trace.WithAttributes(attribute.String("order.id", existing.ID)),
	)
}

func (l *Lifecycle) releaseQuietly(ctx context.Context, run *application.Run, o *domain.Order) {
	if err := l.inventory.ReleaseAll(ctx, o.ReservationIDs()); err != nil {
		run.Logger().Error("reservation_compensation_failed",
			observability.F("order_id", o.ID),
			observability.F("error", err.Error()),
		)
	}
}

func (l *Lifecycle) rollbackRestock(ctx context.Context, run *application.Run, reservationIDs []string) {
	if err := l.inventory.RollbackRestockAll(ctx, reservationIDs); err != nil {
		run.Status("ROLLBACK_INCOMPLETE")
		run.Logger().Error("restock_rollback_failed", observability.F("error", err.Error()))
	}
}

// cartError turns a failed cart check into the error the caller sees. A cart
// that only lacks stock reports the first short product.
func cartError(lines []cart.Line, res *cart.Result) error {
	if res.StockIssuesOnly() {
		issue := res.Errors[0]
		requested := 0
		for _, l := range lines {
			if l.ProductID == issue.ProductID {
				requested += l.Quantity
			}
		}
		return &shared.InsufficientStockError{ProductID: issue.ProductID, Requested: requested, Available: issue.Available}
	}
	msgs := make([]string, 0, len(res.Errors))
	for _, e := range res.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", e.ProductID, e.Code))
	}
	return shared.NewValidationError("lines", strings.Join(msgs, "; "))
}

func noteOr(note, fallback string) string {
	if note == "" {
		return fallback
	}
	return note
}

func wrapRepositoryError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrConflict):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
}
