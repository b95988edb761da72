package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Zhima-Mochi/minishop-inventory/internal/application"
	domorder "github.com/Zhima-Mochi/minishop-inventory/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-inventory/internal/domain/outbox"
	domain "github.com/Zhima-Mochi/minishop-inventory/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-inventory/internal/domain/shared"
	"github.com/Zhima-Mochi/minishop-inventory/internal/observability"
	"github.com/Zhima-Mochi/minishop-inventory/internal/pkg/keylock"
)

const (
	paymentService = "payment-service"

	useCaseInitiate       = "payment.initiate"
	useCaseSubmit         = "payment.submit"
	useCaseRecordResult   = "payment.record_result"
	useCaseRefund         = "payment.refund"
	useCaseRefundForOrder = "payment.refund_for_order"
	useCaseVoid           = "payment.void"
	useCaseSettleCOD      = "payment.settle_cod"

	gatewayActor        = "payment-gateway"
	eventKeyPrefix      = "payment:event:"
	reasonDeclined      = "payment declined"
	reasonLateSuccess   = "order cancelled before payment completed"
	failurePrefixCancel = "order cancelled: "
)

var ErrRepository = errors.New("payment: repository failure")

// Lifecycle owns payment records. It never holds a payment lock while
// calling into the order lifecycle; orders call payments under their own
// lock, so locks are always taken order first.
type Lifecycle struct {
	repo      domain.Repository
	gateway   domain.Gateway
	orders    OrderPort
	idem      IdempotencyStore
	ids       IDGenerator
	publisher domoutbox.Publisher
	locks     *keylock.Locker
	inst      application.Instrumentation
	now       func() time.Time
}

func NewLifecycle(
	repo domain.Repository,
	gateway domain.Gateway,
	idem IdempotencyStore,
	ids IDGenerator,
	publisher domoutbox.Publisher,
	tel observability.Observability,
) *Lifecycle {
	return &Lifecycle{
		repo:      repo,
		gateway:   gateway,
		idem:      idem,
		ids:       ids,
		publisher: publisher,
		locks:     keylock.New(),
		inst:      application.NewInstrumentation(paymentService, tel),
		now:       time.Now,
	}
}

// SetOrderPort completes wiring; payments and orders refer to each other.
func (l *Lifecycle) SetOrderPort(orders OrderPort) { l.orders = orders }

// Initiate records the payment of a new order.
func (l *Lifecycle) Initiate(ctx context.Context, orderID string, amount decimal.Decimal, method domain.Method) (_ *domain.Payment, err error) {
	ctx, run := l.inst.Begin(ctx, useCaseInitiate, "InitiatePayment",
		attribute.String("order.id", orderID),
		attribute.String("payment.method", string(method)),
	)
	defer func() { run.End(err) }()

	p, err := domain.New(l.ids.NewID(), orderID, amount, method)
	if err != nil {
		return nil, err
	}
	if err := l.repo.Insert(ctx, p); err != nil {
		return nil, wrapRepositoryError(err)
	}
	run.Field("payment_id", p.ID)
	run.Publish(ctx, l.publisher, domain.NewStatusChangedEvent(p))
	return p, nil
}

// Submit hands an online payment to the gateway. The outcome arrives later
// through RecordResult. A gateway error fails the payment and the order.
func (l *Lifecycle) Submit(ctx context.Context, paymentID string) (_ *domain.Payment, err error) {
	ctx, run := l.inst.Begin(ctx, useCaseSubmit, "SubmitPayment", attribute.String("payment.id", paymentID))
	defer func() { run.End(err) }()
	run.Field("payment_id", paymentID)

	var gatewayErr error
	p, err := l.withPayment(ctx, run, paymentID, func(p *domain.Payment) (bool, error) {
		if !p.Method.Online() {
			return false, shared.NewValidationError("paymentMethod", "only online payments are submitted to the gateway")
		}
		if p.Status != domain.StatusInitiated {
			return false, nil
		}
		ref, serr := l.gateway.Submit(ctx, p.Clone())
		if serr != nil {
			gatewayErr = serr
			return true, p.MarkFailed("gateway error: "+serr.Error(), "")
		}
		return true, p.MarkSubmitted(ref)
	})
	if err != nil {
		return nil, err
	}
	if gatewayErr != nil {
		if _, oerr := l.orders.OnPaymentFailure(ctx, p.OrderID, p.FailureReason, gatewayActor); oerr != nil {
			run.Logger().Error("order_payment_failure_not_applied",
				observability.F("order_id", p.OrderID),
				observability.F("error", oerr.Error()),
			)
		}
		return p, fmt.Errorf("payment: submit to gateway: %w", gatewayErr)
	}
	return p, nil
}

type RecordResultInput struct {
	PaymentID  string
	EventID    string
	GatewayRef string
	Success    bool
	Reason     string
	Actor      string
}

type RecordResultOutput struct {
	Payment   *domain.Payment
	Order     *domorder.Order
	Duplicate bool
}

// Execute lets the lifecycle serve as the gateway-result use case.
func (l *Lifecycle) Execute(ctx context.Context, cmd RecordResultInput) (*RecordResultOutput, error) {
	return l.RecordResult(ctx, cmd)
}

// RecordResult applies a gateway outcome to the payment and then to its
// order. Events already seen are acknowledged without side effects.
func (l *Lifecycle) RecordResult(ctx context.Context, cmd RecordResultInput) (_ *RecordResultOutput, err error) {
	ctx, run := l.inst.Begin(ctx, useCaseRecordResult, "RecordPaymentResult",
		attribute.String("payment.id", cmd.PaymentID),
		attribute.Bool("payment.success", cmd.Success),
	)
	defer func() { run.End(err) }()
	run.Field("payment_id", cmd.PaymentID)
	run.Field("success", cmd.Success)

	if cmd.PaymentID == "" {
		return nil, shared.NewValidationError("paymentId", "is required")
	}
	actor := cmd.Actor
	if actor == "" {
		actor = gatewayActor
	}

	if cmd.EventID != "" && l.idem != nil {
		key := eventKeyPrefix + cmd.EventID
		first, ierr := l.idem.MarkProcessed(ctx, key)
		if ierr != nil {
			return nil, fmt.Errorf("payment: idempotency check: %w", ierr)
		}
		if !first {
			run.Status("DUPLICATE_EVENT")
			p, gerr := l.load(ctx, cmd.PaymentID)
			if gerr != nil {
				return nil, gerr
			}
			o, _ := l.orders.Get(ctx, p.OrderID)
			return &RecordResultOutput{Payment: p, Order: o, Duplicate: true}, nil
		}
		defer func() {
			if err != nil && !isDomainError(err) {
				if ferr := l.idem.Forget(context.WithoutCancel(ctx), key); ferr != nil {
					run.Logger().Warn("idempotency_forget_failed", observability.F("error", ferr.Error()))
				}
			}
		}()
	}

	reason := cmd.Reason
	if !cmd.Success && reason == "" {
		reason = reasonDeclined
	}
	p, err := l.withPayment(ctx, run, cmd.PaymentID, func(p *domain.Payment) (bool, error) {
		if !p.Method.Online() {
			return false, &shared.StateError{
				Entity:  "payment",
				ID:      p.ID,
				Current: string(p.Status),
				Message: fmt.Sprintf("payment %s: cash on delivery settles on delivery, not by gateway result", p.ID),
			}
		}
		if cmd.GatewayRef != "" && p.GatewayRef == "" {
			p.GatewayRef = cmd.GatewayRef
		}
		switch {
		case cmd.Success && p.Status == domain.StatusSuccess, !cmd.Success && p.Status == domain.StatusFailed:
			return false, nil
		case cmd.Success:
			return true, p.MarkSucceeded(cmd.EventID)
		default:
			return true, p.MarkFailed(reason, cmd.EventID)
		}
	})
	if err != nil {
		return nil, err
	}
	out := &RecordResultOutput{Payment: p}

	if !cmd.Success {
		o, oerr := l.orders.OnPaymentFailure(ctx, p.OrderID, reason, actor)
		out.Order = o
		return out, oerr
	}

	o, oerr := l.orders.OnPaymentSuccess(ctx, p.OrderID, actor)
	out.Order = o
	if errors.Is(oerr, domorder.ErrAlreadyCancelled) {
		run.Status("AUTO_REFUNDED")
		refunded, rerr := l.withPayment(ctx, run, p.ID, func(p *domain.Payment) (bool, error) {
			if p.Status != domain.StatusSuccess {
				return false, nil
			}
			return true, p.MarkRefunded(p.Amount, reasonLateSuccess, l.now())
		})
		if rerr != nil {
			return out, rerr
		}
		out.Payment = refunded
		return out, nil
	}
	return out, oerr
}

type RefundInput struct {
	PaymentID string
	// Amount defaults to the full payment amount when zero.
	Amount decimal.Decimal
	Reason string
	Actor  string
}

type RefundResult struct {
	Payment *domain.Payment
	Order   *domorder.Order
}

// ProcessRefund refunds a successful payment once. The order's stock is
// reversed first; the payment is marked REFUNDED only after that succeeded,
// and the order is cancelled.
func (l *Lifecycle) ProcessRefund(ctx context.Context, cmd RefundInput) (_ *RefundResult, err error) {
	ctx, run := l.inst.Begin(ctx, useCaseRefund, "ProcessRefund", attribute.String("payment.id", cmd.PaymentID))
	defer func() { run.End(err) }()
	run.Field("payment_id", cmd.PaymentID)

	if cmd.Reason == "" {
		return nil, shared.NewValidationError("reason", "is required")
	}
	p, err := l.load(ctx, cmd.PaymentID)
	if err != nil {
		return nil, err
	}
	amount := cmd.Amount
	if amount.IsZero() {
		amount = p.Amount
	}
	if err := p.CheckRefund(amount); err != nil {
		return nil, err
	}
	run.Field("amount", amount.String())

	var refunded *domain.Payment
	commit := func(ctx context.Context) error {
		var cerr error
		refunded, cerr = l.withPayment(ctx, run, p.ID, func(p *domain.Payment) (bool, error) {
			return true, p.MarkRefunded(amount, cmd.Reason, l.now())
		})
		return cerr
	}
	o, err := l.orders.ApplyRefund(ctx, p.OrderID, cmd.Reason, cmd.Actor, commit)
	if err != nil {
		return nil, err
	}
	if refunded == nil {
		if refunded, err = l.load(ctx, p.ID); err != nil {
			return nil, err
		}
	}
	return &RefundResult{Payment: refunded, Order: o}, nil
}

// RefundForOrder refunds the full payment of an order being cancelled after
// payment. The caller has already reversed the stock. Refunding twice is a
// no-op.
func (l *Lifecycle) RefundForOrder(ctx context.Context, orderID, reason string) (_ *domain.Payment, err error) {
	ctx, run := l.inst.Begin(ctx, useCaseRefundForOrder, "RefundForOrder", attribute.String("order.id", orderID))
	defer func() { run.End(err) }()
	run.Field("order_id", orderID)

	p, err := l.findByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return l.withPayment(ctx, run, p.ID, func(p *domain.Payment) (bool, error) {
		if p.Status == domain.StatusRefunded {
			return false, nil
		}
		return true, p.MarkRefunded(p.Amount, reason, l.now())
	})
}

// Void closes the payment of an order cancelled before it was paid. An
// unresolved payment fails; one that already succeeded is refunded.
func (l *Lifecycle) Void(ctx context.Context, paymentID, reason string) (_ *domain.Payment, err error) {
	ctx, run := l.inst.Begin(ctx, useCaseVoid, "VoidPayment", attribute.String("payment.id", paymentID))
	defer func() { run.End(err) }()
	run.Field("payment_id", paymentID)

	return l.withPayment(ctx, run, paymentID, func(p *domain.Payment) (bool, error) {
		switch p.Status {
		case domain.StatusInitiated, domain.StatusPending:
			return true, p.MarkFailed(failurePrefixCancel+reason, "")
		case domain.StatusSuccess:
			return true, p.MarkRefunded(p.Amount, reason, l.now())
		default:
			return false, nil
		}
	})
}

// SettleCOD marks the cash-on-delivery payment of a delivered order as
// collected.
func (l *Lifecycle) SettleCOD(ctx context.Context, orderID string) (_ *domain.Payment, err error) {
	ctx, run := l.inst.Begin(ctx, useCaseSettleCOD, "SettleCOD", attribute.String("order.id", orderID))
	defer func() { run.End(err) }()
	run.Field("order_id", orderID)

	p, err := l.findByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return l.withPayment(ctx, run, p.ID, func(p *domain.Payment) (bool, error) {
		if p.Method != domain.MethodCOD {
			return false, shared.NewValidationError("paymentMethod", "only cash on delivery payments settle on delivery")
		}
		if p.Status == domain.StatusSuccess {
			return false, nil
		}
		return true, p.MarkSucceeded("")
	})
}

func (l *Lifecycle) Get(ctx context.Context, id string) (*domain.Payment, error) {
	return l.load(ctx, id)
}

func (l *Lifecycle) FindByOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	return l.findByOrder(ctx, orderID)
}

// withPayment runs fn on the current payment under its lock and persists the
// result when fn reports a change. Settled transitions are published.
func (l *Lifecycle) withPayment(ctx context.Context, run *application.Run, id string, fn func(*domain.Payment) (bool, error)) (*domain.Payment, error) {
	unlock := l.locks.Lock(id)
	defer unlock()

	p, err := l.load(ctx, id)
	if err != nil {
		return nil, err
	}
	before := p.Status
	changed, err := fn(p)
	if err != nil {
		return nil, err
	}
	if !changed {
		return p, nil
	}
	if err := l.repo.Update(ctx, p); err != nil {
		return nil, wrapRepositoryError(err)
	}
	run.Field("payment_status", string(p.Status))
	if p.Status != before && p.Status != domain.StatusPending {
		run.Publish(ctx, l.publisher, domain.NewStatusChangedEvent(p))
	}
	return p, nil
}

func (l *Lifecycle) load(ctx context.Context, id string) (*domain.Payment, error) {
	if id == "" {
		return nil, shared.NewValidationError("paymentId", "is required")
	}
	p, err := l.repo.Get(ctx, id)
	if err != nil {
		return nil, wrapRepositoryError(err)
	}
	return p, nil
}

func (l *Lifecycle) findByOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	if orderID == "" {
		return nil, shared.NewValidationError("orderId", "is required")
	}
	p, err := l.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, wrapRepositoryError(err)
	}
	return p, nil
}

func isDomainError(err error) bool {
	return errors.Is(err, shared.ErrValidation) ||
		errors.Is(err, shared.ErrState) ||
		errors.Is(err, shared.ErrNotFound) ||
		errors.Is(err, shared.ErrInsufficientStock)
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
