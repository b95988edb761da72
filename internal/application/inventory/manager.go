package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Zhima-Mochi/minishop-inventory/internal/application"
	dominv "github.com/Zhima-Mochi/minishop-inventory/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/minishop-inventory/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-inventory/internal/domain/shared"
	"github.com/Zhima-Mochi/minishop-inventory/internal/observability"
)

const (
	inventoryService = "inventory-service"

	useCaseRegister        = "stock.register"
	useCaseReserve         = "stock.reserve"
	useCaseCheckout        = "stock.reserve_checkout"
	useCaseRelease         = "stock.release"
	useCaseReleaseAll      = "stock.release_all"
	useCaseConfirm         = "stock.confirm"
	useCaseConfirmAll      = "stock.confirm_all"
	useCaseUnconfirmAll    = "stock.unconfirm_all"
	useCaseRestockAll      = "stock.restock_all"
	useCaseRollbackRestock = "stock.restock_rollback"
	useCaseAdjust          = "stock.adjust"
	useCaseLock            = "stock.lock"
	useCaseUnlock          = "stock.unlock"
	useCaseSweep           = "stock.sweep_expired"

	defaultConflictRetries = 2
	defaultRestockRetries  = 5
	defaultRetryInterval   = 10 * time.Millisecond
	sweepBatchSize         = 100
)

type IDGenerator interface {
	NewID() string
}

type Options struct {
	// ConflictRetries bounds how often a lost optimistic-concurrency race is
	// retried before the conflict is surfaced.
	ConflictRetries int
	// RestockRetries bounds retries of a restock that fails for a
	// non-domain reason (storage outage).
	RestockRetries int
	RetryInterval  time.Duration
	Clock          func() time.Time
}

// ReservationManager runs every stock mutation. Each ledger change is one
// conditional repository step; multi-line operations undo completed lines in
// reverse order when a later line fails.
type ReservationManager struct {
	ledgers   dominv.LedgerRepository
	holds     dominv.ReservationRepository
	ids       IDGenerator
	publisher domoutbox.Publisher
	inst      application.Instrumentation

	reservations observability.Counter // stock_reservations_total{outcome}
	conflicts    observability.Counter // stock_conflicts_total{op}

	conflictRetries uint64
	restockRetries  uint64
	retryInterval   time.Duration
	now             func() time.Time
}

func NewReservationManager(
	ledgers dominv.LedgerRepository,
	holds dominv.ReservationRepository,
	ids IDGenerator,
	publisher domoutbox.Publisher,
	tel observability.Observability,
	opts Options,
) *ReservationManager {
	if tel == nil {
		tel = observability.Nop()
	}
	if opts.ConflictRetries <= 0 {
		opts.ConflictRetries = defaultConflictRetries
	}
	if opts.RestockRetries <= 0 {
		opts.RestockRetries = defaultRestockRetries
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = defaultRetryInterval
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &ReservationManager{
		ledgers:         ledgers,
		holds:           holds,
		ids:             ids,
		publisher:       publisher,
		inst:            application.NewInstrumentation(inventoryService, tel),
		reservations:    tel.Metrics().Counter(observability.MStockReservations),
		conflicts:       tel.Metrics().Counter(observability.MStockConflicts),
		conflictRetries: uint64(opts.ConflictRetries),
		restockRetries:  uint64(opts.RestockRetries),
		retryInterval:   opts.RetryInterval,
		now:             opts.Clock,
	}
}

// ReserveRequest asks for a hold of Quantity units. A positive TTL makes the
// hold expire; order-level holds pass zero.
type ReserveRequest struct {
	ProductID string
	Quantity  int
	HolderID  string
	Reason    dominv.Reason
	TTL       time.Duration
}

// RegisterLedger creates the ledger of a newly created product.
func (m *ReservationManager) RegisterLedger(ctx context.Context, productID string, onHand, reorderLevel, maxStockLevel int) (_ *dominv.Ledger, err error) {
	ctx, run := m.inst.Begin(ctx, useCaseRegister, "RegisterLedger", attribute.String("product.id", productID))
	defer func() { run.End(err) }()

	l, err := dominv.NewLedger(productID, onHand, reorderLevel, maxStockLevel)
	if err != nil {
		return nil, err
	}
	if err := m.ledgers.Create(ctx, l); err != nil {
		return nil, fmt.Errorf("inventory: create ledger: %w", err)
	}
	run.Publish(ctx, m.publisher, dominv.NewStockAdjustedEvent(l, dominv.AdjustmentOnHand, onHand, "initial_stock"))
	return l, nil
}

func (m *ReservationManager) Ledger(ctx context.Context, productID string) (*dominv.Ledger, error) {
	if productID == "" {
		return nil, shared.NewValidationError("productId", "is required")
	}
	return m.ledgers.Get(ctx, productID)
}

func (m *ReservationManager) Availability(ctx context.Context, productID string) (dominv.Availability, error) {
	l, err := m.Ledger(ctx, productID)
	if err != nil {
		return dominv.Availability{}, err
	}
	return l.Availability(), nil
}

func (m *ReservationManager) Reservation(ctx context.Context, id string) (*dominv.Reservation, error) {
	return m.holds.Get(ctx, id)
}

// AdjustStock applies an administrative on-hand correction.
func (m *ReservationManager) AdjustStock(ctx context.Context, productID string, delta int, reason string) (_ *dominv.Ledger, err error) {
	ctx, run := m.inst.Begin(ctx, useCaseAdjust, "AdjustStock",
		attribute.String("product.id", productID),
		attribute.Int("stock.delta", delta),
	)
	defer func() { run.End(err) }()
	run.Field("product_id", productID)

	before, after, err := m.mutate(ctx, "adjust", productID, func(l *dominv.Ledger) error {
		return l.AdjustOnHand(delta, reason)
	})
	if err != nil {
		return nil, err
	}
	run.Publish(ctx, m.publisher, dominv.NewStockAdjustedEvent(after, dominv.AdjustmentOnHand, delta, reason))
	m.publishLowStock(ctx, run, before, after)
	return after, nil
}

// Lock freezes units for an administrative hold.
func (m *ReservationManager) Lock(ctx context.Context, productID string, qty int, reason string) (_ *dominv.Ledger, err error) {
	ctx, run := m.inst.Begin(ctx, useCaseLock, "LockStock", attribute.String("product.id", productID))
	defer func() { run.End(err) }()

	if reason == "" {
		return nil, dominv.ErrReasonRequired
	}
	_, after, err := m.mutate(ctx, "lock", productID, func(l *dominv.Ledger) error { return l.Lock(qty) })
	if err != nil {
		return nil, err
	}
	run.Publish(ctx, m.publisher, dominv.NewStockAdjustedEvent(after, dominv.AdjustmentLock, qty, reason))
	return after, nil
}

func (m *ReservationManager) Unlock(ctx context.Context, productID string, qty int, reason string) (_ *dominv.Ledger, err error) {
	ctx, run := m.inst.Begin(ctx, useCaseUnlock, "UnlockStock", attribute.String("product.id", productID))
	defer func() { run.End(err) }()

	if reason == "" {
		return nil, dominv.ErrReasonRequired
	}
	var unlocked int
	_, after, err := m.mutate(ctx, "unlock", productID, func(l *dominv.Ledger) error {
		n, err := l.Unlock(qty)
		unlocked = n
		return err
	})
	if err != nil {
		return nil, err
	}
	run.Publish(ctx, m.publisher, dominv.NewStockAdjustedEvent(after, dominv.AdjustmentUnlock, unlocked, reason))
	return after, nil
}

// Reserve places one hold. The availability check and the increment happen
// in one conditional step; a denied hold reports the available quantity.
func (m *ReservationManager) Reserve(ctx context.Context, req ReserveRequest) (_ *dominv.Reservation, err error) {
	ctx, run := m.inst.Begin(ctx, useCaseReserve, "Reserve",
		attribute.String("product.id", req.ProductID),
		attribute.Int("stock.quantity", req.Quantity),
		attribute.String("reservation.reason", string(req.Reason)),
	)
	defer func() { run.End(err) }()
	run.Field("product_id", req.ProductID)

	res, err := m.reserve(ctx, run, req)
	if err != nil {
		return nil, err
	}
	run.Field("reservation_id", res.ID)
	return res, nil
}

// ReserveCheckout places one order hold per line for orderID, or none of
// them. Active cart holds of cartHolderID on the same products are taken
// over first and only the shortfall is reserved from the ledger. A cart hold
// is taken over whole, and only while it fits in the line quantity; it moves
// to TRANSFERRED and its units stay reserved under the order hold, which has
// no expiry.
func (m *ReservationManager) ReserveCheckout(ctx context.Context, orderID, cartHolderID string, lines []dominv.StockLine) (_ []*dominv.Reservation, err error) {
	ctx, run := m.inst.Begin(ctx, useCaseCheckout, "ReserveCheckout",
		attribute.String("reservation.holder", orderID),
		attribute.Int("lines", len(lines)),
	)
	defer func() { run.End(err) }()
	run.Field("holder_id", orderID)

	if len(lines) == 0 {
		return nil, shared.NewValidationError("lines", "at least one line is required")
	}
	pool, err := m.cartHolds(ctx, cartHolderID)
	if err != nil {
		return nil, err
	}

	done := make([]checkoutHold, 0, len(lines))
	transferred := 0
	for _, line := range lines {
		h, herr := m.checkoutLine(ctx, run, orderID, line, takeHolds(pool, line))
		if herr != nil {
			run.Field("failed_product_id", line.ProductID)
			if uerr := m.undoCheckout(ctx, run, done); uerr != nil {
				run.Status("ROLLBACK_INCOMPLETE")
				run.Logger().Error("reservation_rollback_failed",
					observability.F("holder_id", orderID),
					observability.F("error", uerr.Error()),
				)
			}
			return nil, herr
		}
		transferred += len(h.taken)
		done = append(done, h)
	}
	if transferred > 0 {
		run.Field("transferred_holds", transferred)
	}

	out := make([]*dominv.Reservation, 0, len(done))
	for _, h := range done {
		out = append(out, h.hold)
	}
	return out, nil
}

// HeldByCart sums the units of the live cart holds of holderID per product.
func (m *ReservationManager) HeldByCart(ctx context.Context, holderID string) (map[string]int, error) {
	pool, err := m.cartHolds(ctx, holderID)
	if err != nil {
		return nil, err
	}
	held := make(map[string]int, len(pool))
	for productID, holds := range pool {
		for _, h := range holds {
			held[productID] += h.Quantity
		}
	}
	return held, nil
}

// Release returns a hold to sale. Releasing an already closed hold is a no-op.
func (m *ReservationManager) Release(ctx context.Context, reservationID string) (_ *dominv.Reservation, err error) {
	ctx, run := m.inst.Begin(ctx, useCaseRelease, "Release", attribute.String("reservation.id", reservationID))
	defer func() { run.End(err) }()
	run.Field("reservation_id", reservationID)

	res, _, err := m.release(ctx, run, reservationID, dominv.ReservationReleased)
	if errors.Is(err, dominv.ErrReservationClosed) {
		run.Status("ALREADY_CLOSED")
		return m.holds.Get(ctx, reservationID)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ReleaseAll releases every still active hold. It keeps going past failures
// and reports them together.
func (m *ReservationManager) ReleaseAll(ctx context.Context, reservationIDs []string) (err error) {
	ctx, run := m.inst.Begin(ctx, useCaseReleaseAll, "ReleaseAll", attribute.Int("reservations", len(reservationIDs)))
	defer func() { run.End(err) }()

	var errs []error
	for _, id := range reservationIDs {
		if _, _, rerr := m.release(ctx, run, id, dominv.ReservationReleased); rerr != nil && !errors.Is(rerr, dominv.ErrReservationClosed) {
			errs = append(errs, fmt.Errorf("release %s: %w", id, rerr))
		}
	}
	return errors.Join(errs...)
}

// Confirm consumes one hold as a sale.
func (m *ReservationManager) Confirm(ctx context.Context, reservationID string) (_ *dominv.Reservation, err error) {
	ctx, run := m.inst.Begin(ctx, useCaseConfirm, "Confirm", attribute.String("reservation.id", reservationID))
	defer func() { run.End(err) }()
	run.Field("reservation_id", reservationID)

	res, _, err := m.confirm(ctx, run, reservationID)
	return res, err
}

// ConfirmAll confirms every hold or, when one fails, unconfirms the ones it
// confirmed and returns the failure.
func (m *ReservationManager) ConfirmAll(ctx context.Context, reservationIDs []string) (err error) {
	ctx, run := m.inst.Begin(ctx, useCaseConfirmAll, "ConfirmAll", attribute.Int("reservations", len(reservationIDs)))
	defer func() { run.End(err) }()

	done := make([]string, 0, len(reservationIDs))
	for _, id := range reservationIDs {
		_, changed, cerr := m.confirm(ctx, run, id)
		if cerr != nil {
			run.Field("failed_reservation_id", id)
			var errs []error
			for i := len(done) - 1; i >= 0; i-- {
				if uerr := m.unconfirm(ctx, run, done[i]); uerr != nil {
					errs = append(errs, uerr)
				}
			}
			if len(errs) > 0 {
				run.Status("ROLLBACK_INCOMPLETE")
				run.Logger().Error("confirm_rollback_failed", observability.F("error", errors.Join(errs...).Error()))
			}
			return cerr
		}
		if changed {
			done = append(done, id)
		}
	}
	return nil
}

// UnconfirmAll reverses confirmed holds, newest first.
func (m *ReservationManager) UnconfirmAll(ctx context.Context, reservationIDs []string) (err error) {
	ctx, run := m.inst.Begin(ctx, useCaseUnconfirmAll, "UnconfirmAll", attribute.Int("reservations", len(reservationIDs)))
	defer func() { run.End(err) }()

	var errs []error
	for i := len(reservationIDs) - 1; i >= 0; i-- {
		if uerr := m.unconfirm(ctx, run, reservationIDs[i]); uerr != nil && !errors.Is(uerr, dominv.ErrReservationClosed) {
			errs = append(errs, uerr)
		}
	}
	return errors.Join(errs...)
}

// RestockAll returns the units of confirmed holds to on-hand stock. Each hold
// moves CONFIRMED to RESTOCKED before its ledger changes, so a hold already
// restocked by an earlier attempt is skipped. Ledger steps are retried
// through transient failures; if a hold still fails the holds restocked by
// this call are rolled back so the caller sees all or nothing.
func (m *ReservationManager) RestockAll(ctx context.Context, reservationIDs []string, reason string) (err error) {
	ctx, run := m.inst.Begin(ctx, useCaseRestockAll, "RestockAll", attribute.Int("reservations", len(reservationIDs)))
	defer func() { run.End(err) }()
	run.Field("reason", reason)

	done := make([]string, 0, len(reservationIDs))
	skipped := 0
	for _, id := range reservationIDs {
		changed, rerr := m.restock(ctx, run, id, reason)
		if rerr != nil {
			run.Field("failed_reservation_id", id)
			if uerr := m.rollbackRestocks(ctx, run, done); uerr != nil {
				run.Status("ROLLBACK_INCOMPLETE")
				run.Logger().Error("restock_rollback_failed", observability.F("error", uerr.Error()))
			}
			return rerr
		}
		if !changed {
			skipped++
			continue
		}
		done = append(done, id)
	}
	if skipped > 0 {
		run.Field("already_restocked", skipped)
	}
	return nil
}

// RollbackRestockAll undoes a completed RestockAll, used when a later step of
// a refund fails. Holds that are not RESTOCKED are left alone.
func (m *ReservationManager) RollbackRestockAll(ctx context.Context, reservationIDs []string) (err error) {
	ctx, run := m.inst.Begin(ctx, useCaseRollbackRestock, "RollbackRestockAll", attribute.Int("reservations", len(reservationIDs)))
	defer func() { run.End(err) }()

	return m.rollbackRestocks(ctx, run, reservationIDs)
}

// SweepExpired releases cart holds whose expiry has passed and reports how
// many were released.
func (m *ReservationManager) SweepExpired(ctx context.Context) (released int, err error) {
	ctx, run := m.inst.Begin(ctx, useCaseSweep, "SweepExpired")
	defer func() {
		run.Field("released", released)
		run.End(err)
	}()

	expired, err := m.holds.ListExpired(ctx, m.now().UTC(), sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("inventory: list expired holds: %w", err)
	}
	var errs []error
	for _, res := range expired {
		_, _, rerr := m.release(ctx, run, res.ID, dominv.ReservationExpired)
		switch {
		case rerr == nil:
			released++
		case errors.Is(rerr, dominv.ErrReservationClosed):
		default:
			errs = append(errs, fmt.Errorf("expire %s: %w", res.ID, rerr))
		}
	}
	return released, errors.Join(errs...)
}

func (m *ReservationManager) reserve(ctx context.Context, run *application.Run, req ReserveRequest) (*dominv.Reservation, error) {
	if req.Quantity <= 0 {
		return nil, dominv.ErrInvalidQuantity
	}
	var expiresAt *time.Time
	if req.TTL > 0 {
		t := m.now().UTC().Add(req.TTL)
		expiresAt = &t
	}
	res, err := dominv.NewReservation(m.ids.NewID(), req.ProductID, req.HolderID, req.Quantity, req.Reason, expiresAt)
	if err != nil {
		return nil, err
	}

	_, after, err := m.mutate(ctx, "reserve", req.ProductID, func(l *dominv.Ledger) error {
		return l.Reserve(req.Quantity)
	})
	if err != nil {
		m.countReservation(err)
		return nil, err
	}

	if err := m.holds.Insert(ctx, res); err != nil {
		m.releaseUnits(ctx, run, req.ProductID, req.Quantity)
		m.countReservation(err)
		return nil, fmt.Errorf("inventory: record reservation: %w", err)
	}

	m.reservations.Add(1, observability.L("outcome", "reserved"))
	run.Publish(ctx, m.publisher, dominv.NewStockReservedEvent(res, after))
	return res, nil
}

// checkoutHold is one order hold placed by ReserveCheckout together with
// what it took: the units reserved from the ledger and the cart holds
// handed over.
type checkoutHold struct {
	hold      *dominv.Reservation
	shortfall int
	taken     []string
}

func (m *ReservationManager) checkoutLine(ctx context.Context, run *application.Run, orderID string, line dominv.StockLine, candidates []*dominv.Reservation) (checkoutHold, error) {
	if line.Quantity <= 0 {
		return checkoutHold{}, dominv.ErrInvalidQuantity
	}
	res, err := dominv.NewReservation(m.ids.NewID(), line.ProductID, orderID, line.Quantity, dominv.ReasonCheckout, nil)
	if err != nil {
		return checkoutHold{}, err
	}

	h := checkoutHold{hold: res, shortfall: line.Quantity}
	for _, c := range candidates {
		if _, terr := m.holds.Transition(ctx, c.ID, dominv.ReservationActive, dominv.ReservationTransferred); terr != nil {
			if errors.Is(terr, dominv.ErrReservationClosed) {
				// released or swept since it was listed
				continue
			}
			m.restoreCartHolds(ctx, run, h.taken)
			return checkoutHold{}, terr
		}
		h.taken = append(h.taken, c.ID)
		h.shortfall -= c.Quantity
	}

	var after *dominv.Ledger
	if h.shortfall > 0 {
		_, after, err = m.mutate(ctx, "reserve", line.ProductID, func(l *dominv.Ledger) error {
			return l.Reserve(h.shortfall)
		})
		if err != nil {
			m.countReservation(err)
			m.restoreCartHolds(ctx, run, h.taken)
			return checkoutHold{}, err
		}
	} else if after, err = m.ledgers.Get(ctx, line.ProductID); err != nil {
		m.restoreCartHolds(ctx, run, h.taken)
		return checkoutHold{}, err
	}

	if err := m.holds.Insert(ctx, res); err != nil {
		m.releaseUnits(ctx, run, line.ProductID, h.shortfall)
		m.restoreCartHolds(ctx, run, h.taken)
		m.countReservation(err)
		return checkoutHold{}, fmt.Errorf("inventory: record reservation: %w", err)
	}
	m.reservations.Add(1, observability.L("outcome", "reserved"))
	run.Publish(ctx, m.publisher, dominv.NewStockReservedEvent(res, after))
	return h, nil
}

// undoCheckout closes the order holds of a failed checkout, newest first.
// Units reserved for the shortfall go back to sale; handed-over cart holds
// become active again.
func (m *ReservationManager) undoCheckout(ctx context.Context, run *application.Run, done []checkoutHold) error {
	var errs []error
	for i := len(done) - 1; i >= 0; i-- {
		h := done[i]
		if _, err := m.holds.Transition(ctx, h.hold.ID, dominv.ReservationActive, dominv.ReservationReleased); err != nil {
			errs = append(errs, err)
			continue
		}
		released := 0
		if h.shortfall > 0 {
			if _, _, err := m.mutate(ctx, "release", h.hold.ProductID, func(l *dominv.Ledger) error {
				n, err := l.Release(h.shortfall)
				released = n
				return err
			}); err != nil {
				errs = append(errs, err)
			}
		}
		m.restoreCartHolds(ctx, run, h.taken)
		run.Publish(ctx, m.publisher, dominv.NewStockReleasedEvent(h.hold, released, false))
	}
	return errors.Join(errs...)
}

// cartHolds groups the active, unexpired cart holds of holderID by product.
func (m *ReservationManager) cartHolds(ctx context.Context, holderID string) (map[string][]*dominv.Reservation, error) {
	if holderID == "" {
		return nil, nil
	}
	all, err := m.holds.ListByHolder(ctx, holderID)
	if err != nil {
		return nil, fmt.Errorf("inventory: list cart holds: %w", err)
	}
	now := m.now().UTC()
	pool := make(map[string][]*dominv.Reservation)
	for _, r := range all {
		if r.Reason != dominv.ReasonCart || !r.IsActive() || r.ExpiredAt(now) {
			continue
		}
		pool[r.ProductID] = append(pool[r.ProductID], r)
	}
	return pool, nil
}

// takeHolds removes from pool the cart holds of line's product that fit in
// the line quantity, oldest first.
func takeHolds(pool map[string][]*dominv.Reservation, line dominv.StockLine) []*dominv.Reservation {
	var taken, kept []*dominv.Reservation
	sum := 0
	for _, r := range pool[line.ProductID] {
		if sum+r.Quantity <= line.Quantity {
			taken = append(taken, r)
			sum += r.Quantity
			continue
		}
		kept = append(kept, r)
	}
	if pool != nil {
		pool[line.ProductID] = kept
	}
	return taken
}

func (m *ReservationManager) restoreCartHolds(ctx context.Context, run *application.Run, ids []string) {
	for i := len(ids) - 1; i >= 0; i-- {
		m.reopen(ctx, run, ids[i], dominv.ReservationTransferred, dominv.ReservationActive)
	}
}

// releaseUnits gives qty reserved units back after the hold record that
// should have carried them could not be stored.
func (m *ReservationManager) releaseUnits(ctx context.Context, run *application.Run, productID string, qty int) {
	if qty <= 0 {
		return
	}
	if _, _, err := m.mutate(ctx, "release", productID, func(l *dominv.Ledger) error {
		_, err := l.Release(qty)
		return err
	}); err != nil {
		run.Logger().Error("reservation_compensation_failed",
			observability.F("product_id", productID),
			observability.F("quantity", qty),
			observability.F("error", err.Error()),
		)
	}
}

func (m *ReservationManager) countReservation(err error) {
	outcome := "error"
	if errors.Is(err, shared.ErrInsufficientStock) {
		outcome = "insufficient"
	}
	m.reservations.Add(1, observability.L("outcome", outcome))
}

// release closes an active hold into state to and gives its units back. The
// record is closed first so two callers can never both decrement.
func (m *ReservationManager) release(ctx context.Context, run *application.Run, id string, to dominv.ReservationState) (*dominv.Reservation, int, error) {
	res, err := m.holds.Transition(ctx, id, dominv.ReservationActive, to)
	if err != nil {
		return nil, 0, err
	}

	var released int
	_, _, err = m.mutate(ctx, "release", res.ProductID, func(l *dominv.Ledger) error {
		n, err := l.Release(res.Quantity)
		released = n
		return err
	})
	if err != nil {
		m.reopen(ctx, run, id, to, dominv.ReservationActive)
		return nil, 0, err
	}
	if released < res.Quantity {
		run.Logger().Warn("release_clamped",
			observability.F("reservation_id", id),
			observability.F("held", res.Quantity),
			observability.F("released", released),
		)
	}
	run.Publish(ctx, m.publisher, dominv.NewStockReleasedEvent(res, released, to == dominv.ReservationExpired))
	return res, released, nil
}

// confirm reports changed=false when the hold was already confirmed.
func (m *ReservationManager) confirm(ctx context.Context, run *application.Run, id string) (*dominv.Reservation, bool, error) {
	res, err := m.holds.Transition(ctx, id, dominv.ReservationActive, dominv.ReservationConfirmed)
	if errors.Is(err, dominv.ErrReservationClosed) {
		current, gerr := m.holds.Get(ctx, id)
		if gerr != nil {
			return nil, false, gerr
		}
		if current.State == dominv.ReservationConfirmed {
			return current, false, nil
		}
		return nil, false, &shared.StateError{
			Entity:    "reservation",
			ID:        id,
			Current:   string(current.State),
			Message:   fmt.Sprintf("inventory: cannot confirm reservation %s in state %s", id, current.State),
			Invariant: true,
		}
	}
	if err != nil {
		return nil, false, err
	}

	before, after, err := m.mutate(ctx, "confirm", res.ProductID, func(l *dominv.Ledger) error {
		return l.Confirm(res.Quantity)
	})
	if err != nil {
		m.reopen(ctx, run, id, dominv.ReservationConfirmed, dominv.ReservationActive)
		return nil, false, err
	}
	run.Publish(ctx, m.publisher, dominv.NewStockConfirmedEvent(res, after))
	m.publishLowStock(ctx, run, before, after)
	return res, true, nil
}

func (m *ReservationManager) unconfirm(ctx context.Context, run *application.Run, id string) error {
	res, err := m.holds.Transition(ctx, id, dominv.ReservationConfirmed, dominv.ReservationActive)
	if err != nil {
		return err
	}
	if _, _, err := m.mutate(ctx, "unconfirm", res.ProductID, func(l *dominv.Ledger) error {
		return l.Unconfirm(res.Quantity)
	}); err != nil {
		m.reopen(ctx, run, id, dominv.ReservationActive, dominv.ReservationConfirmed)
		return err
	}
	return nil
}

// restock reports changed=false when the hold was already restocked.
func (m *ReservationManager) restock(ctx context.Context, run *application.Run, id, reason string) (bool, error) {
	res, err := m.holds.Transition(ctx, id, dominv.ReservationConfirmed, dominv.ReservationRestocked)
	if errors.Is(err, dominv.ErrReservationClosed) {
		current, gerr := m.holds.Get(ctx, id)
		if gerr != nil {
			return false, gerr
		}
		if current.State == dominv.ReservationRestocked {
			return false, nil
		}
		return false, &shared.StateError{
			Entity:    "reservation",
			ID:        id,
			Current:   string(current.State),
			Message:   fmt.Sprintf("inventory: cannot restock reservation %s in state %s", id, current.State),
			Invariant: true,
		}
	}
	if err != nil {
		return false, err
	}

	var after *dominv.Ledger
	err = m.retry(ctx, m.restockRetries, isTransient, func() error {
		_, l, err := m.mutate(ctx, "restock", res.ProductID, func(l *dominv.Ledger) error {
			return l.Restock(res.Quantity)
		})
		after = l
		return err
	})
	if err != nil {
		m.reopen(ctx, run, id, dominv.ReservationRestocked, dominv.ReservationConfirmed)
		return false, fmt.Errorf("inventory: restock %s: %w", res.ProductID, err)
	}
	run.Publish(ctx, m.publisher, dominv.NewStockAdjustedEvent(after, dominv.AdjustmentRestock, res.Quantity, reason))
	return true, nil
}

func (m *ReservationManager) rollbackRestocks(ctx context.Context, run *application.Run, reservationIDs []string) error {
	var errs []error
	for i := len(reservationIDs) - 1; i >= 0; i-- {
		id := reservationIDs[i]
		res, err := m.holds.Transition(ctx, id, dominv.ReservationRestocked, dominv.ReservationConfirmed)
		if errors.Is(err, dominv.ErrReservationClosed) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("inventory: roll back restock of %s: %w", id, err))
			continue
		}

		var before, after *dominv.Ledger
		err = m.retry(ctx, m.restockRetries, isTransient, func() error {
			var err error
			before, after, err = m.mutate(ctx, "restock_rollback", res.ProductID, func(l *dominv.Ledger) error {
				return l.AdjustOnHand(-res.Quantity, dominv.AdjustmentRollback)
			})
			return err
		})
		if err != nil {
			m.reopen(ctx, run, id, dominv.ReservationConfirmed, dominv.ReservationRestocked)
			errs = append(errs, fmt.Errorf("inventory: roll back restock of %s: %w", res.ProductID, err))
			continue
		}
		run.Publish(ctx, m.publisher, dominv.NewStockAdjustedEvent(after, dominv.AdjustmentRollback, -res.Quantity, dominv.AdjustmentRollback))
		m.publishLowStock(ctx, run, before, after)
	}
	return errors.Join(errs...)
}

// reopen moves a hold record back after the ledger step it guarded failed.
func (m *ReservationManager) reopen(ctx context.Context, run *application.Run, id string, from, to dominv.ReservationState) {
	if _, err := m.holds.Transition(ctx, id, from, to); err != nil {
		run.Logger().Error("reservation_reopen_failed",
			observability.F("reservation_id", id),
			observability.F("from", string(from)),
			observability.F("to", string(to)),
			observability.F("error", err.Error()),
		)
	}
}

// mutate applies fn through the repository's conditional update and retries
// lost races with backoff. The fresh read of every attempt decides, so a race
// lost for the last units ends as InsufficientStockError.
func (m *ReservationManager) mutate(ctx context.Context, op, productID string, fn func(*dominv.Ledger) error) (before, after *dominv.Ledger, err error) {
	err = m.retry(ctx, m.conflictRetries, func(err error) bool {
		if errors.Is(err, shared.ErrConflict) {
			m.conflicts.Add(1, observability.L("op", op))
			return true
		}
		return false
	}, func() error {
		l, err := m.ledgers.Update(ctx, productID, func(l *dominv.Ledger) error {
			before = l.Clone()
			return fn(l)
		})
		if err != nil {
			return err
		}
		after = l
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

func (m *ReservationManager) retry(ctx context.Context, retries uint64, retryable func(error) bool, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.retryInterval
	b.MaxInterval = 10 * m.retryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)

	return backoff.Retry(func() error {
		err := fn()
		if err == nil || retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

func (m *ReservationManager) publishLowStock(ctx context.Context, run *application.Run, before, after *dominv.Ledger) {
	if before == nil || after == nil || before.IsLowStock() || !after.IsLowStock() {
		return
	}
	run.Publish(ctx, m.publisher, dominv.NewLowStockEvent(after))
}

// isTransient reports whether err may go away on retry: anything that is not
// a domain decision or a cancelled context.
func isTransient(err error) bool {
	switch {
	case errors.Is(err, shared.ErrValidation),
		errors.Is(err, shared.ErrInsufficientStock),
		errors.Is(err, shared.ErrState),
		errors.Is(err, shared.ErrNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
