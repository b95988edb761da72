package order

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Zhima-Mochi/minishop-inventory/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-inventory/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-inventory/internal/domain/shared"
)

var (
	ErrNotFound      = fmt.Errorf("order: not found: %w", shared.ErrNotFound)
	ErrConflict      = fmt.Errorf("order: %w", shared.ErrConflict)
	ErrNoLines       = shared.NewValidationError("lines", "order must contain at least one line")
	ErrInvalidPrice  = shared.NewValidationError("unitPrice", "must not be negative")
	ErrInvalidAmount = shared.NewValidationError("quantity", "must be greater than zero")
	// ErrAlreadyCancelled is returned when a payment outcome arrives for an
	// order that was cancelled first.
	ErrAlreadyCancelled = fmt.Errorf("order: already cancelled: %w", shared.ErrState)
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

func (a Address) Validate() error {
	switch {
	case a.Name == "":
		return shared.NewValidationError("address.name", "is required")
	case a.Line1 == "":
		return shared.NewValidationError("address.line1", "is required")
	case a.City == "":
		return shared.NewValidationError("address.city", "is required")
	case a.Country == "":
		return shared.NewValidationError("address.country", "is required")
	}
	return nil
}

// Line is an ordered product with its price snapshotted at order time.
type Line struct {
	ProductID     string          `json:"product_id"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	LineTotal     decimal.Decimal `json:"line_total"`
	ReservationID string          `json:"reservation_id"`
	Confirmed     bool            `json:"confirmed"`
}

// HistoryEntry is one append-only audit record of a status change.
type HistoryEntry struct {
	Status    Status    `json:"status"`
	At        time.Time `json:"at"`
	Note      string    `json:"note,omitempty"`
	UpdatedBy string    `json:"updated_by,omitempty"`
}

type Order struct {
	ID                 string
	CustomerID         string
	IdempotencyKey     string
	Lines              []Line
	ShippingAddress    Address
	PaymentMethod      payment.Method
	PaymentID          string
	Subtotal           decimal.Decimal
	Shipping           decimal.Decimal
	Tax                decimal.Decimal
	Total              decimal.Decimal
	Status             Status
	PaymentStatus      PaymentStatus
	StatusHistory      []HistoryEntry
	CancelledAt        *time.Time
	CancellationReason string
	NeedsReview        bool
	ReviewReason       string
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// New builds a PENDING order. Line totals and order totals are computed from
// the snapshotted unit prices; shipping and tax are passed through.
func New(id, customerID, idempotencyKey string, lines []Line, addr Address, method payment.Method,
	shipping, tax decimal.Decimal, actor string,
) (*Order, error) {
	if id == "" {
		return nil, shared.NewValidationError("id", "is required")
	}
	if customerID == "" {
		return nil, shared.NewValidationError("customerId", "is required")
	}
	if len(lines) == 0 {
		return nil, ErrNoLines
	}
	if !method.Valid() {
		return nil, shared.NewValidationError("paymentMethod", fmt.Sprintf("unsupported method %q", method))
	}
	if err := addr.Validate(); err != nil {
		return nil, err
	}

	owned := make([]Line, len(lines))
	subtotal := decimal.Zero
	for i, l := range lines {
		if l.ProductID == "" {
			return nil, shared.NewValidationError("productId", "is required")
		}
		if l.Quantity <= 0 {
			return nil, ErrInvalidAmount
		}
		if l.UnitPrice.IsNegative() {
			return nil, ErrInvalidPrice
		}
		l.LineTotal = l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
		subtotal = subtotal.Add(l.LineTotal)
		owned[i] = l
	}

	now := time.Now().UTC()
	o := &Order{
		ID:              id,
		CustomerID:      customerID,
		IdempotencyKey:  idempotencyKey,
		Lines:           owned,
		ShippingAddress: addr,
		PaymentMethod:   method,
		Subtotal:        subtotal,
		Shipping:        shipping,
		Tax:             tax,
		Total:           subtotal.Add(shipping).Add(tax),
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	o.record(StatusPending, "order placed", actor)
	return o, nil
}

func (o *Order) IsCOD() bool { return o.PaymentMethod == payment.MethodCOD }

// StockConfirmed reports whether every line has been confirmed against the
// ledger.
func (o *Order) StockConfirmed() bool {
	for _, l := range o.Lines {
		if !l.Confirmed {
			return false
		}
	}
	return true
}

func (o *Order) ReservationIDs() []string {
	ids := make([]string, 0, len(o.Lines))
	for _, l := range o.Lines {
		if l.ReservationID != "" {
			ids = append(ids, l.ReservationID)
		}
	}
	return ids
}

func (o *Order) StockLines() []inventory.StockLine {
	out := make([]inventory.StockLine, 0, len(o.Lines))
	for _, l := range o.Lines {
		out = append(out, inventory.StockLine{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return out
}

func (o *Order) SetStockConfirmed(confirmed bool) {
	for i := range o.Lines {
		o.Lines[i].Confirmed = confirmed
	}
}

func (o *Order) CanCancel() bool {
	return o.Status == StatusPending || o.Status == StatusPaid
}

// CheckRefundable rejects refunds once the goods have left the warehouse.
func (o *Order) CheckRefundable() error {
	switch o.Status {
	case StatusPending, StatusPaid, StatusCancelled:
		return nil
	}
	return o.illegal("refund")
}

func (o *Order) MarkPaid(actor string) error {
	return o.transition("payment received", actor, func(s OrderState) (OrderState, error) {
		return s.OnPaymentSucceeded(o)
	})
}

func (o *Order) MarkPaymentFailed(reason, actor string) error {
	return o.transition("payment failed: "+reason, actor, func(s OrderState) (OrderState, error) {
		return s.OnPaymentFailed(o, reason)
	})
}

// Cancel moves the order to CANCELLED. refunded tells whether captured money
// went back to the customer, which decides the resulting payment status.
func (o *Order) Cancel(reason, actor string, refunded bool) error {
	return o.transition("cancelled: "+reason, actor, func(s OrderState) (OrderState, error) {
		return s.OnCancel(o, reason, refunded)
	})
}

func (o *Order) Ship(actor, note string) error {
	return o.transition(note, actor, func(s OrderState) (OrderState, error) {
		return s.OnShip(o)
	})
}

func (o *Order) Deliver(actor, note string) error {
	return o.transition(note, actor, func(s OrderState) (OrderState, error) {
		return s.OnDeliver(o)
	})
}

// FlagForReview marks the order for manual follow-up without changing its
// status.
func (o *Order) FlagForReview(reason string) {
	o.NeedsReview = true
	o.ReviewReason = reason
	o.touch()
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Lines = append([]Line(nil), o.Lines...)
	c.StatusHistory = append([]HistoryEntry(nil), o.StatusHistory...)
	if o.CancelledAt != nil {
		t := *o.CancelledAt
		c.CancelledAt = &t
	}
	return &c
}

func (o *Order) transition(note, actor string, fn func(OrderState) (OrderState, error)) error {
	next, err := fn(stateFor(o.Status))
	if err != nil {
		return err
	}
	o.Status = next.Status()
	o.record(o.Status, note, actor)
	return nil
}

func (o *Order) record(status Status, note, actor string) {
	now := time.Now().UTC()
	o.StatusHistory = append(o.StatusHistory, HistoryEntry{Status: status, At: now, Note: note, UpdatedBy: actor})
	o.UpdatedAt = now
}

func (o *Order) markCancelled(reason string) {
	now := time.Now().UTC()
	o.CancelledAt = &now
	o.CancellationReason = reason
}

func (o *Order) illegal(op string) error {
	msg := fmt.Sprintf("order %s: cannot %s, current status: %s", o.ID, op, o.Status)
	if op == "cancel" {
		msg = fmt.Sprintf("Order cannot be cancelled, current status: %s", o.Status)
	}
	return &shared.StateError{Entity: "order", ID: o.ID, Current: string(o.Status), Message: msg}
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}
