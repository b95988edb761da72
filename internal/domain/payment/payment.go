package payment

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Zhima-Mochi/minishop-inventory/internal/domain/shared"
)

var (
	ErrNotFound       = fmt.Errorf("payment: not found: %w", shared.ErrNotFound)
	ErrConflict       = fmt.Errorf("payment: %w", shared.ErrConflict)
	ErrInvalidAmount  = shared.NewValidationError("amount", "must be greater than zero")
	ErrRefundTooLarge = shared.NewValidationError("amount", "refund exceeds the original amount")
)

type Status string

const (
	StatusInitiated Status = "INITIATED"
	StatusPending   Status = "PENDING"
	StatusSuccess   Status = "SUCCESS"
	StatusFailed    Status = "FAILED"
	StatusRefunded  Status = "REFUNDED"
)

type Method string

const (
	MethodCard   Method = "CARD"
	MethodWallet Method = "WALLET"
	MethodCOD    Method = "COD"
)

func (m Method) Valid() bool {
	switch m {
	case MethodCard, MethodWallet, MethodCOD:
		return true
	}
	return false
}

// Online reports whether the method resolves through a gateway callback.
func (m Method) Online() bool { return m == MethodCard || m == MethodWallet }

type Refund struct {
	Amount      decimal.Decimal
	Reason      string
	ProcessedAt time.Time
}

type Payment struct {
	ID             string
	OrderID        string
	Amount         decimal.Decimal
	Method         Method
	Status         Status
	GatewayRef     string
	GatewayEventID string
	FailureReason  string
	Refund         *Refund
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// New creates a payment for an order. Cash-on-delivery payments start
// PENDING and wait for delivery; online ones start INITIATED.
func New(id, orderID string, amount decimal.Decimal, method Method) (*Payment, error) {
	if id == "" || orderID == "" {
		return nil, shared.NewValidationError("orderId", "is required")
	}
	if !method.Valid() {
		return nil, shared.NewValidationError("paymentMethod", fmt.Sprintf("unsupported method %q", method))
	}
	if amount.IsNegative() {
		return nil, shared.NewValidationError("amount", "must not be negative")
	}
	status := StatusInitiated
	if method == MethodCOD {
		status = StatusPending
	}
	now := time.Now().UTC()
	return &Payment{
		ID:        id,
		OrderID:   orderID,
		Amount:    amount,
		Method:    method,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (p *Payment) IsTerminal() bool {
	return p.Status == StatusFailed || p.Status == StatusRefunded
}

// MarkSubmitted records the gateway reference of an online payment.
func (p *Payment) MarkSubmitted(gatewayRef string) error {
	if p.Status != StatusInitiated {
		return p.illegal("submit")
	}
	p.GatewayRef = gatewayRef
	p.Status = StatusPending
	p.touch()
	return nil
}

func (p *Payment) MarkSucceeded(eventID string) error {
	if p.Status != StatusInitiated && p.Status != StatusPending {
		return p.illegal("succeed")
	}
	p.Status = StatusSuccess
	p.GatewayEventID = eventID
	p.FailureReason = ""
	p.touch()
	return nil
}

func (p *Payment) MarkFailed(reason, eventID string) error {
	if p.Status != StatusInitiated && p.Status != StatusPending {
		return p.illegal("fail")
	}
	p.Status = StatusFailed
	p.FailureReason = reason
	if eventID != "" {
		p.GatewayEventID = eventID
	}
	p.touch()
	return nil
}

// CheckRefund validates a refund request without applying it.
func (p *Payment) CheckRefund(amount decimal.Decimal) error {
	if p.Status != StatusSuccess || p.Refund != nil {
		return &shared.StateError{
			Entity:  "payment",
			ID:      p.ID,
			Current: string(p.Status),
			Message: fmt.Sprintf("payment %s cannot be refunded, current status: %s", p.ID, p.Status),
		}
	}
	// A zero amount only refunds a zero payment in full.
	if amount.IsNegative() || (amount.IsZero() && !p.Amount.IsZero()) {
		return ErrInvalidAmount
	}
	if amount.GreaterThan(p.Amount) {
		return ErrRefundTooLarge
	}
	return nil
}

// MarkRefunded stamps the refund sub-record. A payment is refunded at most
// once and only from SUCCESS.
func (p *Payment) MarkRefunded(amount decimal.Decimal, reason string, at time.Time) error {
	if err := p.CheckRefund(amount); err != nil {
		return err
	}
	p.Refund = &Refund{Amount: amount, Reason: reason, ProcessedAt: at.UTC()}
	p.Status = StatusRefunded
	p.touch()
	return nil
}

func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	c := *p
	if p.Refund != nil {
		r := *p.Refund
		c.Refund = &r
	}
	return &c
}

func (p *Payment) illegal(op string) error {
	return &shared.StateError{
		Entity:  "payment",
		ID:      p.ID,
		Current: string(p.Status),
		Message: fmt.Sprintf("payment %s: cannot %s from %s", p.ID, op, p.Status),
	}
}

func (p *Payment) touch() {
	p.UpdatedAt = time.Now().UTC()
}
