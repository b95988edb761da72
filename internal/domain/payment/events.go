package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

// GatewayResultEvent carries the asynchronous outcome of a gateway submission.
type GatewayResultEvent struct {
	EventID    string
	PaymentID  string
	OrderID    string
	GatewayRef string
	Success    bool
	Reason     string
	OccurredAt time.Time
}

func (GatewayResultEvent) EventName() string { return "payment.gateway_result" }

func (e GatewayResultEvent) AggregateID() string { return e.PaymentID }

// EventIdentifier is the gateway-assigned id used for deduplication.
func (e GatewayResultEvent) EventIdentifier() string { return e.EventID }

// StatusChangedEvent is emitted after every persisted payment transition.
type StatusChangedEvent struct {
	PaymentID  string
	OrderID    string
	Status     Status
	Method     Method
	Amount     decimal.Decimal
	Reason     string
	OccurredAt time.Time
}

func (e StatusChangedEvent) EventName() string {
	switch e.Status {
	case StatusSuccess:
		return "payment.succeeded"
	case StatusFailed:
		return "payment.failed"
	case StatusRefunded:
		return "payment.refunded"
	default:
		return "payment.initiated"
	}
}

func (e StatusChangedEvent) AggregateID() string { return e.PaymentID }

func NewStatusChangedEvent(p *Payment) StatusChangedEvent {
	e := StatusChangedEvent{
		PaymentID:  p.ID,
		OrderID:    p.OrderID,
		Status:     p.Status,
		Method:     p.Method,
		Amount:     p.Amount,
		Reason:     p.FailureReason,
		OccurredAt: time.Now().UTC(),
	}
	if p.Refund != nil {
		e.Amount = p.Refund.Amount
		e.Reason = p.Refund.Reason
	}
	return e
}
