package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderCreatedEvent is emitted once an order and its reservations are
// persisted.
type OrderCreatedEvent struct {
	OrderID       string
	CustomerID    string
	PaymentID     string
	PaymentMethod string
	Total         decimal.Decimal
	Lines         []Line
	OccurredAt    time.Time
}

func (OrderCreatedEvent) EventName() string { return "order.created" }

func (e OrderCreatedEvent) AggregateID() string { return e.OrderID }

func NewOrderCreatedEvent(o *Order) OrderCreatedEvent {
	return OrderCreatedEvent{
		OrderID:       o.ID,
		CustomerID:    o.CustomerID,
		PaymentID:     o.PaymentID,
		PaymentMethod: string(o.PaymentMethod),
		Total:         o.Total,
		Lines:         append([]Line(nil), o.Lines...),
		OccurredAt:    time.Now().UTC(),
	}
}

// OrderStatusChangedEvent is emitted after every persisted status change.
// The event name follows the new status.
type OrderStatusChangedEvent struct {
	OrderID       string
	Status        Status
	PaymentStatus PaymentStatus
	Note          string
	UpdatedBy     string
	OccurredAt    time.Time
}

func (e OrderStatusChangedEvent) EventName() string {
	switch e.Status {
	case StatusPaid:
		return "order.paid"
	case StatusShipped:
		return "order.shipped"
	case StatusDelivered:
		return "order.delivered"
	case StatusCancelled:
		return "order.cancelled"
	default:
		return "order.updated"
	}
}

func (e OrderStatusChangedEvent) AggregateID() string { return e.OrderID }

func NewOrderStatusChangedEvent(o *Order) OrderStatusChangedEvent {
	e := OrderStatusChangedEvent{
		OrderID:       o.ID,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		OccurredAt:    time.Now().UTC(),
	}
	if n := len(o.StatusHistory); n > 0 {
		e.Note = o.StatusHistory[n-1].Note
		e.UpdatedBy = o.StatusHistory[n-1].UpdatedBy
	}
	return e
}

// OrderReviewRequiredEvent is emitted when a stock confirmation failed and
// the order needs manual follow-up.
type OrderReviewRequiredEvent struct {
	OrderID    string
	Reason     string
	OccurredAt time.Time
}

func (OrderReviewRequiredEvent) EventName() string { return "order.review_required" }

func (e OrderReviewRequiredEvent) AggregateID() string { return e.OrderID }

func NewOrderReviewRequiredEvent(o *Order) OrderReviewRequiredEvent {
	return OrderReviewRequiredEvent{OrderID: o.ID, Reason: o.ReviewReason, OccurredAt: time.Now().UTC()}
}
