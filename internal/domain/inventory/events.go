package inventory

import "time"

// StockReservedEvent is emitted when a hold is placed against a ledger.
type StockReservedEvent struct {
	ReservationID string
	ProductID     string
	HolderID      string
	Reason        Reason
	Quantity      int
	Available     int
	OccurredAt    time.Time
}

func (StockReservedEvent) EventName() string { return "inventory.reserved" }

func (e StockReservedEvent) AggregateID() string { return e.ProductID }

func NewStockReservedEvent(r *Reservation, l *Ledger) StockReservedEvent {
	return StockReservedEvent{
		ReservationID: r.ID,
		ProductID:     r.ProductID,
		HolderID:      r.HolderID,
		Reason:        r.Reason,
		Quantity:      r.Quantity,
		Available:     l.AvailableForSale(),
		OccurredAt:    time.Now().UTC(),
	}
}

// StockReleasedEvent is emitted when a hold is released or expires.
type StockReleasedEvent struct {
	ReservationID string
	ProductID     string
	HolderID      string
	Quantity      int
	Expired       bool
	OccurredAt    time.Time
}

func (e StockReleasedEvent) EventName() string {
	if e.Expired {
		return "inventory.hold_expired"
	}
	return "inventory.released"
}

func (e StockReleasedEvent) AggregateID() string { return e.ProductID }

func NewStockReleasedEvent(r *Reservation, released int, expired bool) StockReleasedEvent {
	return StockReleasedEvent{
		ReservationID: r.ID,
		ProductID:     r.ProductID,
		HolderID:      r.HolderID,
		Quantity:      released,
		Expired:       expired,
		OccurredAt:    time.Now().UTC(),
	}
}

// StockConfirmedEvent is emitted when reserved units are consumed by a sale.
type StockConfirmedEvent struct {
	ReservationID string
	ProductID     string
	HolderID      string
	Quantity      int
	OnHand        int
	OccurredAt    time.Time
}

func (StockConfirmedEvent) EventName() string { return "inventory.confirmed" }

func (e StockConfirmedEvent) AggregateID() string { return e.ProductID }

func NewStockConfirmedEvent(r *Reservation, l *Ledger) StockConfirmedEvent {
	return StockConfirmedEvent{
		ReservationID: r.ID,
		ProductID:     r.ProductID,
		HolderID:      r.HolderID,
		Quantity:      r.Quantity,
		OnHand:        l.QuantityOnHand,
		OccurredAt:    time.Now().UTC(),
	}
}

// StockAdjustedEvent covers administrative adjustments, restocks and lock
// changes. Kind tells them apart.
type StockAdjustedEvent struct {
	ProductID  string
	Kind       string
	Delta      int
	Reason     string
	OnHand     int
	Reserved   int
	Locked     int
	OccurredAt time.Time
}

func (e StockAdjustedEvent) EventName() string {
	if e.Kind == AdjustmentRestock {
		return "inventory.restocked"
	}
	return "inventory.adjusted"
}

func (e StockAdjustedEvent) AggregateID() string { return e.ProductID }

const (
	AdjustmentOnHand   = "on_hand"
	AdjustmentRestock  = "restock"
	AdjustmentLock     = "lock"
	AdjustmentUnlock   = "unlock"
	AdjustmentRollback = "restock_rollback"
)

func NewStockAdjustedEvent(l *Ledger, kind string, delta int, reason string) StockAdjustedEvent {
	return StockAdjustedEvent{
		ProductID:  l.ProductID,
		Kind:       kind,
		Delta:      delta,
		Reason:     reason,
		OnHand:     l.QuantityOnHand,
		Reserved:   l.QuantityReserved,
		Locked:     l.QuantityLocked,
		OccurredAt: time.Now().UTC(),
	}
}

// LowStockEvent is emitted when on-hand stock crosses the reorder level.
type LowStockEvent struct {
	ProductID    string
	OnHand       int
	ReorderLevel int
	OccurredAt   time.Time
}

func (LowStockEvent) EventName() string { return "inventory.low_stock" }

func (e LowStockEvent) AggregateID() string { return e.ProductID }

func NewLowStockEvent(l *Ledger) LowStockEvent {
	return LowStockEvent{
		ProductID:    l.ProductID,
		OnHand:       l.QuantityOnHand,
		ReorderLevel: l.ReorderLevel,
		OccurredAt:   time.Now().UTC(),
	}
}
