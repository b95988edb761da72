package inventory

import (
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-inventory/internal/domain/shared"
)

var (
	ErrReservationNotFound = fmt.Errorf("inventory: reservation not found: %w", shared.ErrNotFound)
	ErrReservationClosed   = &shared.StateError{Entity: "reservation", Message: "inventory: reservation is no longer active"}
)

type Reason string

const (
	ReasonCart      Reason = "cart"
	ReasonCheckout  Reason = "checkout"
	ReasonAdminHold Reason = "admin_hold"
)

func (r Reason) Valid() bool {
	switch r {
	case ReasonCart, ReasonCheckout, ReasonAdminHold:
		return true
	}
	return false
}

type ReservationState string

const (
	ReservationActive    ReservationState = "ACTIVE"
	ReservationReleased  ReservationState = "RELEASED"
	ReservationConfirmed ReservationState = "CONFIRMED"
	ReservationExpired   ReservationState = "EXPIRED"
	// ReservationRestocked marks a confirmed sale whose units went back to
	// on-hand stock after a cancellation or refund.
	ReservationRestocked ReservationState = "RESTOCKED"
	// ReservationTransferred marks a cart hold handed over to an order hold
	// at checkout. Its units stay reserved under the order.
	ReservationTransferred ReservationState = "TRANSFERRED"
)

// Reservation tracks one hold against a ledger so that it is released or
// confirmed exactly once.
type Reservation struct {
	ID        string
	ProductID string
	Quantity  int
	HolderID  string
	Reason    Reason
	State     ReservationState
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewReservation(id, productID, holderID string, qty int, reason Reason, expiresAt *time.Time) (*Reservation, error) {
	switch {
	case id == "":
		return nil, shared.NewValidationError("id", "is required")
	case productID == "":
		return nil, shared.NewValidationError("productId", "is required")
	case holderID == "":
		return nil, shared.NewValidationError("holderId", "is required")
	case qty <= 0:
		return nil, ErrInvalidQuantity
	case !reason.Valid():
		return nil, shared.NewValidationError("reason", fmt.Sprintf("unknown reservation reason %q", reason))
	}
	now := time.Now().UTC()
	return &Reservation{
		ID:        id,
		ProductID: productID,
		Quantity:  qty,
		HolderID:  holderID,
		Reason:    reason,
		State:     ReservationActive,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (r *Reservation) IsActive() bool { return r.State == ReservationActive }

// ExpiredAt reports whether an active hold has passed its expiry at now.
func (r *Reservation) ExpiredAt(now time.Time) bool {
	return r.IsActive() && r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

func (r *Reservation) Clone() *Reservation {
	if r == nil {
		return nil
	}
	c := *r
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

// StockLine is one product/quantity pair of a multi-line operation.
type StockLine struct {
	ProductID string
	Quantity  int
}
