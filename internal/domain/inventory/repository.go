package inventory

import (
	"context"
	"time"
)

// LedgerRepository persists ledgers. Update is the only write path for an
// existing ledger: it applies fn to the current state and stores the result
// as one conditional step, returning an error wrapping shared.ErrConflict
// when another writer got there first. When fn fails nothing is stored.
type LedgerRepository interface {
	Create(ctx context.Context, l *Ledger) error
	Get(ctx context.Context, productID string) (*Ledger, error)
	Update(ctx context.Context, productID string, fn func(l *Ledger) error) (*Ledger, error)
}

// ReservationRepository persists hold records. Transition moves a record from
// one state to another only if it is still in from, otherwise it returns
// ErrReservationClosed.
type ReservationRepository interface {
	Insert(ctx context.Context, r *Reservation) error
	Get(ctx context.Context, id string) (*Reservation, error)
	Transition(ctx context.Context, id string, from, to ReservationState) (*Reservation, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*Reservation, error)
	ListByHolder(ctx context.Context, holderID string) ([]*Reservation, error)
}
