package order

import "context"

// Repository persists orders. Update succeeds only when the stored version
// equals o.Version and bumps o.Version on success; a stale write returns
// ErrConflict.
type Repository interface {
	Insert(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, o *Order) error
	FindByIdempotency(ctx context.Context, customerID, key string) (*Order, error)
}
