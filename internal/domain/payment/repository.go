package payment

import "context"

// Repository persists payments. Update succeeds only when the stored version
// equals p.Version and bumps p.Version on success.
type Repository interface {
	Insert(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)
	Update(ctx context.Context, p *Payment) error
	FindByOrderID(ctx context.Context, orderID string) (*Payment, error)
}
