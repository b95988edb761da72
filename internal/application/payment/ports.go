package payment

import (
	"context"

	domorder "github.com/Zhima-Mochi/minishop-inventory/internal/domain/order"
)

type IDGenerator interface {
	NewID() string
}

// OrderPort is the slice of the order lifecycle payment transitions drive.
type OrderPort interface {
	Get(ctx context.Context, orderID string) (*domorder.Order, error)
	OnPaymentSuccess(ctx context.Context, orderID, actor string) (*domorder.Order, error)
	OnPaymentFailure(ctx context.Context, orderID, reason, actor string) (*domorder.Order, error)
	// ApplyRefund reverses the order's stock, runs commit to persist the
	// refunded payment and cancels the order.
	ApplyRefund(ctx context.Context, orderID, reason, actor string, commit func(context.Context) error) (*domorder.Order, error)
}

// IdempotencyStore remembers processed gateway event ids. MarkProcessed
// reports true the first time it sees key.
type IdempotencyStore interface {
	MarkProcessed(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}
