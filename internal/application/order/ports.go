package order

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Zhima-Mochi/minishop-inventory/internal/application/cart"
	dominv "github.com/Zhima-Mochi/minishop-inventory/internal/domain/inventory"
	dompay "github.com/Zhima-Mochi/minishop-inventory/internal/domain/payment"
)

type IDGenerator interface {
	NewID() string
}

// CartValidator re-checks a cart at checkout. held counts units the
// customer already holds in cart holds.
type CartValidator interface {
	ValidateWithHolds(ctx context.Context, lines []cart.Line, held map[string]int) (*cart.Result, error)
}

// InventoryPort is the slice of the reservation manager the order lifecycle
// drives.
type InventoryPort interface {
	ReserveCheckout(ctx context.Context, orderID, cartHolderID string, lines []dominv.StockLine) ([]*dominv.Reservation, error)
	HeldByCart(ctx context.Context, holderID string) (map[string]int, error)
	ReleaseAll(ctx context.Context, reservationIDs []string) error
	ConfirmAll(ctx context.Context, reservationIDs []string) error
	UnconfirmAll(ctx context.Context, reservationIDs []string) error
	RestockAll(ctx context.Context, reservationIDs []string, reason string) error
	RollbackRestockAll(ctx context.Context, reservationIDs []string) error
}

// PaymentPort is what the order lifecycle asks of payments. Submit may call
// back into the lifecycle on a gateway error, so it is never called while an
// order lock is held.
type PaymentPort interface {
	Initiate(ctx context.Context, orderID string, amount decimal.Decimal, method dompay.Method) (*dompay.Payment, error)
	Submit(ctx context.Context, paymentID string) (*dompay.Payment, error)
	// Void closes a payment whose order is cancelled before it was paid. A
	// payment that already succeeded is refunded in full.
	Void(ctx context.Context, paymentID, reason string) (*dompay.Payment, error)
	RefundForOrder(ctx context.Context, orderID, reason string) (*dompay.Payment, error)
	SettleCOD(ctx context.Context, orderID string) (*dompay.Payment, error)
}
