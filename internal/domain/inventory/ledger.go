package inventory

import (
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-inventory/internal/domain/shared"
)

var (
	ErrLedgerNotFound   = fmt.Errorf("inventory: ledger not found: %w", shared.ErrNotFound)
	ErrLedgerExists     = fmt.Errorf("inventory: ledger already exists: %w", shared.ErrConflict)
	ErrInvalidQuantity  = shared.NewValidationError("quantity", "must be greater than zero")
	ErrReasonRequired   = shared.NewValidationError("reason", "is required")
	ErrInvalidMaxStock  = shared.NewValidationError("maxStockLevel", "must be greater than zero")
	ErrInvalidThreshold = shared.NewValidationError("reorderLevel", "must not be negative")
)

// Ledger holds the authoritative stock counters of one product. Every
// mutation validates the resulting counters before it is applied, so a
// rejected operation leaves the ledger untouched.
type Ledger struct {
	ProductID        string
	QuantityOnHand   int
	QuantityReserved int
	QuantityLocked   int
	ReorderLevel     int
	MaxStockLevel    int
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Availability is the read model exposed to shoppers.
type Availability struct {
	ProductID        string `json:"product_id"`
	AvailableForSale int    `json:"available_for_sale"`
	IsLowStock       bool   `json:"is_low_stock"`
	IsOutOfStock     bool   `json:"is_out_of_stock"`
}

func NewLedger(productID string, onHand, reorderLevel, maxStockLevel int) (*Ledger, error) {
	if productID == "" {
		return nil, shared.NewValidationError("productId", "is required")
	}
	if maxStockLevel <= 0 {
		return nil, ErrInvalidMaxStock
	}
	if reorderLevel < 0 {
		return nil, ErrInvalidThreshold
	}
	now := time.Now().UTC()
	l := &Ledger{
		ProductID:     productID,
		ReorderLevel:  reorderLevel,
		MaxStockLevel: maxStockLevel,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := l.apply(onHand, 0, 0); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) TotalStock() int {
	return l.QuantityOnHand + l.QuantityReserved + l.QuantityLocked
}

func (l *Ledger) AvailableForSale() int {
	return max(0, l.QuantityOnHand-l.QuantityReserved-l.QuantityLocked)
}

func (l *Ledger) IsLowStock() bool { return l.QuantityOnHand <= l.ReorderLevel }

func (l *Ledger) IsOutOfStock() bool { return l.AvailableForSale() <= 0 }

func (l *Ledger) Availability() Availability {
	return Availability{
		ProductID:        l.ProductID,
		AvailableForSale: l.AvailableForSale(),
		IsLowStock:       l.IsLowStock(),
		IsOutOfStock:     l.IsOutOfStock(),
	}
}

// AdjustOnHand records an administrative restock (delta > 0) or write-off
// (delta < 0).
func (l *Ledger) AdjustOnHand(delta int, reason string) error {
	if reason == "" {
		return ErrReasonRequired
	}
	if delta == 0 {
		return shared.NewValidationError("delta", "must not be zero")
	}
	return l.apply(l.QuantityOnHand+delta, l.QuantityReserved, l.QuantityLocked)
}

// Reserve holds qty units for a cart or order. The availability check and
// the increment are one step on the receiver; the repository makes that step
// atomic against concurrent writers.
func (l *Ledger) Reserve(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if available := l.AvailableForSale(); available < qty {
		return &shared.InsufficientStockError{ProductID: l.ProductID, Requested: qty, Available: available}
	}
	return l.apply(l.QuantityOnHand, l.QuantityReserved+qty, l.QuantityLocked)
}

// Release returns up to qty reserved units to sale and reports how many were
// actually released.
func (l *Ledger) Release(qty int) (int, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}
	released := min(qty, l.QuantityReserved)
	if released == 0 {
		return 0, nil
	}
	return released, l.apply(l.QuantityOnHand, l.QuantityReserved-released, l.QuantityLocked)
}

// Confirm consumes qty reserved units as a completed sale.
func (l *Ledger) Confirm(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if l.QuantityReserved < qty || l.QuantityOnHand < qty {
		return &shared.StateError{
			Entity:    "ledger",
			ID:        l.ProductID,
			Current:   fmt.Sprintf("onHand=%d reserved=%d", l.QuantityOnHand, l.QuantityReserved),
			Message:   fmt.Sprintf("inventory: cannot confirm %d units of %s: onHand=%d reserved=%d", qty, l.ProductID, l.QuantityOnHand, l.QuantityReserved),
			Invariant: true,
		}
	}
	return l.apply(l.QuantityOnHand-qty, l.QuantityReserved-qty, l.QuantityLocked)
}

// Unconfirm is the inverse of Confirm, used when a later step of the same
// saga fails.
func (l *Ledger) Unconfirm(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	return l.apply(l.QuantityOnHand+qty, l.QuantityReserved+qty, l.QuantityLocked)
}

// Restock returns units of a confirmed sale to on-hand stock.
func (l *Ledger) Restock(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	return l.apply(l.QuantityOnHand+qty, l.QuantityReserved, l.QuantityLocked)
}

// Lock freezes qty sellable units (damage, quality hold).
func (l *Ledger) Lock(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if available := l.AvailableForSale(); available < qty {
		return &shared.InsufficientStockError{ProductID: l.ProductID, Requested: qty, Available: available}
	}
	return l.apply(l.QuantityOnHand, l.QuantityReserved, l.QuantityLocked+qty)
}

// Unlock releases up to qty locked units and reports how many were unlocked.
func (l *Ledger) Unlock(qty int) (int, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}
	unlocked := min(qty, l.QuantityLocked)
	if unlocked == 0 {
		return 0, nil
	}
	return unlocked, l.apply(l.QuantityOnHand, l.QuantityReserved, l.QuantityLocked-unlocked)
}

// Validate checks the counters against the ledger invariants.
func (l *Ledger) Validate() error {
	return validateCounters(l.QuantityOnHand, l.QuantityReserved, l.QuantityLocked, l.MaxStockLevel)
}

func (l *Ledger) Clone() *Ledger {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}

func (l *Ledger) apply(onHand, reserved, locked int) error {
	if err := validateCounters(onHand, reserved, locked, l.MaxStockLevel); err != nil {
		return err
	}
	l.QuantityOnHand = onHand
	l.QuantityReserved = reserved
	l.QuantityLocked = locked
	l.UpdatedAt = time.Now().UTC()
	return nil
}

func validateCounters(onHand, reserved, locked, maxStock int) error {
	switch {
	case onHand < 0:
		return shared.NewValidationError("quantityOnHand", "must not be negative")
	case reserved < 0:
		return shared.NewValidationError("quantityReserved", "must not be negative")
	case locked < 0:
		return shared.NewValidationError("quantityLocked", "must not be negative")
	case onHand+reserved+locked > maxStock:
		return shared.NewValidationError("totalStock",
			fmt.Sprintf("%d exceeds max stock level %d", onHand+reserved+locked, maxStock))
	}
	return nil
}
