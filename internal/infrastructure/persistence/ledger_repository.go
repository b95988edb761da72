package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	domain "github.com/Zhima-Mochi/minishop-inventory/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-inventory/internal/domain/shared"
)

// LedgerRepository keeps one row per product. Update is a compare-and-swap
// on the version column: a writer that read a stale row changes nothing and
// gets ErrConflict, and the caller retries with a fresh read.
type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Create(ctx context.Context, l *domain.Ledger) error {
	if l == nil || l.ProductID == "" {
		return fmt.Errorf("ledger repository: product id is required")
	}
	m := ledgerFromDomain(l)
	m.Version = 1
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return translate("create ledger", err, domain.ErrLedgerExists)
	}
	l.Version = m.Version
	return nil
}

func (r *LedgerRepository) Get(ctx context.Context, productID string) (*domain.Ledger, error) {
	var m ledgerModel
	err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrLedgerNotFound
	}
	if err != nil {
		return nil, translate("get ledger", err, nil)
	}
	return m.toDomain(), nil
}

func (r *LedgerRepository) Update(ctx context.Context, productID string, fn func(*domain.Ledger) error) (*domain.Ledger, error) {
	current, err := r.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	read := current.Version
	if err := fn(current); err != nil {
		return nil, err
	}
	current.Version = read + 1
	current.UpdatedAt = time.Now().UTC()

	result := r.db.WithContext(ctx).
		Model(&ledgerModel{}).
		Where("product_id = ? AND version = ?", productID, read).
		Updates(map[string]any{
			"quantity_on_hand":  current.QuantityOnHand,
			"quantity_reserved": current.QuantityReserved,
			"quantity_locked":   current.QuantityLocked,
			"reorder_level":     current.ReorderLevel,
			"max_stock_level":   current.MaxStockLevel,
			"version":           current.Version,
			"updated_at":        current.UpdatedAt,
		})
	if result.Error != nil {
		return nil, translate("update ledger", result.Error, nil)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("ledger %s changed since version %d: %w", productID, read, shared.ErrConflict)
	}
	return current, nil
}
