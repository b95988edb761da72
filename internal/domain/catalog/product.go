package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Zhima-Mochi/minishop-inventory/internal/domain/shared"
)

var ErrProductNotFound = fmt.Errorf("catalog: product not found: %w", shared.ErrNotFound)

// Product is the slice of the catalog the checkout path reads.
type Product struct {
	ID           string
	Name         string
	SellingPrice decimal.Decimal
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func NewProduct(id, name string, price decimal.Decimal) (*Product, error) {
	if id == "" {
		return nil, shared.NewValidationError("id", "is required")
	}
	if name == "" {
		return nil, shared.NewValidationError("name", "is required")
	}
	if price.IsNegative() {
		return nil, shared.NewValidationError("sellingPrice", "must not be negative")
	}
	now := time.Now().UTC()
	return &Product{ID: id, Name: name, SellingPrice: price, Active: true, CreatedAt: now, UpdatedAt: now}, nil
}

func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

type Repository interface {
	Get(ctx context.Context, id string) (*Product, error)
	Save(ctx context.Context, p *Product) error
}
