package persistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	domain "github.com/Zhima-Mochi/minishop-inventory/internal/domain/order"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Insert fails with ErrConflict on a duplicate id or a reused
// (customer, idempotency key) pair.
func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}
	m := orderFromDomain(o)
	m.Version = 1
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return translate("insert order", err, domain.ErrConflict)
	}
	o.Version = 1
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	return r.first(ctx, "get order", r.db.Where("id = ?", id))
}

func (r *OrderRepository) Update(ctx context.Context, o *domain.Order) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}
	read := o.Version
	m := orderFromDomain(o)
	m.Version = read + 1

	result := r.db.WithContext(ctx).
		Model(&orderModel{}).
		Where("id = ? AND version = ?", o.ID, read).
		Select("*").Omit("id", "created_at").
		Updates(&m)
	if result.Error != nil {
		return translate("update order", result.Error, nil)
	}
	if result.RowsAffected == 0 {
		if _, err := r.Get(ctx, o.ID); err != nil {
			return err
		}
		return domain.ErrConflict
	}
	o.Version = m.Version
	return nil
}

func (r *OrderRepository) FindByIdempotency(ctx context.Context, customerID, key string) (*domain.Order, error) {
	if key == "" {
		return nil, domain.ErrNotFound
	}
	return r.first(ctx, "find order by idempotency key",
		r.db.Where("customer_id = ? AND idempotency_key = ?", customerID, key))
}

func (r *OrderRepository) first(ctx context.Context, op string, q *gorm.DB) (*domain.Order, error) {
	var m orderModel
	err := q.WithContext(ctx).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, translate(op, err, nil)
	}
	return m.toDomain(), nil
}
