package persistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	domain "github.com/Zhima-Mochi/minishop-inventory/internal/domain/payment"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Insert(ctx context.Context, p *domain.Payment) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("payment repository: id is required")
	}
	m := paymentFromDomain(p)
	m.Version = 1
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return translate("insert payment", err, domain.ErrConflict)
	}
	p.Version = 1
	return nil
}

func (r *PaymentRepository) Get(ctx context.Context, id string) (*domain.Payment, error) {
	return r.first(ctx, "get payment", r.db.Where("id = ?", id))
}

func (r *PaymentRepository) Update(ctx context.Context, p *domain.Payment) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("payment repository: id is required")
	}
	read := p.Version
	m := paymentFromDomain(p)
	m.Version = read + 1

	result := r.db.WithContext(ctx).
		Model(&paymentModel{}).
		Where("id = ? AND version = ?", p.ID, read).
		Select("*").Omit("id", "created_at").
		Updates(&m)
	if result.Error != nil {
		return translate("update payment", result.Error, nil)
	}
	if result.RowsAffected == 0 {
		if _, err := r.Get(ctx, p.ID); err != nil {
			return err
		}
		return domain.ErrConflict
	}
	p.Version = m.Version
	return nil
}

// FindByOrderID returns the latest payment of an order.
func (r *PaymentRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	return r.first(ctx, "find payment by order", r.db.Where("order_id = ?", orderID).Order("created_at DESC"))
}

func (r *PaymentRepository) first(ctx context.Context, op string, q *gorm.DB) (*domain.Payment, error) {
	var m paymentModel
	err := q.WithContext(ctx).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, translate(op, err, nil)
	}
	return m.toDomain(), nil
}
