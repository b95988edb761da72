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

type ReservationRepository struct {
	db *gorm.DB
}

func NewReservationRepository(db *gorm.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) Insert(ctx context.Context, res *domain.Reservation) error {
	if res == nil || res.ID == "" {
		return fmt.Errorf("reservation repository: id is required")
	}
	m := reservationFromDomain(res)
	err := r.db.WithContext(ctx).Create(&m).Error
	return translate("insert reservation", err, fmt.Errorf("reservation repository: %w", shared.ErrConflict))
}

func (r *ReservationRepository) Get(ctx context.Context, id string) (*domain.Reservation, error) {
	var m reservationModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrReservationNotFound
	}
	if err != nil {
		return nil, translate("get reservation", err, nil)
	}
	return m.toDomain(), nil
}

// Transition is a conditional update on state, so of two concurrent
// closers exactly one sees a changed row.
func (r *ReservationRepository) Transition(ctx context.Context, id string, from, to domain.ReservationState) (*domain.Reservation, error) {
	result := r.db.WithContext(ctx).
		Model(&reservationModel{}).
		Where("id = ? AND state = ?", id, string(from)).
		Updates(map[string]any{"state": string(to), "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return nil, translate("transition reservation", result.Error, nil)
	}
	if result.RowsAffected == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, domain.ErrReservationClosed
	}
	return r.Get(ctx, id)
}

func (r *ReservationRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Reservation, error) {
	q := r.db.WithContext(ctx).
		Where("state = ? AND expires_at IS NOT NULL AND expires_at <= ?", string(domain.ReservationActive), now.UTC()).
		Order("expires_at")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []reservationModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, translate("list expired reservations", err, nil)
	}
	return toReservations(rows), nil
}

func (r *ReservationRepository) ListByHolder(ctx context.Context, holderID string) ([]*domain.Reservation, error) {
	var rows []reservationModel
	err := r.db.WithContext(ctx).Where("holder_id = ?", holderID).Order("created_at").Find(&rows).Error
	if err != nil {
		return nil, translate("list reservations by holder", err, nil)
	}
	return toReservations(rows), nil
}

func toReservations(rows []reservationModel) []*domain.Reservation {
	out := make([]*domain.Reservation, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toDomain())
	}
	return out
}
