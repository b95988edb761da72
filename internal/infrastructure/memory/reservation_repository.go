package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	domain "github.com/Zhima-Mochi/minishop-inventory/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-inventory/internal/domain/shared"
)

type ReservationRepository struct {
	mu           sync.RWMutex
	reservations map[string]*domain.Reservation
}

func NewReservationRepository() *ReservationRepository {
	return &ReservationRepository{reservations: make(map[string]*domain.Reservation)}
}

func (r *ReservationRepository) Insert(ctx context.Context, res *domain.Reservation) error {
	_ = ctx
	if res == nil || res.ID == "" {
		return fmt.Errorf("reservation repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.reservations[res.ID]; exists {
		return fmt.Errorf("reservation repository: %w", shared.ErrConflict)
	}
	r.reservations[res.ID] = res.Clone()
	return nil
}

func (r *ReservationRepository) Get(ctx context.Context, id string) (*domain.Reservation, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.reservations[id]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	return res.Clone(), nil
}

func (r *ReservationRepository) Transition(ctx context.Context, id string, from, to domain.ReservationState) (*domain.Reservation, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.reservations[id]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	if res.State != from {
		return nil, domain.ErrReservationClosed
	}
	res.State = to
	res.UpdatedAt = time.Now().UTC()
	return res.Clone(), nil
}

func (r *ReservationRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Reservation, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Reservation
	for _, res := range r.reservations {
		if res.ExpiredAt(now) {
			out = append(out, res.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *ReservationRepository) ListByHolder(ctx context.Context, holderID string) ([]*domain.Reservation, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Reservation
	for _, res := range r.reservations {
		if res.HolderID == holderID {
			out = append(out, res.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
