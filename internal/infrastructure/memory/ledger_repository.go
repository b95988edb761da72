package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	domain "github.com/Zhima-Mochi/minishop-inventory/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-inventory/internal/pkg/keylock"
)

// LedgerRepository keeps ledgers in process. Update holds the product's lock
// across read, apply and write, so concurrent updates of one product are
// serialized and never lose a write.
type LedgerRepository struct {
	mu      sync.RWMutex
	ledgers map[string]*domain.Ledger
	locks   *keylock.Locker
}

func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{
		ledgers: make(map[string]*domain.Ledger),
		locks:   keylock.New(),
	}
}

func (r *LedgerRepository) Create(ctx context.Context, l *domain.Ledger) error {
	_ = ctx
	if l == nil || l.ProductID == "" {
		return fmt.Errorf("ledger repository: product id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ledgers[l.ProductID]; exists {
		return domain.ErrLedgerExists
	}
	stored := l.Clone()
	stored.Version = 1
	r.ledgers[l.ProductID] = stored
	l.Version = stored.Version
	return nil
}

func (r *LedgerRepository) Get(ctx context.Context, productID string) (*domain.Ledger, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.ledgers[productID]
	if !ok {
		return nil, domain.ErrLedgerNotFound
	}
	return l.Clone(), nil
}

func (r *LedgerRepository) Update(ctx context.Context, productID string, fn func(*domain.Ledger) error) (*domain.Ledger, error) {
	unlock := r.locks.Lock(productID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	current, err := r.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := fn(current); err != nil {
		return nil, err
	}
	current.Version++
	current.UpdatedAt = time.Now().UTC()

	r.mu.Lock()
	r.ledgers[productID] = current.Clone()
	r.mu.Unlock()

	return current, nil
}
