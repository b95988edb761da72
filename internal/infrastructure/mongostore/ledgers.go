package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	domain "github.com/Zhima-Mochi/minishop-inventory/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-inventory/internal/domain/shared"
)

type LedgerRepository struct {
	col *mongo.Collection
}

func NewLedgerRepository(db *mongo.Database) *LedgerRepository {
	return &LedgerRepository{col: db.Collection(colLedgers)}
}

func (r *LedgerRepository) Create(ctx context.Context, l *domain.Ledger) error {
	if l == nil || l.ProductID == "" {
		return fmt.Errorf("ledger repository: product id is required")
	}
	d := ledgerToDoc(l)
	d.Version = 1
	if _, err := r.col.InsertOne(ctx, d); err != nil {
		return wrap("create ledger", err, domain.ErrLedgerExists)
	}
	l.Version = 1
	return nil
}

func (r *LedgerRepository) Get(ctx context.Context, productID string) (*domain.Ledger, error) {
	var d ledgerDoc
	err := r.col.FindOne(ctx, bson.M{"_id": productID}).Decode(&d)
	if isNotFound(err) {
		return nil, domain.ErrLedgerNotFound
	}
	if err != nil {
		return nil, wrap("get ledger", err, nil)
	}
	return d.toDomain(), nil
}

// Update writes only if the document still carries the version that was
// read; otherwise the caller sees ErrConflict and retries.
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

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": productID, "version": read},
		bson.M{"$set": bson.M{
			"quantity_on_hand":  current.QuantityOnHand,
			"quantity_reserved": current.QuantityReserved,
			"quantity_locked":   current.QuantityLocked,
			"reorder_level":     current.ReorderLevel,
			"max_stock_level":   current.MaxStockLevel,
			"version":           current.Version,
			"updated_at":        current.UpdatedAt,
		}},
	)
	if err != nil {
		return nil, wrap("update ledger", err, nil)
	}
	if res.MatchedCount == 0 {
		return nil, fmt.Errorf("ledger %s changed since version %d: %w", productID, read, shared.ErrConflict)
	}
	return current, nil
}
