package mongostore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	domain "github.com/Zhima-Mochi/minishop-inventory/internal/domain/order"
)

type OrderRepository struct {
	col *mongo.Collection
}

func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{col: db.Collection(colOrders)}
}

func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}
	d := orderToDoc(o)
	d.Version = 1
	if _, err := r.col.InsertOne(ctx, d); err != nil {
		return wrap("insert order", err, domain.ErrConflict)
	}
	o.Version = 1
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	return r.findOne(ctx, "get order", bson.M{"_id": id})
}

func (r *OrderRepository) Update(ctx context.Context, o *domain.Order) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}
	read := o.Version
	d := orderToDoc(o)
	d.Version = read + 1

	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": o.ID, "version": read}, d)
	if err != nil {
		return wrap("update order", err, nil)
	}
	if res.MatchedCount == 0 {
		if _, err := r.Get(ctx, o.ID); err != nil {
			return err
		}
		return domain.ErrConflict
	}
	o.Version = d.Version
	return nil
}

func (r *OrderRepository) FindByIdempotency(ctx context.Context, customerID, key string) (*domain.Order, error) {
	if key == "" {
		return nil, domain.ErrNotFound
	}
	return r.findOne(ctx, "find order by idempotency key", bson.M{"customer_id": customerID, "idempotency_key": key})
}

func (r *OrderRepository) findOne(ctx context.Context, op string, filter bson.M) (*domain.Order, error) {
	var d orderDoc
	err := r.col.FindOne(ctx, filter).Decode(&d)
	if isNotFound(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, wrap(op, err, nil)
	}
	return d.toDomain(), nil
}
