package mongostore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "github.com/Zhima-Mochi/minishop-inventory/internal/domain/payment"
)

type PaymentRepository struct {
	col *mongo.Collection
}

func NewPaymentRepository(db *mongo.Database) *PaymentRepository {
	return &PaymentRepository{col: db.Collection(colPayments)}
}

func (r *PaymentRepository) Insert(ctx context.Context, p *domain.Payment) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("payment repository: id is required")
	}
	d := paymentToDoc(p)
	d.Version = 1
	if _, err := r.col.InsertOne(ctx, d); err != nil {
		return wrap("insert payment", err, domain.ErrConflict)
	}
	p.Version = 1
	return nil
}

func (r *PaymentRepository) Get(ctx context.Context, id string) (*domain.Payment, error) {
	return r.findOne(ctx, "get payment", bson.M{"_id": id})
}

func (r *PaymentRepository) Update(ctx context.Context, p *domain.Payment) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("payment repository: id is required")
	}
	read := p.Version
	d := paymentToDoc(p)
	d.Version = read + 1

	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": p.ID, "version": read}, d)
	if err != nil {
		return wrap("update payment", err, nil)
	}
	if res.MatchedCount == 0 {
		if _, err := r.Get(ctx, p.ID); err != nil {
			return err
		}
		return domain.ErrConflict
	}
	p.Version = d.Version
	return nil
}

// FindByOrderID returns the latest payment of an order.
func (r *PaymentRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return r.findOne(ctx, "find payment by order", bson.M{"order_id": orderID}, opts)
}

func (r *PaymentRepository) findOne(ctx context.Context, op string, filter bson.M, opts ...*options.FindOneOptions) (*domain.Payment, error) {
	var d paymentDoc
	err := r.col.FindOne(ctx, filter, opts...).Decode(&d)
	if isNotFound(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, wrap(op, err, nil)
	}
	return d.toDomain(), nil
}
