// Package mongostore keeps the same aggregates as the relational store in
// MongoDB. Every write of a versioned document filters on {_id, version}.
package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	colProducts     = "products"
	colLedgers      = "stock_ledgers"
	colReservations = "stock_reservations"
	colOrders       = "orders"
	colPayments     = "payments"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials the deployment and pings it before returning.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongostore: ping: %w", err)
	}
	return &Store{client: client, db: client.Database(database)}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the lookup and uniqueness indexes the repositories
// rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	specs := map[string][]mongo.IndexModel{
		colReservations: {
			{Keys: bson.D{{Key: "state", Value: 1}, {Key: "expires_at", Value: 1}}},
			{Keys: bson.D{{Key: "holder_id", Value: 1}}},
		},
		colOrders: {
			{
				Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "idempotency_key", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.M{"idempotency_key": bson.M{"$type": "string"}}),
			},
		},
		colPayments: {
			{Keys: bson.D{{Key: "order_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}
	for col, models := range specs {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongostore: indexes on %s: %w", col, err)
		}
	}
	return nil
}

func (s *Store) Catalog() *CatalogRepository          { return NewCatalogRepository(s.db) }
func (s *Store) Ledgers() *LedgerRepository           { return NewLedgerRepository(s.db) }
func (s *Store) Reservations() *ReservationRepository { return NewReservationRepository(s.db) }
func (s *Store) Orders() *OrderRepository             { return NewOrderRepository(s.db) }
func (s *Store) Payments() *PaymentRepository         { return NewPaymentRepository(s.db) }

func isNotFound(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func wrap(op string, err error, onDuplicate error) error {
	if err == nil {
		return nil
	}
	if onDuplicate != nil && mongo.IsDuplicateKeyError(err) {
		return onDuplicate
	}
	return fmt.Errorf("mongostore: %s: %w", op, err)
}
