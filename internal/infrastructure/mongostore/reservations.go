package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "github.com/Zhima-Mochi/minishop-inventory/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-inventory/internal/domain/shared"
)

type ReservationRepository struct {
	col *mongo.Collection
}

func NewReservationRepository(db *mongo.Database) *ReservationRepository {
	return &ReservationRepository{col: db.Collection(colReservations)}
}

func (r *ReservationRepository) Insert(ctx context.Context, res *domain.Reservation) error {
	if res == nil || res.ID == "" {
		return fmt.Errorf("reservation repository: id is required")
	}
	_, err := r.col.InsertOne(ctx, reservationToDoc(res))
	return wrap("insert reservation", err, fmt.Errorf("reservation repository: %w", shared.ErrConflict))
}

func (r *ReservationRepository) Get(ctx context.Context, id string) (*domain.Reservation, error) {
	var d reservationDoc
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if isNotFound(err) {
		return nil, domain.ErrReservationNotFound
	}
	if err != nil {
		return nil, wrap("get reservation", err, nil)
	}
	return d.toDomain(), nil
}

func (r *ReservationRepository) Transition(ctx context.Context, id string, from, to domain.ReservationState) (*domain.Reservation, error) {
	var d reservationDoc
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "state": string(from)},
		bson.M{"$set": bson.M{"state": string(to), "updated_at": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&d)
	if isNotFound(err) {
		if _, err := r.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, domain.ErrReservationClosed
	}
	if err != nil {
		return nil, wrap("transition reservation", err, nil)
	}
	return d.toDomain(), nil
}

func (r *ReservationRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Reservation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "expires_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	filter := bson.M{
		"state":      string(domain.ReservationActive),
		"expires_at": bson.M{"$ne": nil, "$lte": now.UTC()},
	}
	return r.find(ctx, "list expired reservations", filter, opts)
}

func (r *ReservationRepository) ListByHolder(ctx context.Context, holderID string) ([]*domain.Reservation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	return r.find(ctx, "list reservations by holder", bson.M{"holder_id": holderID}, opts)
}

func (r *ReservationRepository) find(ctx context.Context, op string, filter bson.M, opts *options.FindOptions) ([]*domain.Reservation, error) {
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, wrap(op, err, nil)
	}
	var docs []reservationDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, wrap(op, err, nil)
	}
	out := make([]*domain.Reservation, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}
