package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "github.com/Zhima-Mochi/minishop-inventory/internal/domain/catalog"
)

type CatalogRepository struct {
	col *mongo.Collection
}

func NewCatalogRepository(db *mongo.Database) *CatalogRepository {
	return &CatalogRepository{col: db.Collection(colProducts)}
}

func (r *CatalogRepository) Get(ctx context.Context, id string) (*domain.Product, error) {
	var d productDoc
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if isNotFound(err) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, wrap("get product", err, nil)
	}
	return d.toDomain(), nil
}

func (r *CatalogRepository) Save(ctx context.Context, p *domain.Product) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("catalog repository: id is required")
	}
	d := productToDoc(p)
	d.UpdatedAt = time.Now().UTC()
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": p.ID}, d, options.Replace().SetUpsert(true))
	return wrap("save product", err, nil)
}
