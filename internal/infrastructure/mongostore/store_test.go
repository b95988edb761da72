package mongostore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	dominv "github.com/Zhima-Mochi/minishop-inventory/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-inventory/internal/domain/shared"
)

func ns(mt *mtest.T, col string) string { return mt.DB.Name() + "." + col }

func ledgerDocument(version int64) bson.D {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	return bson.D{
		{Key: "_id", Value: "sku-1"},
		{Key: "quantity_on_hand", Value: 10},
		{Key: "quantity_reserved", Value: 2},
		{Key: "quantity_locked", Value: 0},
		{Key: "reorder_level", Value: 1},
		{Key: "max_stock_level", Value: 100},
		{Key: "version", Value: version},
		{Key: "created_at", Value: now},
		{Key: "updated_at", Value: now},
	}
}

func TestLedgerRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("update writes when version matches", func(mt *mtest.T) {
		repo := NewLedgerRepository(mt.DB)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns(mt, colLedgers), mtest.FirstBatch, ledgerDocument(4)),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
		)

		l, err := repo.Update(context.Background(), "sku-1", func(l *dominv.Ledger) error { return l.Reserve(3) })
		require.NoError(t, err)
		assert.Equal(t, 5, l.QuantityReserved)
		assert.EqualValues(t, 5, l.Version)
	})

	mt.Run("update reports a conflict when nothing matched", func(mt *mtest.T) {
		repo := NewLedgerRepository(mt.DB)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns(mt, colLedgers), mtest.FirstBatch, ledgerDocument(4)),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
		)

		_, err := repo.Update(context.Background(), "sku-1", func(l *dominv.Ledger) error { return l.Reserve(3) })
		assert.ErrorIs(t, err, shared.ErrConflict)
	})

	mt.Run("rejected mutation sends no write", func(mt *mtest.T) {
		repo := NewLedgerRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt, colLedgers), mtest.FirstBatch, ledgerDocument(4)))

		_, err := repo.Update(context.Background(), "sku-1", func(l *dominv.Ledger) error { return l.Reserve(9) })
		assert.ErrorIs(t, err, shared.ErrInsufficientStock)
	})

	mt.Run("missing ledger", func(mt *mtest.T) {
		repo := NewLedgerRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt, colLedgers), mtest.FirstBatch))

		_, err := repo.Get(context.Background(), "sku-1")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	mt.Run("duplicate create", func(mt *mtest.T) {
		repo := NewLedgerRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index: 0, Code: 11000, Message: "duplicate key error",
		}))

		l, err := dominv.NewLedger("sku-1", 1, 0, 10)
		require.NoError(t, err)
		assert.ErrorIs(t, repo.Create(context.Background(), l), shared.ErrConflict)
	})
}

func TestReservationTransition(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	doc := func(state dominv.ReservationState) bson.D {
		return bson.D{
			{Key: "_id", Value: "res-1"},
			{Key: "product_id", Value: "sku-1"},
			{Key: "quantity", Value: 2},
			{Key: "holder_id", Value: "cart-1"},
			{Key: "reason", Value: string(dominv.ReasonCart)},
			{Key: "state", Value: string(state)},
			{Key: "created_at", Value: now},
			{Key: "updated_at", Value: now},
		}
	}

	mt.Run("moves an active hold", func(mt *mtest.T) {
		repo := NewReservationRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: doc(dominv.ReservationReleased)}))

		r, err := repo.Transition(context.Background(), "res-1", dominv.ReservationActive, dominv.ReservationReleased)
		require.NoError(t, err)
		assert.Equal(t, dominv.ReservationReleased, r.State)
		assert.Nil(t, r.ExpiresAt)
	})

	mt.Run("closed hold is not moved twice", func(mt *mtest.T) {
		repo := NewReservationRepository(mt.DB)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}),
			mtest.CreateCursorResponse(0, ns(mt, colReservations), mtest.FirstBatch, doc(dominv.ReservationConfirmed)),
		)

		_, err := repo.Transition(context.Background(), "res-1", dominv.ReservationActive, dominv.ReservationReleased)
		assert.ErrorIs(t, err, shared.ErrState)
	})
}
