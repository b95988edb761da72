package inventory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/minishop-inventory/internal/domain/shared"
)

func newTestLedger(t *testing.T, onHand int) *Ledger {
	t.Helper()
	l, err := NewLedger("sku-1", onHand, 2, 1000)
	require.NoError(t, err)
	return l
}

func TestNewLedger(t *testing.T) {
	t.Run("rejects non positive max stock", func(t *testing.T) {
		_, err := NewLedger("sku-1", 0, 0, 0)
		assert.ErrorIs(t, err, shared.ErrValidation)
	})
	t.Run("rejects on hand above max", func(t *testing.T) {
		_, err := NewLedger("sku-1", 11, 0, 10)
		assert.ErrorIs(t, err, shared.ErrValidation)
	})
	t.Run("derived values", func(t *testing.T) {
		l := newTestLedger(t, 10)
		assert.Equal(t, 10, l.TotalStock())
		assert.Equal(t, 10, l.AvailableForSale())
		assert.False(t, l.IsLowStock())
		assert.False(t, l.IsOutOfStock())
	})
}

func TestReserveReleaseConfirm(t *testing.T) {
	t.Run("reserve reduces availability", func(t *testing.T) {
		l := newTestLedger(t, 10)
		require.NoError(t, l.Reserve(6))
		assert.Equal(t, 6, l.QuantityReserved)
		assert.Equal(t, 4, l.AvailableForSale())
	})

	t.Run("reserve beyond availability reports available", func(t *testing.T) {
		l := newTestLedger(t, 10)
		require.NoError(t, l.Reserve(6))

		err := l.Reserve(6)
		var ise *shared.InsufficientStockError
		require.True(t, errors.As(err, &ise))
		assert.Equal(t, 4, ise.Available)
		assert.Equal(t, 6, l.QuantityReserved)
	})

	t.Run("confirm consumes on hand and reserved", func(t *testing.T) {
		l := newTestLedger(t, 10)
		require.NoError(t, l.Reserve(6))
		require.NoError(t, l.Confirm(6))
		assert.Equal(t, 4, l.QuantityOnHand)
		assert.Equal(t, 0, l.QuantityReserved)
		assert.Equal(t, 4, l.AvailableForSale())
	})

	t.Run("confirm without reservation is an invariant violation", func(t *testing.T) {
		l := newTestLedger(t, 10)
		err := l.Confirm(1)
		assert.ErrorIs(t, err, shared.ErrState)
		assert.True(t, shared.IsInvariantViolation(err))
		assert.Equal(t, 10, l.QuantityOnHand)
	})

	t.Run("release is clamped", func(t *testing.T) {
		l := newTestLedger(t, 10)
		require.NoError(t, l.Reserve(2))
		released, err := l.Release(5)
		require.NoError(t, err)
		assert.Equal(t, 2, released)
		assert.Equal(t, 0, l.QuantityReserved)

		released, err = l.Release(1)
		require.NoError(t, err)
		assert.Zero(t, released)
	})

	t.Run("unconfirm inverts confirm", func(t *testing.T) {
		l := newTestLedger(t, 10)
		require.NoError(t, l.Reserve(3))
		before := *l
		require.NoError(t, l.Confirm(3))
		require.NoError(t, l.Unconfirm(3))
		assert.Equal(t, before.QuantityOnHand, l.QuantityOnHand)
		assert.Equal(t, before.QuantityReserved, l.QuantityReserved)
	})

	t.Run("non positive quantities are rejected", func(t *testing.T) {
		l := newTestLedger(t, 10)
		assert.ErrorIs(t, l.Reserve(0), shared.ErrValidation)
		assert.ErrorIs(t, l.Confirm(-1), shared.ErrValidation)
		assert.ErrorIs(t, l.Restock(0), shared.ErrValidation)
	})
}

func TestReserveRespectsMaxStockLevel(t *testing.T) {
	l, err := NewLedger("sku-1", 8, 0, 10)
	require.NoError(t, err)

	err = l.Reserve(3)
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.Zero(t, l.QuantityReserved)
}

func TestAdjustOnHand(t *testing.T) {
	l := newTestLedger(t, 10)

	require.ErrorIs(t, l.AdjustOnHand(5, ""), shared.ErrValidation)
	require.NoError(t, l.AdjustOnHand(-7, "damaged"))
	assert.Equal(t, 3, l.QuantityOnHand)
	assert.False(t, l.IsLowStock())

	require.NoError(t, l.AdjustOnHand(-1, "damaged"))
	assert.True(t, l.IsLowStock())

	err := l.AdjustOnHand(-3, "damaged")
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.Equal(t, 2, l.QuantityOnHand)
}

func TestLockUnlock(t *testing.T) {
	l := newTestLedger(t, 5)
	require.NoError(t, l.Lock(4))
	assert.Equal(t, 1, l.AvailableForSale())
	assert.ErrorIs(t, l.Reserve(2), shared.ErrInsufficientStock)

	unlocked, err := l.Unlock(10)
	require.NoError(t, err)
	assert.Equal(t, 4, unlocked)
	assert.Equal(t, 5, l.AvailableForSale())
}

func TestOutOfStock(t *testing.T) {
	l := newTestLedger(t, 3)
	require.NoError(t, l.Reserve(3))
	assert.True(t, l.IsOutOfStock())
	assert.Equal(t, 0, l.AvailableForSale())
}
