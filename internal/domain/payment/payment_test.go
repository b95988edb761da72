package payment

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/minishop-inventory/internal/domain/shared"
)

func TestNewPaymentStartingStatus(t *testing.T) {
	card, err := New("p1", "o1", decimal.NewFromInt(20), MethodCard)
	require.NoError(t, err)
	assert.Equal(t, StatusInitiated, card.Status)

	cod, err := New("p2", "o2", decimal.NewFromInt(20), MethodCOD)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, cod.Status)

	_, err = New("p3", "o3", decimal.NewFromInt(20), Method("CHEQUE"))
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestPaymentTransitions(t *testing.T) {
	p, err := New("p1", "o1", decimal.NewFromInt(20), MethodCard)
	require.NoError(t, err)

	require.NoError(t, p.MarkSubmitted("gw-1"))
	assert.Equal(t, StatusPending, p.Status)
	require.NoError(t, p.MarkSucceeded("evt-1"))
	assert.Equal(t, StatusSuccess, p.Status)

	assert.ErrorIs(t, p.MarkFailed("late", "evt-2"), shared.ErrState)
	assert.ErrorIs(t, p.MarkSucceeded("evt-3"), shared.ErrState)
}

func TestRefundRules(t *testing.T) {
	newSucceeded := func(t *testing.T) *Payment {
		p, err := New("p1", "o1", decimal.RequireFromString("49.90"), MethodWallet)
		require.NoError(t, err)
		require.NoError(t, p.MarkSucceeded("evt-1"))
		return p
	}

	t.Run("only from success", func(t *testing.T) {
		p, err := New("p1", "o1", decimal.NewFromInt(10), MethodCard)
		require.NoError(t, err)
		assert.ErrorIs(t, p.MarkRefunded(decimal.NewFromInt(10), "changed mind", time.Now()), shared.ErrState)
	})

	t.Run("amount bounded by original", func(t *testing.T) {
		p := newSucceeded(t)
		assert.ErrorIs(t, p.MarkRefunded(decimal.RequireFromString("49.91"), "x", time.Now()), shared.ErrValidation)
		assert.ErrorIs(t, p.MarkRefunded(decimal.Zero, "x", time.Now()), shared.ErrValidation)
		assert.Equal(t, StatusSuccess, p.Status)
	})

	t.Run("only once", func(t *testing.T) {
		p := newSucceeded(t)
		require.NoError(t, p.MarkRefunded(decimal.RequireFromString("20"), "partial", time.Now()))
		assert.Equal(t, StatusRefunded, p.Status)
		require.NotNil(t, p.Refund)
		assert.True(t, p.Refund.Amount.Equal(decimal.NewFromInt(20)))

		assert.ErrorIs(t, p.MarkRefunded(decimal.NewFromInt(1), "again", time.Now()), shared.ErrState)
	})

	t.Run("zero payment refunds in full", func(t *testing.T) {
		p, err := New("p1", "o1", decimal.Zero, MethodCard)
		require.NoError(t, err)
		require.NoError(t, p.MarkSucceeded("evt-1"))

		assert.ErrorIs(t, p.MarkRefunded(decimal.NewFromInt(-1), "x", time.Now()), shared.ErrValidation)
		require.NoError(t, p.MarkRefunded(decimal.Zero, "free order", time.Now()))
		assert.Equal(t, StatusRefunded, p.Status)
		assert.True(t, p.Refund.Amount.IsZero())
	})
}

func TestStatusChangedEventName(t *testing.T) {
	p, err := New("p1", "o1", decimal.NewFromInt(10), MethodCard)
	require.NoError(t, err)
	assert.Equal(t, "payment.initiated", NewStatusChangedEvent(p).EventName())

	require.NoError(t, p.MarkFailed("declined", "evt"))
	e := NewStatusChangedEvent(p)
	assert.Equal(t, "payment.failed", e.EventName())
	assert.Equal(t, "declined", e.Reason)
}
