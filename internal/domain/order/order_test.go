package order

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/minishop-inventory/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-inventory/internal/domain/shared"
)

var testAddress = Address{Name: "Ada", Line1: "1 Main St", City: "Taipei", Country: "TW"}

func newTestOrder(t *testing.T, method payment.Method) *Order {
	t.Helper()
	o, err := New("o1", "c1", "", []Line{
		{ProductID: "sku-1", Quantity: 2, UnitPrice: decimal.RequireFromString("10.50"), ReservationID: "r1"},
		{ProductID: "sku-2", Quantity: 1, UnitPrice: decimal.RequireFromString("4.00"), ReservationID: "r2"},
	}, testAddress, method, decimal.RequireFromString("5"), decimal.Zero, "c1")
	require.NoError(t, err)
	return o
}

func TestNewComputesTotals(t *testing.T) {
	o := newTestOrder(t, payment.MethodCard)

	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.True(t, o.Lines[0].LineTotal.Equal(decimal.RequireFromString("21")))
	assert.True(t, o.Subtotal.Equal(decimal.RequireFromString("25")))
	assert.True(t, o.Total.Equal(decimal.RequireFromString("30")))
	assert.Len(t, o.StatusHistory, 1)
	assert.Equal(t, []string{"r1", "r2"}, o.ReservationIDs())
}

func TestNewValidation(t *testing.T) {
	_, err := New("o1", "c1", "", nil, testAddress, payment.MethodCard, decimal.Zero, decimal.Zero, "")
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = New("o1", "c1", "", []Line{{ProductID: "sku-1", Quantity: 0}}, testAddress, payment.MethodCard, decimal.Zero, decimal.Zero, "")
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = New("o1", "c1", "", []Line{{ProductID: "sku-1", Quantity: 1}}, Address{}, payment.MethodCard, decimal.Zero, decimal.Zero, "")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestHappyPath(t *testing.T) {
	o := newTestOrder(t, payment.MethodCard)

	require.NoError(t, o.MarkPaid("gateway"))
	assert.Equal(t, StatusPaid, o.Status)
	assert.Equal(t, PaymentPaid, o.PaymentStatus)

	require.NoError(t, o.Ship("admin", "handed to carrier"))
	require.NoError(t, o.Deliver("admin", "signed"))
	assert.Equal(t, StatusDelivered, o.Status)
	assert.Len(t, o.StatusHistory, 4)
	assert.Equal(t, "admin", o.StatusHistory[3].UpdatedBy)
}

func TestCancel(t *testing.T) {
	t.Run("pending", func(t *testing.T) {
		o := newTestOrder(t, payment.MethodCard)
		require.NoError(t, o.Cancel("changed mind", "c1", false))
		assert.Equal(t, StatusCancelled, o.Status)
		assert.Equal(t, PaymentFailed, o.PaymentStatus)
		require.NotNil(t, o.CancelledAt)
		assert.Equal(t, "changed mind", o.CancellationReason)
		assert.Len(t, o.StatusHistory, 2)
	})

	t.Run("paid is refunded", func(t *testing.T) {
		o := newTestOrder(t, payment.MethodCard)
		require.NoError(t, o.MarkPaid("gateway"))
		require.NoError(t, o.Cancel("out of stock at warehouse", "admin", true))
		assert.Equal(t, PaymentRefunded, o.PaymentStatus)
	})

	for _, status := range []Status{StatusShipped, StatusDelivered, StatusCancelled} {
		t.Run("rejected from "+string(status), func(t *testing.T) {
			o := newTestOrder(t, payment.MethodCard)
			o.Status = status
			err := o.Cancel("late", "c1", false)
			require.ErrorIs(t, err, shared.ErrState)
			assert.EqualError(t, err, "Order cannot be cancelled, current status: "+string(status))
			assert.Len(t, o.StatusHistory, 1)
		})
	}
}

func TestPaymentFailureCancels(t *testing.T) {
	o := newTestOrder(t, payment.MethodWallet)
	require.NoError(t, o.MarkPaymentFailed("card declined", "gateway"))
	assert.Equal(t, StatusCancelled, o.Status)
	assert.Equal(t, PaymentFailed, o.PaymentStatus)

	assert.ErrorIs(t, o.MarkPaid("gateway"), shared.ErrState)
}

func TestCashOnDelivery(t *testing.T) {
	o := newTestOrder(t, payment.MethodCOD)

	assert.ErrorIs(t, o.MarkPaid("gateway"), shared.ErrState)
	require.NoError(t, o.Ship("admin", ""))
	require.NoError(t, o.Deliver("admin", ""))
	assert.Equal(t, PaymentPaid, o.PaymentStatus)
}

func TestOnlineOrderCannotShipUnpaid(t *testing.T) {
	o := newTestOrder(t, payment.MethodCard)
	assert.ErrorIs(t, o.Ship("admin", ""), shared.ErrState)
	assert.ErrorIs(t, o.Deliver("admin", ""), shared.ErrState)
}

func TestCloneIsDeep(t *testing.T) {
	o := newTestOrder(t, payment.MethodCard)
	c := o.Clone()
	c.Lines[0].Confirmed = true
	c.StatusHistory[0].Note = "edited"
	assert.False(t, o.Lines[0].Confirmed)
	assert.Equal(t, "order placed", o.StatusHistory[0].Note)
}

func TestCheckRefundable(t *testing.T) {
	o := newTestOrder(t, payment.MethodCard)
	assert.NoError(t, o.CheckRefundable())

	require.NoError(t, o.MarkPaid("gateway"))
	assert.NoError(t, o.CheckRefundable())

	require.NoError(t, o.Ship("admin", ""))
	assert.ErrorIs(t, o.CheckRefundable(), shared.ErrState)
}
