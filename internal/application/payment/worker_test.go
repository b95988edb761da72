package payment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domorder "github.com/Zhima-Mochi/minishop-inventory/internal/domain/order"
	domain "github.com/Zhima-Mochi/minishop-inventory/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-inventory/internal/infrastructure/gateway"
	"github.com/Zhima-Mochi/minishop-inventory/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-inventory/internal/observability"
)

func TestWorkerAppliesGatewayCallbacks(t *testing.T) {
	for _, tc := range []struct {
		name    string
		rate    float64
		status  domorder.Status
		onHand  int
		payment domain.Status
	}{
		{"approved", 1, domorder.StatusPaid, 7, domain.StatusSuccess},
		{"declined", 0, domorder.StatusCancelled, 10, domain.StatusFailed},
	} {
		t.Run(tc.name, func(t *testing.T) {
			bus := outbox.NewBus(nil, outbox.Options{})
			bus.Start(context.Background())
			gw := gateway.NewSimulated(bus, tc.rate, time.Millisecond, nil)
			f := newFixture(t, gw, bus)
			NewWorker(bus, f.payments, observability.Nop()).Start()

			o := f.checkout(t, domain.MethodCard, 3)
			gw.Wait()
			bus.Stop(context.Background())

			current, err := f.order.Get(context.Background(), o.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.status, current.Status)
			assert.Equal(t, tc.onHand, f.onHand(t))

			p, err := f.payments.Get(context.Background(), o.PaymentID)
			require.NoError(t, err)
			assert.Equal(t, tc.payment, p.Status)
			assert.NotEmpty(t, p.GatewayEventID)
		})
	}
}
