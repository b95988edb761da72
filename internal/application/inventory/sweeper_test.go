package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dominv "github.com/Zhima-Mochi/minishop-inventory/internal/domain/inventory"
)

func TestSweeperReleasesExpiredHolds(t *testing.T) {
	f := newFixture(t, nil)
	f.product(t, "sku-a", 10)
	hold, err := f.manager.Reserve(context.Background(), cartHold("sku-a", 4))
	require.NoError(t, err)

	s := NewSweeper(f.manager, 5*time.Millisecond, f.rec.Logger())
	f.now = f.now.Add(time.Hour)
	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool {
		res, err := f.manager.Reservation(context.Background(), hold.ID)
		return err == nil && res.State == dominv.ReservationExpired
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, f.ledger(t, "sku-a").QuantityReserved)
}

func TestSweeperStartStopRace(t *testing.T) {
	f := newFixture(t, nil)
	s := NewSweeper(f.manager, time.Millisecond, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Start(context.Background())
		}()
		go func() {
			defer wg.Done()
			s.Stop()
		}()
	}
	wg.Wait()
	s.Stop()

	s.Start(context.Background())
	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Nil(t, s.cancel)
}
