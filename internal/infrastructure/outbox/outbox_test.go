package outbox

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domoutbox "github.com/Zhima-Mochi/minishop-inventory/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-inventory/internal/observability/obstest"
)

type testEvent struct{ name string }

func (e testEvent) EventName() string { return e.name }

func TestBusFanout(t *testing.T) {
	bus := NewBus(nil, Options{})
	bus.Start(context.Background())

	var mu sync.Mutex
	var named, all []string
	bus.Subscribe("order.created", func(_ context.Context, e domoutbox.Event) error {
		mu.Lock()
		defer mu.Unlock()
		named = append(named, e.EventName())
		return nil
	})
	bus.Subscribe(domoutbox.AllEvents, func(_ context.Context, e domoutbox.Event) error {
		mu.Lock()
		defer mu.Unlock()
		all = append(all, e.EventName())
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), testEvent{"order.created"}))
	require.NoError(t, bus.Publish(context.Background(), testEvent{"order.paid"}))
	bus.Stop(context.Background())

	assert.Equal(t, []string{"order.created"}, named)
	assert.Equal(t, []string{"order.created", "order.paid"}, all)
}

func TestBusRecoversFromPanics(t *testing.T) {
	rec := obstest.New()
	bus := NewBus(rec.Logger(), Options{Concurrency: 2})
	bus.Start(context.Background())

	var calls atomic.Int32
	bus.Subscribe("boom", func(context.Context, domoutbox.Event) error { panic("handler bug") })
	bus.Subscribe("boom", func(context.Context, domoutbox.Event) error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), testEvent{"boom"}))
	bus.Stop(context.Background())

	assert.Equal(t, int32(1), calls.Load())
	assert.Len(t, rec.Entries("event_handler_panic"), 1)
}

func TestBusRejectsPublishAfterStop(t *testing.T) {
	bus := NewBus(nil, Options{})
	bus.Start(context.Background())
	bus.Stop(context.Background())

	assert.ErrorIs(t, bus.Publish(context.Background(), testEvent{"late"}), ErrClosed)
}

func TestBusPublishHonoursContext(t *testing.T) {
	bus := NewBus(nil, Options{QueueSize: 1})

	require.NoError(t, bus.Publish(context.Background(), testEvent{"first"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bus.Publish(ctx, testEvent{"second"}), context.DeadlineExceeded)
}

func TestBusStopUnblocksWaitingPublisher(t *testing.T) {
	bus := NewBus(nil, Options{QueueSize: 1})
	require.NoError(t, bus.Publish(context.Background(), testEvent{"first"}))

	published := make(chan error, 1)
	go func() { published <- bus.Publish(context.Background(), testEvent{"second"}) }()
	time.Sleep(20 * time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		bus.Stop(ctx)
		close(stopped)
	}()

	select {
	case err := <-published:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("publish still blocked after stop")
	}
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return")
	}
}
