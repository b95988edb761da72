package application

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/minishop-inventory/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-inventory/internal/domain/shared"
	"github.com/Zhima-Mochi/minishop-inventory/internal/observability"
	"github.com/Zhima-Mochi/minishop-inventory/internal/observability/obstest"
)

type namedEvent string

func (e namedEvent) EventName() string { return string(e) }

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, outbox.Event) error { return errors.New("queue full") }

func TestRunRecordsOutcome(t *testing.T) {
	rec := obstest.New()
	inst := NewInstrumentation("test-service", rec)

	_, run := inst.Begin(context.Background(), "stock.reserve", "Reserve")
	run.Field("product_id", "sku-1")
	run.End(nil)

	_, run = inst.Begin(context.Background(), "stock.reserve", "Reserve")
	run.End(fmt.Errorf("reserve: %w", &shared.InsufficientStockError{Available: 1}))

	assert.Equal(t, 1.0, rec.Count(observability.MUsecaseRequests, "use_case=stock.reserve,outcome=success"))
	assert.Equal(t, 1.0, rec.Count(observability.MUsecaseRequests, "use_case=stock.reserve,outcome=error"))
	assert.Equal(t, 2, rec.Samples(observability.MUsecaseDuration))

	done := rec.Entries("use_case_done")
	require.Len(t, done, 2)
	assert.Equal(t, "sku-1", done[0].Fields["product_id"])
	assert.Equal(t, "test-service", done[0].Fields["service"])
	assert.Equal(t, "INSUFFICIENT_STOCK", done[1].Fields["status"])
	assert.Equal(t, "info", done[1].Level)
}

func TestRunLogsInvariantViolationsAtErrorLevel(t *testing.T) {
	rec := obstest.New()
	inst := NewInstrumentation("test-service", rec)

	_, run := inst.Begin(context.Background(), "order.payment_success", "OnPaymentSuccess")
	run.End(&shared.StateError{Entity: "ledger", Invariant: true})

	done := rec.Entries("use_case_done")
	require.Len(t, done, 1)
	assert.Equal(t, "error", done[0].Level)
	assert.Equal(t, "INVARIANT_VIOLATION", done[0].Fields["status"])
}

func TestPublishFailureIsNotFatal(t *testing.T) {
	rec := obstest.New()
	inst := NewInstrumentation("test-service", rec)

	ctx, run := inst.Begin(context.Background(), "order.create", "CreateOrder")
	run.Publish(ctx, failingPublisher{}, namedEvent("order.created"))
	run.End(nil)

	assert.Equal(t, 1.0, rec.Count(observability.MExternalRequests, "peer=outbox,endpoint=order.created,outcome=error"))
	done := rec.Entries("use_case_done")
	require.Len(t, done, 1)
	assert.Equal(t, "success", done[0].Fields["outcome"])
	assert.Equal(t, "queue full", done[0].Fields["event_publish_error"])
}
