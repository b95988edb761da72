// Package gateway holds payment gateway adapters.
package gateway

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	domoutbox "github.com/Zhima-Mochi/minishop-inventory/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/minishop-inventory/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-inventory/internal/observability"
)

const (
	DefaultSuccessRate = 0.7
	declinedReason     = "card_declined"
	callbackTimeout    = 5 * time.Second
)

// Simulated accepts every submission and reports the outcome later as a
// GatewayResultEvent, the way a webhook would.
type Simulated struct {
	mu          sync.Mutex
	random      *rand.Rand
	successRate float64
	delay       time.Duration
	publisher   domoutbox.Publisher
	log         observability.Logger
	pending     sync.WaitGroup
}

func NewSimulated(publisher domoutbox.Publisher, successRate float64, delay time.Duration, logger observability.Logger) *Simulated {
	if successRate < 0 || successRate > 1 {
		successRate = DefaultSuccessRate
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Simulated{
		random:      rand.New(rand.NewSource(time.Now().UnixNano())),
		successRate: successRate,
		delay:       delay,
		publisher:   publisher,
		log:         logger.With(observability.F("component", "simulated_gateway")),
	}
}

func (g *Simulated) Submit(ctx context.Context, p *dompay.Payment) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref := "sim_" + uuid.NewString()
	evt := dompay.GatewayResultEvent{
		EventID:    uuid.NewString(),
		PaymentID:  p.ID,
		OrderID:    p.OrderID,
		GatewayRef: ref,
		Success:    g.draw(),
	}
	if !evt.Success {
		evt.Reason = declinedReason
	}

	g.pending.Add(1)
	time.AfterFunc(g.delay, func() {
		defer g.pending.Done()
		evt.OccurredAt = time.Now().UTC()
		cctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
		defer cancel()
		if err := g.publisher.Publish(cctx, evt); err != nil {
			g.log.Warn("gateway_callback_failed",
				observability.F("payment_id", p.ID),
				observability.F("error", err.Error()),
			)
		}
	})
	return ref, nil
}

// Wait blocks until every scheduled callback has been published.
func (g *Simulated) Wait() { g.pending.Wait() }

func (g *Simulated) draw() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.random.Float64() < g.successRate
}
