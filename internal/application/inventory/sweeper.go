package inventory

import (
	"context"
	"sync"
	"time"

	"github.com/Zhima-Mochi/minishop-inventory/internal/observability"
)

// Sweeper periodically releases expired cart holds.
type Sweeper struct {
	manager  *ReservationManager
	interval time.Duration
	log      observability.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

func NewSweeper(manager *ReservationManager, interval time.Duration, logger observability.Logger) *Sweeper {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		manager:  manager,
		interval: interval,
		log:      logger.With(observability.F("component", "hold_sweeper")),
	}
}

// Start runs the sweep loop until ctx is done or Stop is called. It does
// nothing once the sweeper is running or has been stopped.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil || s.stopped {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	s.log.Info("hold_sweeper_started", observability.F("interval", s.interval.String()))
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	s.stopped = true
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log.Info("hold_sweeper_stopped")
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.manager.SweepExpired(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("hold_sweep_failed", observability.F("error", err.Error()))
			}
		}
	}
}
