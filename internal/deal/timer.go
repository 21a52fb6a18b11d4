package deal

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tonpost/tonpost/internal/metrics"
)

// Refunder returns escrowed funds for a deal being force-cancelled. The
// payment layer implements it; a nil Refunder skips the refund step.
type Refunder interface {
	RefundForCancellation(ctx context.Context, dealID string) error
}

// TimeoutTimer force-cancels deals that have been inactive past the
// configured timeout, refunding any escrowed payment first.
type TimeoutTimer struct {
	service  *Service
	refunder Refunder
	timeout  time.Duration
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
}

// NewTimeoutTimer creates the deal timeout job. timeout is how long a deal
// may sit inactive; interval is the sweep cadence.
func NewTimeoutTimer(service *Service, refunder Refunder, timeout, interval time.Duration, logger *slog.Logger) *TimeoutTimer {
	return &TimeoutTimer{
		service:  service,
		refunder: refunder,
		timeout:  timeout,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the timer loop is actively running.
func (t *TimeoutTimer) Running() bool {
	return t.running.Load()
}

// Start begins the timeout loop. Call in a goroutine.
func (t *TimeoutTimer) Start(ctx context.Context) {
	t.running.Store(true)
	defer t.running.Store(false)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.safeCancelTimedOut(ctx)
		}
	}
}

// Stop signals the timer to stop.
func (t *TimeoutTimer) Stop() {
	select {
	case t.stop <- struct{}{}:
	default:
	}
}

func (t *TimeoutTimer) safeCancelTimedOut(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic in deal timeout timer", "panic", fmt.Sprint(r))
		}
	}()
	t.cancelTimedOut(ctx)
}

// RunOnce performs a single sweep outside the timer cadence and returns
// how many deals were cancelled.
func (t *TimeoutTimer) RunOnce(ctx context.Context) int {
	return t.cancelTimedOut(ctx)
}

// cancelTimedOut processes one sweep. Each deal is handled independently:
// a failure logs and moves on, never aborting the batch. Cancel re-checks
// the stored status, so an overlapping run cannot double-cancel.
func (t *TimeoutTimer) cancelTimedOut(ctx context.Context) int {
	metrics.JobRunsTotal.WithLabelValues("deal_timeout").Inc()

	cutoff := time.Now().UTC().Add(-t.timeout)
	stale, err := t.service.TimedOut(ctx, cutoff)
	if err != nil {
		t.logger.Warn("failed to list timed-out deals", "error", err)
		return 0
	}

	cancelled := 0
	for _, d := range stale {
		// Refund first: escrowed money must be on its way back before
		// the deal is marked cancelled.
		if t.refunder != nil {
			if err := t.refunder.RefundForCancellation(ctx, d.ID); err != nil {
				t.logger.Warn("timeout refund failed",
					"dealId", d.ID, "error", err)
			}
		}

		if _, err := t.service.Cancel(ctx, d.ID, "inactive past deadline"); err != nil {
			t.logger.Warn("failed to cancel timed-out deal",
				"dealId", d.ID, "status", d.Status, "error", err)
			continue
		}
		cancelled++
		t.logger.Info("cancelled timed-out deal",
			"dealId", d.ID, "lastActivityAt", d.LastActivityAt)
	}
	return cancelled
}
