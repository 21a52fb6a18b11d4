package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tonpost/tonpost/internal/deal"
	"github.com/tonpost/tonpost/internal/metrics"
)

// VerificationTimer publishes due scheduled deals and walks published
// posts through their verification windows.
type VerificationTimer struct {
	service  *Service
	deals    DealService
	funds    FundMover
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
}

// NewVerificationTimer creates the posting/verification job.
func NewVerificationTimer(service *Service, deals DealService, funds FundMover, interval time.Duration, logger *slog.Logger) *VerificationTimer {
	return &VerificationTimer{
		service:  service,
		deals:    deals,
		funds:    funds,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the timer loop is actively running.
func (t *VerificationTimer) Running() bool {
	return t.running.Load()
}

// Start begins the verification loop. Call in a goroutine.
func (t *VerificationTimer) Start(ctx context.Context) {
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
			t.safeRun(ctx)
		}
	}
}

// Stop signals the timer to stop.
func (t *VerificationTimer) Stop() {
	select {
	case t.stop <- struct{}{}:
	default:
	}
}

func (t *VerificationTimer) safeRun(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic in verification timer", "panic", fmt.Sprint(r))
		}
	}()
	t.run(ctx)
}

// run processes one sweep: publish what is due, then check every post
// still inside its window. Per-deal failures log and continue; an
// overlapping run is harmless because every step re-checks stored status
// before acting.
func (t *VerificationTimer) run(ctx context.Context) {
	metrics.JobRunsTotal.WithLabelValues("post_verification").Inc()
	t.publishDue(ctx)
	t.checkUnverified(ctx)
}

func (t *VerificationTimer) publishDue(ctx context.Context) {
	due, err := t.deals.DueForPosting(ctx, time.Now().UTC())
	if err != nil {
		t.logger.Warn("failed to list due deals", "error", err)
		return
	}

	for _, d := range due {
		if _, err := t.service.Publish(ctx, d.ID); err != nil {
			// Already published by an overlapping run is fine.
			if errors.Is(err, ErrAlreadyPosted) {
				continue
			}
			t.logger.Warn("scheduled publish failed", "dealId", d.ID, "error", err)
			continue
		}
		t.logger.Info("published scheduled post", "dealId", d.ID)
	}
}

func (t *VerificationTimer) checkUnverified(ctx context.Context) {
	posts, err := t.service.store.ListUnverified(ctx)
	if err != nil {
		t.logger.Warn("failed to list unverified posts", "error", err)
		return
	}

	now := time.Now().UTC()
	for _, p := range posts {
		d, err := t.deals.Get(ctx, p.DealID)
		if err != nil {
			t.logger.Warn("post without loadable deal", "dealId", p.DealID, "error", err)
			continue
		}

		// A freshly published deal enters the watch state on the first
		// pass after publication.
		if d.Status == deal.StatusPosted {
			if _, err := t.deals.Transition(ctx, p.DealID, deal.StatusVerifying); err != nil {
				t.logger.Warn("failed to start verification", "dealId", p.DealID, "error", err)
				continue
			}
			d.Status = deal.StatusVerifying
		}
		if d.Status != deal.StatusVerifying {
			continue
		}

		checked, err := t.service.VerifyIntegrity(ctx, p.DealID)
		if err != nil {
			t.logger.Warn("integrity check failed", "dealId", p.DealID, "error", err)
			continue
		}

		switch {
		case !checked.Intact():
			t.logger.Warn("post tampered, refunding advertiser",
				"dealId", p.DealID, "deleted", checked.IsDeleted, "edited", checked.IsEdited)
			if _, err := t.funds.Refund(ctx, p.DealID); err != nil {
				t.logger.Error("refund after tampering failed", "dealId", p.DealID, "error", err)
			}

		case !now.Before(checked.VerifiedUntil):
			if _, err := t.service.VerificationComplete(ctx, p.DealID); err != nil {
				t.logger.Warn("failed to complete verification", "dealId", p.DealID, "error", err)
				continue
			}
			if _, err := t.funds.ReleaseOnPostConfirmation(ctx, p.DealID); err != nil {
				// The sweep recovers releases that fail here.
				t.logger.Error("release after verification failed", "dealId", p.DealID, "error", err)
				continue
			}
			t.logger.Info("verification window completed, funds released", "dealId", p.DealID)
		}
	}
}
