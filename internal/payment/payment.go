// Package payment bridges off-chain deal state and on-chain escrow custody.
//
// It owns the Payment record (1:1 with a deal), deposit polling, fund
// release and refund, and the administrative sweep that recovers payments
// whose release silently failed.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tonpost/tonpost/internal/deal"
	"github.com/tonpost/tonpost/internal/escrow"
	"github.com/tonpost/tonpost/internal/idgen"
	"github.com/tonpost/tonpost/internal/logging"
	"github.com/tonpost/tonpost/internal/metrics"
	"github.com/tonpost/tonpost/internal/ton"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	ErrNotFound        = errors.New("payment not found")
	ErrAlreadyExists   = errors.New("payment already initiated for this deal")
	ErrAlreadyReleased = errors.New("payment already released")
	ErrConflict        = errors.New("payment was modified concurrently")
	ErrInvalidState    = errors.New("operation not valid for payment state")
	ErrNoPayoutAddress = errors.New("no payout address registered for user")
)

// -----------------------------------------------------------------------------
// Types
// -----------------------------------------------------------------------------

// Status is the payment lifecycle state. It only ever advances forward:
// PENDING -> PAID -> RELEASED, or PENDING/PAID -> REFUNDED.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusPaid     Status = "PAID"
	StatusReleased Status = "RELEASED"
	StatusRefunded Status = "REFUNDED"
)

// Payment tracks escrowed funds for a single deal.
type Payment struct {
	ID                  string     `json:"id"`
	DealID              string     `json:"deal_id"`
	EscrowAddress       string     `json:"escrow_address"`
	EncryptedCustodyKey string     `json:"-"` // Never leaves the server
	DepositLink         string     `json:"deposit_link,omitempty"`
	Amount              int64      `json:"amount"` // nanoton
	Status              Status     `json:"status"`
	PaidAt              *time.Time `json:"paid_at,omitempty"`
	ReleasedAt          *time.Time `json:"released_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// StatusView is the poll response: current flags plus deposit details.
type StatusView struct {
	DealID        string `json:"deal_id"`
	Status        Status `json:"status"`
	Paid          bool   `json:"paid"`
	Released      bool   `json:"released"`
	Refunded      bool   `json:"refunded"`
	EscrowAddress string `json:"escrow_address"`
	DepositLink   string `json:"deposit_link,omitempty"`
	Amount        int64  `json:"amount"`
}

// SweepResult records the outcome for one payment in a sweep batch.
type SweepResult struct {
	DealID    string `json:"deal_id"`
	PaymentID string `json:"payment_id"`
	Result    string `json:"result"` // released, reconciled, skipped, failed
	Error     string `json:"error,omitempty"`
}

// -----------------------------------------------------------------------------
// Interfaces
// -----------------------------------------------------------------------------

// Store persists payments and payout addresses.
type Store interface {
	CreatePayment(ctx context.Context, p *Payment) error
	GetByDeal(ctx context.Context, dealID string) (*Payment, error)

	// UpdateStatus advances the payment only if it still equals from.
	// Returns ErrConflict on mismatch, ErrNotFound if missing.
	UpdateStatus(ctx context.Context, dealID string, from, to Status, at time.Time) error

	// ListByStatus returns payments currently in the given status.
	ListByStatus(ctx context.Context, status Status) ([]*Payment, error)

	SetPayoutAddress(ctx context.Context, userID, addr string) error
	// PayoutAddress returns ErrNoPayoutAddress when none is registered.
	PayoutAddress(ctx context.Context, userID string) (string, error)
}

// DealService is the slice of the deal state machine this package needs.
type DealService interface {
	Get(ctx context.Context, id string) (*deal.Deal, error)
	Transition(ctx context.Context, dealID string, target deal.Status) (*deal.Deal, error)
}

// BalanceChecker reads escrow wallet balances for sweep reconciliation.
type BalanceChecker interface {
	Balance(ctx context.Context, addr string) (int64, error)
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

// Service coordinates payments against the active escrow strategy.
type Service struct {
	store    Store
	deals    DealService
	strategy escrow.Strategy
	balances BalanceChecker // may be nil; disables sweep reconciliation
}

// NewService creates a payment service.
func NewService(store Store, deals DealService, strategy escrow.Strategy, balances BalanceChecker) *Service {
	return &Service{store: store, deals: deals, strategy: strategy, balances: balances}
}

// Initiate prepares escrow custody for a deal in AWAITING_PAYMENT and
// persists a PENDING payment with deposit instructions.
func (s *Service) Initiate(ctx context.Context, dealID string) (*Payment, error) {
	d, err := s.deals.Get(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if d.Status != deal.StatusAwaitingPayment {
		return nil, fmt.Errorf("%w: deal is %s, want %s", ErrInvalidState, d.Status, deal.StatusAwaitingPayment)
	}

	if _, err := s.store.GetByDeal(ctx, dealID); err == nil {
		return nil, ErrAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	// Party addresses are only strictly needed by the contract strategy;
	// missing entries surface there.
	advertiserAddr, _ := s.store.PayoutAddress(ctx, d.AdvertiserID)
	beneficiaryAddr, _ := s.store.PayoutAddress(ctx, d.ChannelOwnerID)

	esc, err := s.strategy.Initiate(ctx, dealID, advertiserAddr, beneficiaryAddr, d.AgreedPrice)
	if err != nil {
		return nil, err
	}

	p := &Payment{
		ID:                  idgen.WithPrefix("pay_"),
		DealID:              dealID,
		EscrowAddress:       esc.Address,
		EncryptedCustodyKey: esc.EncryptedSeed,
		DepositLink:         esc.DepositLink,
		Amount:              esc.Amount,
		Status:              StatusPending,
		CreatedAt:           time.Now().UTC(),
	}
	if err := s.store.CreatePayment(ctx, p); err != nil {
		return nil, err
	}

	metrics.PaymentsTotal.WithLabelValues("initiated").Inc()
	return p, nil
}

// Poll checks for the deposit on a PENDING payment. When funds have
// arrived it flips the payment to PAID and the deal to PAYMENT_RECEIVED;
// if the deal write fails the payment flip is compensated so the two
// records never disagree.
func (s *Service) Poll(ctx context.Context, dealID string) (*StatusView, error) {
	p, err := s.store.GetByDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}

	if p.Status == StatusPending {
		funded, err := s.strategy.CheckFunded(ctx, s.escrowOf(p))
		if err != nil {
			logging.L(ctx).Warn("funding check failed", "dealId", dealID, "error", err)
		} else if funded {
			if err := s.markPaid(ctx, p); err != nil {
				return nil, err
			}
		}
	}

	return s.view(p), nil
}

func (s *Service) markPaid(ctx context.Context, p *Payment) error {
	now := time.Now().UTC()
	if err := s.store.UpdateStatus(ctx, p.DealID, StatusPending, StatusPaid, now); err != nil {
		if errors.Is(err, ErrConflict) {
			// Another poller got there first; reload and move on.
			fresh, gerr := s.store.GetByDeal(ctx, p.DealID)
			if gerr == nil {
				*p = *fresh
			}
			return nil
		}
		return err
	}

	if _, err := s.deals.Transition(ctx, p.DealID, deal.StatusPaymentReceived); err != nil {
		// Compensate: the deal write failed, so the payment flip must not
		// stand alone. Best effort, conditional on our own write.
		if rerr := s.store.UpdateStatus(ctx, p.DealID, StatusPaid, StatusPending, now); rerr != nil {
			logging.L(ctx).Error("failed to compensate payment flip",
				"dealId", p.DealID, "error", rerr)
		}
		return fmt.Errorf("confirm payment for deal %s: %w", p.DealID, err)
	}

	p.Status = StatusPaid
	p.PaidAt = &now
	metrics.PaymentsTotal.WithLabelValues("confirmed").Inc()
	logging.L(ctx).Info("payment confirmed", "dealId", p.DealID, "amount_nanoton", p.Amount)
	return nil
}

// ReleaseOnPostConfirmation pays the beneficiary once post delivery is
// confirmed. The RELEASED check runs before any network call, so a double
// invocation is rejected without touching the chain.
func (s *Service) ReleaseOnPostConfirmation(ctx context.Context, dealID string) (*Payment, error) {
	p, err := s.store.GetByDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}

	if p.Status == StatusReleased {
		return nil, ErrAlreadyReleased
	}
	if p.Status != StatusPaid {
		return nil, fmt.Errorf("%w: payment is %s, want %s", ErrInvalidState, p.Status, StatusPaid)
	}

	d, err := s.deals.Get(ctx, dealID)
	if err != nil {
		return nil, err
	}

	// A missing payout address must surface to the user, never silently
	// drop funds.
	payout, err := s.store.PayoutAddress(ctx, d.ChannelOwnerID)
	if err != nil {
		return nil, err
	}

	outcome, err := s.strategy.Release(ctx, s.escrowOf(p), payout)
	if err != nil {
		if errors.Is(err, ton.ErrReleaseTimeout) {
			// Uncertain outcome: leave PAID for the sweep to reconcile
			// against on-chain truth. Never re-broadcast from here.
			logging.L(ctx).Warn("release unconfirmed, leaving for sweep",
				"dealId", dealID, "error", err)
		}
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.store.UpdateStatus(ctx, dealID, StatusPaid, StatusReleased, now); err != nil {
		return nil, err
	}
	p.Status = StatusReleased
	p.ReleasedAt = &now

	s.completeDeal(ctx, dealID)

	metrics.PaymentsTotal.WithLabelValues("released").Inc()
	logging.L(ctx).Info("funds released",
		"dealId", dealID, "beneficiary", payout, "from", outcome.From, "amount_nanoton", p.Amount)
	return p, nil
}

// Refund returns escrowed funds to the advertiser and moves the deal to
// REFUNDED where the state machine allows it.
func (s *Service) Refund(ctx context.Context, dealID string) (*Payment, error) {
	p, err := s.refundPayment(ctx, dealID)
	if err != nil {
		return nil, err
	}

	// The deal only has a REFUNDED edge from some states; elsewhere (e.g.
	// a timeout cancellation) the money moves without a deal transition.
	if d, err := s.deals.Get(ctx, dealID); err == nil && deal.CanTransition(d.Status, deal.StatusRefunded) {
		if _, err := s.deals.Transition(ctx, dealID, deal.StatusRefunded); err != nil {
			logging.L(ctx).Warn("refund done but deal transition failed",
				"dealId", dealID, "error", err)
		}
	}
	return p, nil
}

// RefundForCancellation is the timeout job hook: refund if and only if
// funds were actually escrowed, without touching deal status.
func (s *Service) RefundForCancellation(ctx context.Context, dealID string) error {
	p, err := s.store.GetByDeal(ctx, dealID)
	if errors.Is(err, ErrNotFound) {
		return nil // Nothing escrowed, nothing to do.
	}
	if err != nil {
		return err
	}
	if p.Status != StatusPaid {
		return nil
	}

	_, err = s.refundPayment(ctx, dealID)
	return err
}

func (s *Service) refundPayment(ctx context.Context, dealID string) (*Payment, error) {
	p, err := s.store.GetByDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusPending && p.Status != StatusPaid {
		return nil, fmt.Errorf("%w: payment is %s", ErrInvalidState, p.Status)
	}

	d, err := s.deals.Get(ctx, dealID)
	if err != nil {
		return nil, err
	}

	refundAddr, err := s.store.PayoutAddress(ctx, d.AdvertiserID)
	if err != nil {
		return nil, err
	}

	// An unfunded escrow has nothing to move on-chain.
	if p.Status == StatusPaid {
		if _, err := s.strategy.Refund(ctx, s.escrowOf(p), refundAddr); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	if err := s.store.UpdateStatus(ctx, dealID, p.Status, StatusRefunded, now); err != nil {
		return nil, err
	}
	p.Status = StatusRefunded

	metrics.PaymentsTotal.WithLabelValues("refunded").Inc()
	logging.L(ctx).Info("payment refunded",
		"dealId", dealID, "advertiser", refundAddr, "amount_nanoton", p.Amount)
	return p, nil
}

// Sweep retries release for PAID payments whose deal already reached
// POSTED or COMPLETED. Each item is handled independently; one failure
// never aborts the batch. Before re-broadcasting, the escrow wallet's
// balance is re-checked: an already-emptied wallet means a previous
// release landed, so the payment is reconciled to RELEASED without a new
// transfer.
func (s *Service) Sweep(ctx context.Context) ([]SweepResult, error) {
	metrics.JobRunsTotal.WithLabelValues("payment_sweep").Inc()

	stuck, err := s.store.ListByStatus(ctx, StatusPaid)
	if err != nil {
		return nil, err
	}

	var results []SweepResult
	for _, p := range stuck {
		res := SweepResult{DealID: p.DealID, PaymentID: p.ID}

		d, err := s.deals.Get(ctx, p.DealID)
		if err != nil {
			res.Result = "failed"
			res.Error = err.Error()
			results = append(results, res)
			metrics.SweepResultsTotal.WithLabelValues("failed").Inc()
			continue
		}

		if d.Status != deal.StatusPosted && d.Status != deal.StatusVerifying && d.Status != deal.StatusCompleted {
			res.Result = "skipped"
			results = append(results, res)
			metrics.SweepResultsTotal.WithLabelValues("skipped").Inc()
			continue
		}

		// On-chain truth check for wallet custody: a swept wallet is
		// empty, so the earlier "uncertain" release actually landed.
		if p.EncryptedCustodyKey != "" && s.balances != nil {
			if bal, err := s.balances.Balance(ctx, p.EscrowAddress); err == nil && bal == 0 {
				now := time.Now().UTC()
				if err := s.store.UpdateStatus(ctx, p.DealID, StatusPaid, StatusReleased, now); err == nil {
					s.completeDeal(ctx, p.DealID)
					res.Result = "reconciled"
					results = append(results, res)
					metrics.SweepResultsTotal.WithLabelValues("reconciled").Inc()
					continue
				}
			}
		}

		if _, err := s.ReleaseOnPostConfirmation(ctx, p.DealID); err != nil {
			res.Result = "failed"
			res.Error = err.Error()
			metrics.SweepResultsTotal.WithLabelValues("failed").Inc()
		} else {
			res.Result = "released"
			metrics.SweepResultsTotal.WithLabelValues("released").Inc()
		}
		results = append(results, res)
	}

	return results, nil
}

// SetPayoutAddress registers where a user's released funds go.
func (s *Service) SetPayoutAddress(ctx context.Context, userID, addr string) error {
	return s.store.SetPayoutAddress(ctx, userID, addr)
}

// PayoutAddress returns the user's registered payout address.
func (s *Service) PayoutAddress(ctx context.Context, userID string) (string, error) {
	return s.store.PayoutAddress(ctx, userID)
}

// Get returns the payment for a deal.
func (s *Service) Get(ctx context.Context, dealID string) (*Payment, error) {
	return s.store.GetByDeal(ctx, dealID)
}

// completeDeal walks the deal forward to COMPLETED after a successful
// release. Already-terminal deals are left alone.
func (s *Service) completeDeal(ctx context.Context, dealID string) {
	next := map[deal.Status]deal.Status{
		deal.StatusPosted:    deal.StatusVerifying,
		deal.StatusVerifying: deal.StatusCompleted,
	}
	for {
		d, err := s.deals.Get(ctx, dealID)
		if err != nil {
			logging.L(ctx).Warn("failed to load deal after release", "dealId", dealID, "error", err)
			return
		}
		target, ok := next[d.Status]
		if !ok {
			return
		}
		if _, err := s.deals.Transition(ctx, dealID, target); err != nil {
			logging.L(ctx).Warn("failed to advance deal after release",
				"dealId", dealID, "from", d.Status, "to", target, "error", err)
			return
		}
	}
}

func (s *Service) escrowOf(p *Payment) *escrow.Escrow {
	return &escrow.Escrow{
		DealID:        p.DealID,
		Address:       p.EscrowAddress,
		EncryptedSeed: p.EncryptedCustodyKey,
		Amount:        p.Amount,
		DepositLink:   p.DepositLink,
	}
}

func (s *Service) view(p *Payment) *StatusView {
	return &StatusView{
		DealID:        p.DealID,
		Status:        p.Status,
		Paid:          p.Status == StatusPaid || p.Status == StatusReleased,
		Released:      p.Status == StatusReleased,
		Refunded:      p.Status == StatusRefunded,
		EscrowAddress: p.EscrowAddress,
		DepositLink:   p.DepositLink,
		Amount:        p.Amount,
	}
}
