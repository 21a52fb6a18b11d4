// Package deal implements the deal lifecycle state machine.
//
// A deal moves through a fixed adjacency table from NEGOTIATING to a
// terminal state. All status writes are conditional on the expected prior
// status, so concurrent writers fail with ErrConflict instead of silently
// overwriting each other.
package deal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tonpost/tonpost/internal/idgen"
	"github.com/tonpost/tonpost/internal/logging"
	"github.com/tonpost/tonpost/internal/metrics"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	ErrNotFound          = errors.New("deal not found")
	ErrCreativeNotFound  = errors.New("creative not found")
	ErrInvalidTransition = errors.New("invalid deal transition")
	ErrConflict          = errors.New("deal was modified concurrently")
	ErrValidation        = errors.New("invalid deal parameters")
)

// -----------------------------------------------------------------------------
// Types
// -----------------------------------------------------------------------------

// Status is a deal lifecycle state.
type Status string

const (
	StatusNegotiating      Status = "NEGOTIATING"
	StatusAwaitingPayment  Status = "AWAITING_PAYMENT"
	StatusPaymentReceived  Status = "PAYMENT_RECEIVED"
	StatusCreativePending  Status = "CREATIVE_PENDING"
	StatusCreativeReview   Status = "CREATIVE_REVIEW"
	StatusCreativeApproved Status = "CREATIVE_APPROVED"
	StatusScheduled        Status = "SCHEDULED"
	StatusPosted           Status = "POSTED"
	StatusVerifying        Status = "VERIFYING"
	StatusCompleted        Status = "COMPLETED"
	StatusCancelled        Status = "CANCELLED"
	StatusRefunded         Status = "REFUNDED"
)

// validTransitions is the authoritative adjacency table. A target absent
// from its source's list is rejected; a state never lists itself, so no-op
// transitions always fail.
var validTransitions = map[Status][]Status{
	StatusNegotiating:      {StatusAwaitingPayment, StatusCancelled},
	StatusAwaitingPayment:  {StatusPaymentReceived, StatusCancelled},
	StatusPaymentReceived:  {StatusCreativePending, StatusRefunded},
	StatusCreativePending:  {StatusCreativeReview, StatusCancelled},
	StatusCreativeReview:   {StatusCreativeApproved, StatusCreativePending, StatusCancelled},
	StatusCreativeApproved: {StatusScheduled, StatusCancelled},
	StatusScheduled:        {StatusPosted, StatusCancelled},
	StatusPosted:           {StatusVerifying, StatusRefunded},
	StatusVerifying:        {StatusCompleted, StatusRefunded},
	StatusCompleted:        {},
	StatusCancelled:        {},
	StatusRefunded:         {},
}

// CanTransition reports whether from -> to is in the adjacency table.
func CanTransition(from, to Status) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status has no outgoing transitions.
func (s Status) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// Deal is an advertising agreement between an advertiser and a channel owner.
type Deal struct {
	ID                string     `json:"id"`
	Status            Status     `json:"status"`
	ChannelOwnerID    string     `json:"channel_owner_id"`
	AdvertiserID      string     `json:"advertiser_id"`
	CampaignID        string     `json:"campaign_id,omitempty"`
	AdFormatType      string     `json:"ad_format_type"`
	AgreedPrice       int64      `json:"agreed_price"` // nanoton
	ScheduledPostTime *time.Time `json:"scheduled_post_time,omitempty"`
	LastActivityAt    time.Time  `json:"last_activity_at"`
	CreatedAt         time.Time  `json:"created_at"`
}

// CreativeStatus is the review state of a submitted creative.
type CreativeStatus string

const (
	CreativeSubmitted         CreativeStatus = "SUBMITTED"
	CreativeApproved          CreativeStatus = "APPROVED"
	CreativeRevisionRequested CreativeStatus = "REVISION_REQUESTED"
)

// Creative is a versioned ad content submission for a deal. The latest
// creative is always the one with the highest version.
type Creative struct {
	ID        string         `json:"id"`
	DealID    string         `json:"deal_id"`
	Version   int            `json:"version"`
	Content   string         `json:"content"`
	MediaRefs []string       `json:"media_refs,omitempty"`
	Status    CreativeStatus `json:"status"`
	Feedback  string         `json:"feedback,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// CreateParams are the inputs for a new deal.
type CreateParams struct {
	ChannelOwnerID string
	AdvertiserID   string
	CampaignID     string
	AdFormatType   string
	AgreedPrice    int64 // nanoton
}

// -----------------------------------------------------------------------------
// Interfaces
// -----------------------------------------------------------------------------

// Store persists deals and creatives.
type Store interface {
	CreateDeal(ctx context.Context, d *Deal) error
	GetDeal(ctx context.Context, id string) (*Deal, error)

	// UpdateStatus sets the deal's status only if it still equals from,
	// stamping LastActivityAt. Returns ErrConflict when the stored status
	// no longer matches, ErrNotFound when the deal does not exist.
	UpdateStatus(ctx context.Context, id string, from, to Status, at time.Time) error

	// SetScheduledPostTime records when the approved creative should go out.
	SetScheduledPostTime(ctx context.Context, id string, at time.Time) error

	// ListStale returns deals in the given statuses whose LastActivityAt
	// is before cutoff.
	ListStale(ctx context.Context, statuses []Status, cutoff time.Time) ([]*Deal, error)

	// ListScheduledDue returns SCHEDULED deals whose ScheduledPostTime is
	// at or before now.
	ListScheduledDue(ctx context.Context, now time.Time) ([]*Deal, error)

	CreateCreative(ctx context.Context, c *Creative) error
	GetCreative(ctx context.Context, id string) (*Creative, error)
	LatestCreative(ctx context.Context, dealID string) (*Creative, error)
	ListCreatives(ctx context.Context, dealID string) ([]*Creative, error)
	UpdateCreativeStatus(ctx context.Context, id string, status CreativeStatus, feedback string) error
}

// Notifier delivers user-facing messages. Failures never block transitions.
type Notifier interface {
	NotifyUser(ctx context.Context, userID, message, dealID string) error
}

// statusCopy is the user-facing message sent to both parties on each
// transition.
var statusCopy = map[Status]string{
	StatusNegotiating:      "Deal created, negotiation started",
	StatusAwaitingPayment:  "Terms agreed, awaiting escrow payment",
	StatusPaymentReceived:  "Payment received into escrow",
	StatusCreativePending:  "Waiting for ad creative",
	StatusCreativeReview:   "Creative submitted for review",
	StatusCreativeApproved: "Creative approved",
	StatusScheduled:        "Post scheduled",
	StatusPosted:           "Ad has been posted",
	StatusVerifying:        "Post is in its verification window",
	StatusCompleted:        "Deal completed, funds released",
	StatusCancelled:        "Deal cancelled",
	StatusRefunded:         "Deal refunded",
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

// Service drives the deal state machine.
type Service struct {
	store    Store
	notifier Notifier
}

// NewService creates a deal service. notifier may be nil.
func NewService(store Store, notifier Notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

// Create validates params and persists a new deal in NEGOTIATING.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Deal, error) {
	if params.ChannelOwnerID == "" || params.AdvertiserID == "" {
		return nil, fmt.Errorf("%w: both parties are required", ErrValidation)
	}
	if params.AgreedPrice <= 0 {
		return nil, fmt.Errorf("%w: agreed price must be positive", ErrValidation)
	}

	now := time.Now().UTC()
	d := &Deal{
		ID:             idgen.WithPrefix("deal_"),
		Status:         StatusNegotiating,
		ChannelOwnerID: params.ChannelOwnerID,
		AdvertiserID:   params.AdvertiserID,
		CampaignID:     params.CampaignID,
		AdFormatType:   params.AdFormatType,
		AgreedPrice:    params.AgreedPrice,
		LastActivityAt: now,
		CreatedAt:      now,
	}

	if err := s.store.CreateDeal(ctx, d); err != nil {
		return nil, err
	}

	metrics.DealTransitionsTotal.WithLabelValues(string(StatusNegotiating)).Inc()
	s.notifyParties(ctx, d, statusCopy[StatusNegotiating])
	return d, nil
}

// Get returns a deal by id.
func (s *Service) Get(ctx context.Context, id string) (*Deal, error) {
	return s.store.GetDeal(ctx, id)
}

// Transition moves a deal to target, enforcing the adjacency table.
// A request targeting the deal's current state is invalid, not a no-op.
func (s *Service) Transition(ctx context.Context, dealID string, target Status) (*Deal, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, target)
	}

	d, err := s.store.GetDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}

	if !CanTransition(d.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, target)
	}

	now := time.Now().UTC()
	if err := s.store.UpdateStatus(ctx, dealID, d.Status, target, now); err != nil {
		return nil, err
	}

	d.Status = target
	d.LastActivityAt = now

	metrics.DealTransitionsTotal.WithLabelValues(string(target)).Inc()
	s.notifyParties(ctx, d, statusCopy[target])
	return d, nil
}

// Cancel transitions a deal to CANCELLED. Cancellation only marks intent:
// any escrowed funds are moved by the caller (timeout job, refund flow),
// never here.
func (s *Service) Cancel(ctx context.Context, dealID, reason string) (*Deal, error) {
	d, err := s.Transition(ctx, dealID, StatusCancelled)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		s.notifyParties(ctx, d, "Deal cancelled: "+reason)
	}
	return d, nil
}

// TimedOut returns deals stalled in a pre-payment or creative state whose
// last activity is older than cutoff.
func (s *Service) TimedOut(ctx context.Context, cutoff time.Time) ([]*Deal, error) {
	return s.store.ListStale(ctx, []Status{
		StatusNegotiating,
		StatusCreativePending,
		StatusCreativeReview,
	}, cutoff)
}

// DueForPosting returns scheduled deals whose post time has arrived.
func (s *Service) DueForPosting(ctx context.Context, now time.Time) ([]*Deal, error) {
	return s.store.ListScheduledDue(ctx, now)
}

// Schedule stamps the post time, then moves the deal to SCHEDULED. The
// time goes in first: a SCHEDULED deal with no post time would never
// come due, while a stamped deal that failed to transition stays out of
// the due query.
func (s *Service) Schedule(ctx context.Context, dealID string, postAt time.Time) (*Deal, error) {
	if err := s.store.SetScheduledPostTime(ctx, dealID, postAt); err != nil {
		return nil, err
	}
	d, err := s.Transition(ctx, dealID, StatusScheduled)
	if err != nil {
		return nil, err
	}
	d.ScheduledPostTime = &postAt
	return d, nil
}

// -----------------------------------------------------------------------------
// Creatives
// -----------------------------------------------------------------------------

// SubmitCreative stores a new creative version and moves the deal into
// review. Allowed from CREATIVE_PENDING.
func (s *Service) SubmitCreative(ctx context.Context, dealID, content string, mediaRefs []string) (*Creative, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: creative content is required", ErrValidation)
	}

	// Reject before persisting anything so a bad state can't orphan a
	// creative row.
	d, err := s.store.GetDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(d.Status, StatusCreativeReview) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, StatusCreativeReview)
	}

	version := 1
	if latest, err := s.store.LatestCreative(ctx, dealID); err == nil {
		version = latest.Version + 1
	} else if !errors.Is(err, ErrCreativeNotFound) {
		return nil, err
	}

	c := &Creative{
		ID:        idgen.WithPrefix("crt_"),
		DealID:    dealID,
		Version:   version,
		Content:   content,
		MediaRefs: mediaRefs,
		Status:    CreativeSubmitted,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateCreative(ctx, c); err != nil {
		return nil, err
	}

	if _, err := s.Transition(ctx, dealID, StatusCreativeReview); err != nil {
		return nil, err
	}
	return c, nil
}

// ApproveCreative marks a creative APPROVED and advances the deal.
func (s *Service) ApproveCreative(ctx context.Context, dealID, creativeID string) (*Creative, error) {
	c, err := s.creativeForDeal(ctx, dealID, creativeID)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateCreativeStatus(ctx, creativeID, CreativeApproved, ""); err != nil {
		return nil, err
	}
	if _, err := s.Transition(ctx, dealID, StatusCreativeApproved); err != nil {
		return nil, err
	}

	c.Status = CreativeApproved
	return c, nil
}

// RequestRevision sends a creative back with feedback and loops the deal
// to CREATIVE_PENDING.
func (s *Service) RequestRevision(ctx context.Context, dealID, creativeID, feedback string) (*Creative, error) {
	c, err := s.creativeForDeal(ctx, dealID, creativeID)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateCreativeStatus(ctx, creativeID, CreativeRevisionRequested, feedback); err != nil {
		return nil, err
	}
	if _, err := s.Transition(ctx, dealID, StatusCreativePending); err != nil {
		return nil, err
	}

	c.Status = CreativeRevisionRequested
	c.Feedback = feedback
	return c, nil
}

// LatestApproved returns the deal's newest creative if it is approved.
func (s *Service) LatestApproved(ctx context.Context, dealID string) (*Creative, error) {
	c, err := s.store.LatestCreative(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if c.Status != CreativeApproved {
		return nil, fmt.Errorf("%w: latest creative v%d is %s", ErrCreativeNotFound, c.Version, c.Status)
	}
	return c, nil
}

// Creatives lists all creative versions for a deal, newest first.
func (s *Service) Creatives(ctx context.Context, dealID string) ([]*Creative, error) {
	return s.store.ListCreatives(ctx, dealID)
}

func (s *Service) creativeForDeal(ctx context.Context, dealID, creativeID string) (*Creative, error) {
	c, err := s.store.GetCreative(ctx, creativeID)
	if err != nil {
		return nil, err
	}
	if c.DealID != dealID {
		return nil, fmt.Errorf("%w: creative %s does not belong to deal %s", ErrCreativeNotFound, creativeID, dealID)
	}
	return c, nil
}

// notifyParties sends state-specific copy to both sides. Failures are
// logged and swallowed; a lost notification never rolls back a transition.
func (s *Service) notifyParties(ctx context.Context, d *Deal, message string) {
	if s.notifier == nil || message == "" {
		return
	}
	for _, userID := range []string{d.AdvertiserID, d.ChannelOwnerID} {
		if err := s.notifier.NotifyUser(ctx, userID, message, d.ID); err != nil {
			logging.L(ctx).Warn("notification failed",
				"deal_id", d.ID, "user_id", userID, "error", err)
		}
	}
}
