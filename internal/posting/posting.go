// Package posting publishes approved creatives to Telegram channels and
// watches the published post through its verification window.
package posting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tonpost/tonpost/internal/deal"
	"github.com/tonpost/tonpost/internal/idgen"
	"github.com/tonpost/tonpost/internal/logging"
	"github.com/tonpost/tonpost/internal/metrics"
	"github.com/tonpost/tonpost/internal/payment"
)

var (
	ErrNotFound      = errors.New("post not found")
	ErrAlreadyPosted = errors.New("deal already has a published post")
	ErrNoChannelRef  = errors.New("no channel registered for user")
	ErrWindowOpen    = errors.New("verification window still open")
	ErrTampered      = errors.New("post was deleted or edited")
)

// Post is the published artifact reference, one per deal.
type Post struct {
	ID            string     `json:"id"`
	DealID        string     `json:"deal_id"`
	ChannelRef    string     `json:"channel_ref"`
	MessageID     int64      `json:"message_id"`
	PostedAt      time.Time  `json:"posted_at"`
	VerifiedUntil time.Time  `json:"verified_until"`
	VerifiedAt    *time.Time `json:"verified_at,omitempty"`
	IsDeleted     bool       `json:"is_deleted"`
	IsEdited      bool       `json:"is_edited"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
}

// Intact reports whether the post survived untouched so far.
func (p *Post) Intact() bool {
	return !p.IsDeleted && !p.IsEdited
}

// PostCheck is what a single integrity probe observed on the channel.
type PostCheck struct {
	Exists bool
	Edited bool
}

// Poster is the Telegram-side collaborator: it publishes content and
// re-reads it later. Implementations live outside the core.
type Poster interface {
	PostToChannel(ctx context.Context, channelRef, content string, mediaRefs []string) (int64, error)
	VerifyPost(ctx context.Context, channelRef string, messageID int64) (PostCheck, error)
}

// Store persists posts and the owner -> channel directory.
type Store interface {
	CreatePost(ctx context.Context, p *Post) error
	GetByDeal(ctx context.Context, dealID string) (*Post, error)

	// RecordCheck stamps the latest integrity observation.
	RecordCheck(ctx context.Context, postID string, deleted, edited bool, at time.Time) error
	SetVerifiedAt(ctx context.Context, postID string, at time.Time) error

	// ListUnverified returns posts with no VerifiedAt yet.
	ListUnverified(ctx context.Context) ([]*Post, error)

	SetChannelRef(ctx context.Context, userID, channelRef string) error
	// ChannelRef returns ErrNoChannelRef when none is registered.
	ChannelRef(ctx context.Context, userID string) (string, error)
}

// DealService is the slice of the deal lifecycle posting drives.
type DealService interface {
	Get(ctx context.Context, id string) (*deal.Deal, error)
	Transition(ctx context.Context, dealID string, target deal.Status) (*deal.Deal, error)
	LatestApproved(ctx context.Context, dealID string) (*deal.Creative, error)
	DueForPosting(ctx context.Context, now time.Time) ([]*deal.Deal, error)
}

// FundMover settles the escrow once verification concludes.
type FundMover interface {
	ReleaseOnPostConfirmation(ctx context.Context, dealID string) (*payment.Payment, error)
	Refund(ctx context.Context, dealID string) (*payment.Payment, error)
}

// Service publishes posts and runs the verification protocol.
type Service struct {
	store  Store
	deals  DealService
	poster Poster
	funds  FundMover
	window time.Duration
}

// NewService creates a posting service. window is how long a post must
// stay up, untouched, before funds release.
func NewService(store Store, deals DealService, poster Poster, funds FundMover, window time.Duration) *Service {
	return &Service{store: store, deals: deals, poster: poster, funds: funds, window: window}
}

// Publish pushes the latest approved creative to the owner's channel and
// moves the deal to POSTED. The deal must be SCHEDULED.
func (s *Service) Publish(ctx context.Context, dealID string) (*Post, error) {
	d, err := s.deals.Get(ctx, dealID)
	if err != nil {
		return nil, err
	}

	// One post per deal, checked before the status gate: a published deal
	// is already POSTED and would otherwise report an invalid transition.
	if _, err := s.store.GetByDeal(ctx, dealID); err == nil {
		return nil, ErrAlreadyPosted
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if d.Status != deal.StatusScheduled {
		return nil, fmt.Errorf("%w: deal is %s, want %s",
			deal.ErrInvalidTransition, d.Status, deal.StatusScheduled)
	}

	channelRef, err := s.store.ChannelRef(ctx, d.ChannelOwnerID)
	if err != nil {
		return nil, err
	}

	creative, err := s.deals.LatestApproved(ctx, dealID)
	if err != nil {
		return nil, err
	}

	messageID, err := s.poster.PostToChannel(ctx, channelRef, creative.Content, creative.MediaRefs)
	if err != nil {
		return nil, fmt.Errorf("post to channel %s: %w", channelRef, err)
	}

	now := time.Now().UTC()
	p := &Post{
		ID:            idgen.WithPrefix("post_"),
		DealID:        dealID,
		ChannelRef:    channelRef,
		MessageID:     messageID,
		PostedAt:      now,
		VerifiedUntil: now.Add(s.window),
	}
	if err := s.store.CreatePost(ctx, p); err != nil {
		return nil, err
	}

	if _, err := s.deals.Transition(ctx, dealID, deal.StatusPosted); err != nil {
		// The message is already out; the verification job will pick the
		// deal up from the persisted post either way.
		logging.L(ctx).Warn("post published but deal transition failed",
			"dealId", dealID, "error", err)
	}

	metrics.PostsPublishedTotal.Inc()
	logging.L(ctx).Info("creative published",
		"dealId", dealID, "channel", channelRef, "messageId", messageID)
	return p, nil
}

// Get returns the post for a deal.
func (s *Service) Get(ctx context.Context, dealID string) (*Post, error) {
	return s.store.GetByDeal(ctx, dealID)
}

// VerifyIntegrity re-reads the post from the channel and records what it
// found. A post that disappears or changes stays flagged permanently.
func (s *Service) VerifyIntegrity(ctx context.Context, dealID string) (*Post, error) {
	p, err := s.store.GetByDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}

	check, err := s.poster.VerifyPost(ctx, p.ChannelRef, p.MessageID)
	if err != nil {
		return nil, fmt.Errorf("verify post %d on %s: %w", p.MessageID, p.ChannelRef, err)
	}

	now := time.Now().UTC()
	deleted := p.IsDeleted || !check.Exists
	edited := p.IsEdited || check.Edited
	if err := s.store.RecordCheck(ctx, p.ID, deleted, edited, now); err != nil {
		return nil, err
	}
	p.IsDeleted = deleted
	p.IsEdited = edited
	p.LastCheckedAt = &now
	return p, nil
}

// VerificationComplete stamps VerifiedAt once the window has elapsed on
// an intact post.
func (s *Service) VerificationComplete(ctx context.Context, dealID string) (*Post, error) {
	p, err := s.store.GetByDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if !p.Intact() {
		return nil, ErrTampered
	}
	if time.Now().UTC().Before(p.VerifiedUntil) {
		return nil, ErrWindowOpen
	}

	now := time.Now().UTC()
	if err := s.store.SetVerifiedAt(ctx, p.ID, now); err != nil {
		return nil, err
	}
	p.VerifiedAt = &now
	return p, nil
}

// SetChannelRef registers the channel an owner's deals publish to.
func (s *Service) SetChannelRef(ctx context.Context, userID, channelRef string) error {
	return s.store.SetChannelRef(ctx, userID, channelRef)
}

// ChannelRef returns the channel registered for a user.
func (s *Service) ChannelRef(ctx context.Context, userID string) (string, error) {
	return s.store.ChannelRef(ctx, userID)
}
