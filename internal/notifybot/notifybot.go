// Package notifybot holds the in-process implementations of the Telegram
// collaborator boundaries: user notification and channel posting. The
// real bot lives outside this service; these adapters keep development
// and single-binary deployments working without it.
package notifybot

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tonpost/tonpost/internal/posting"
)

// LogNotifier writes notifications to the log instead of Telegram.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that only logs.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyUser(_ context.Context, userID, message, dealID string) error {
	n.logger.Info("notify", "userId", userID, "dealId", dealID, "message", message)
	return nil
}

// Broadcaster is the slice of the realtime hub notifications fan out to.
type Broadcaster interface {
	BroadcastNotification(userID, message, dealID string)
}

// Fanout delivers a notification through every configured notifier.
// The first error is returned, but every notifier still runs.
type Fanout struct {
	notifiers []Notifier
}

// Notifier mirrors the deal-side collaborator contract.
type Notifier interface {
	NotifyUser(ctx context.Context, userID, message, dealID string) error
}

// NewFanout composes notifiers.
func NewFanout(notifiers ...Notifier) *Fanout {
	return &Fanout{notifiers: notifiers}
}

func (f *Fanout) NotifyUser(ctx context.Context, userID, message, dealID string) error {
	var first error
	for _, n := range f.notifiers {
		if err := n.NotifyUser(ctx, userID, message, dealID); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// LogPoster stands in for the Telegram channel bot: it assigns synthetic
// message ids and reports every post as intact. Deployments with a real
// bot replace it at wiring time.
type LogPoster struct {
	logger *slog.Logger
	nextID atomic.Int64

	mu      sync.RWMutex
	deleted map[int64]bool
	edited  map[int64]bool
}

var _ posting.Poster = (*LogPoster)(nil)

// NewLogPoster creates the stand-in poster.
func NewLogPoster(logger *slog.Logger) *LogPoster {
	p := &LogPoster{
		logger:  logger,
		deleted: make(map[int64]bool),
		edited:  make(map[int64]bool),
	}
	p.nextID.Store(1000)
	return p
}

func (p *LogPoster) PostToChannel(_ context.Context, channelRef, content string, mediaRefs []string) (int64, error) {
	id := p.nextID.Add(1)
	p.logger.Info("post to channel",
		"channel", channelRef, "messageId", id, "mediaCount", len(mediaRefs), "content", content)
	return id, nil
}

func (p *LogPoster) VerifyPost(_ context.Context, channelRef string, messageID int64) (posting.PostCheck, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	check := posting.PostCheck{
		Exists: !p.deleted[messageID],
		Edited: p.edited[messageID],
	}
	p.logger.Debug("verify post",
		"channel", channelRef, "messageId", messageID, "exists", check.Exists, "edited", check.Edited)
	return check, nil
}

// MarkDeleted simulates a channel owner removing the post. Used by admin
// tooling and tests.
func (p *LogPoster) MarkDeleted(messageID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted[messageID] = true
}

// MarkEdited simulates the post being edited in place.
func (p *LogPoster) MarkEdited(messageID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.edited[messageID] = true
}

// HubNotifier mirrors deal notifications onto the realtime hub so
// connected dashboards see activity without a Telegram round trip.
type HubNotifier struct {
	hub Broadcaster
}

// NewHubNotifier creates a notifier that broadcasts to the hub.
func NewHubNotifier(hub Broadcaster) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) NotifyUser(_ context.Context, userID, message, dealID string) error {
	n.hub.BroadcastNotification(userID, message, dealID)
	return nil
}
