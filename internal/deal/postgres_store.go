package deal

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
)

// PostgresStore is the production Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time interface check
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) CreateDeal(ctx context.Context, d *Deal) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO deals (id, status, channel_owner_id, advertiser_id, campaign_id,
			ad_format_type, agreed_price, scheduled_post_time, last_activity_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		d.ID, d.Status, d.ChannelOwnerID, d.AdvertiserID, nullStr(d.CampaignID),
		d.AdFormatType, d.AgreedPrice, d.ScheduledPostTime, d.LastActivityAt, d.CreatedAt)
	return err
}

func (p *PostgresStore) GetDeal(ctx context.Context, id string) (*Deal, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, status, channel_owner_id, advertiser_id, COALESCE(campaign_id, ''),
			ad_format_type, agreed_price, scheduled_post_time, last_activity_at, created_at
		FROM deals WHERE id = $1`, id)
	return scanDeal(row)
}

func (p *PostgresStore) UpdateStatus(ctx context.Context, id string, from, to Status, at time.Time) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE deals SET status = $1, last_activity_at = $2
		WHERE id = $3 AND status = $4`,
		to, at, id, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either the deal is gone or another writer moved it first.
		if _, getErr := p.GetDeal(ctx, id); getErr != nil {
			return getErr
		}
		return ErrConflict
	}
	return nil
}

func (p *PostgresStore) SetScheduledPostTime(ctx context.Context, id string, at time.Time) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE deals SET scheduled_post_time = $1 WHERE id = $2`, at, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) ListScheduledDue(ctx context.Context, now time.Time) ([]*Deal, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, status, channel_owner_id, advertiser_id, COALESCE(campaign_id, ''),
			ad_format_type, agreed_price, scheduled_post_time, last_activity_at, created_at
		FROM deals
		WHERE status = $1 AND scheduled_post_time IS NOT NULL AND scheduled_post_time <= $2
		ORDER BY scheduled_post_time`, StatusScheduled, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *PostgresStore) ListStale(ctx context.Context, statuses []Status, cutoff time.Time) ([]*Deal, error) {
	ss := make([]string, len(statuses))
	for i, s := range statuses {
		ss[i] = string(s)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, status, channel_owner_id, advertiser_id, COALESCE(campaign_id, ''),
			ad_format_type, agreed_price, scheduled_post_time, last_activity_at, created_at
		FROM deals
		WHERE status = ANY($1) AND last_activity_at < $2
		ORDER BY last_activity_at`, pq.Array(ss), cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *PostgresStore) CreateCreative(ctx context.Context, c *Creative) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO creatives (id, deal_id, version, content, media_refs, status, feedback, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.DealID, c.Version, c.Content, pq.Array(c.MediaRefs), c.Status, nullStr(c.Feedback), c.CreatedAt)
	return err
}

func (p *PostgresStore) GetCreative(ctx context.Context, id string) (*Creative, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, deal_id, version, content, media_refs, status, COALESCE(feedback, ''), created_at
		FROM creatives WHERE id = $1`, id)
	return scanCreative(row)
}

func (p *PostgresStore) LatestCreative(ctx context.Context, dealID string) (*Creative, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, deal_id, version, content, media_refs, status, COALESCE(feedback, ''), created_at
		FROM creatives WHERE deal_id = $1
		ORDER BY version DESC LIMIT 1`, dealID)
	return scanCreative(row)
}

func (p *PostgresStore) ListCreatives(ctx context.Context, dealID string) ([]*Creative, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, deal_id, version, content, media_refs, status, COALESCE(feedback, ''), created_at
		FROM creatives WHERE deal_id = $1
		ORDER BY version DESC`, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Creative
	for rows.Next() {
		c, err := scanCreative(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpdateCreativeStatus(ctx context.Context, id string, status CreativeStatus, feedback string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE creatives SET status = $1, feedback = COALESCE(NULLIF($2, ''), feedback)
		WHERE id = $3`,
		status, feedback, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrCreativeNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeal(row rowScanner) (*Deal, error) {
	var d Deal
	var scheduled sql.NullTime
	err := row.Scan(&d.ID, &d.Status, &d.ChannelOwnerID, &d.AdvertiserID, &d.CampaignID,
		&d.AdFormatType, &d.AgreedPrice, &scheduled, &d.LastActivityAt, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if scheduled.Valid {
		t := scheduled.Time
		d.ScheduledPostTime = &t
	}
	return &d, nil
}

func scanCreative(row rowScanner) (*Creative, error) {
	var c Creative
	err := row.Scan(&c.ID, &c.DealID, &c.Version, &c.Content, pq.Array(&c.MediaRefs),
		&c.Status, &c.Feedback, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCreativeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
