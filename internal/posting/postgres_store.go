package posting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore is a PostgreSQL-backed post store.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a post store backed by the given database.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreatePost(ctx context.Context, p *Post) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (id, deal_id, channel_ref, message_id, posted_at, verified_until)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.DealID, p.ChannelRef, p.MessageID, p.PostedAt, p.VerifiedUntil,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return ErrAlreadyPosted
	}
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByDeal(ctx context.Context, dealID string) (*Post, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, deal_id, channel_ref, message_id, posted_at, verified_until,
			verified_at, is_deleted, is_edited, last_checked_at
		FROM posts WHERE deal_id = $1`, dealID)
	return scanPost(row)
}

func (s *PostgresStore) RecordCheck(ctx context.Context, postID string, deleted, edited bool, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE posts SET is_deleted = $1, is_edited = $2, last_checked_at = $3
		WHERE id = $4`, deleted, edited, at, postID)
	if err != nil {
		return fmt.Errorf("record post check: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) SetVerifiedAt(ctx context.Context, postID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE posts SET verified_at = $1 WHERE id = $2`, at, postID)
	if err != nil {
		return fmt.Errorf("set verified_at: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) ListUnverified(ctx context.Context) ([]*Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, deal_id, channel_ref, message_id, posted_at, verified_until,
			verified_at, is_deleted, is_edited, last_checked_at
		FROM posts WHERE verified_at IS NULL ORDER BY posted_at`)
	if err != nil {
		return nil, fmt.Errorf("list unverified posts: %w", err)
	}
	defer rows.Close()

	var out []*Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetChannelRef(ctx context.Context, userID, channelRef string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channel_refs (user_id, channel_ref, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET channel_ref = $2, updated_at = NOW()`,
		userID, channelRef,
	)
	if err != nil {
		return fmt.Errorf("set channel ref: %w", err)
	}
	return nil
}

func (s *PostgresStore) ChannelRef(ctx context.Context, userID string) (string, error) {
	var ref string
	err := s.db.QueryRowContext(ctx,
		`SELECT channel_ref FROM channel_refs WHERE user_id = $1`, userID,
	).Scan(&ref)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoChannelRef
	}
	if err != nil {
		return "", fmt.Errorf("get channel ref: %w", err)
	}
	if ref == "" {
		return "", ErrNoChannelRef
	}
	return ref, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*Post, error) {
	var p Post
	var verifiedAt, lastCheckedAt sql.NullTime
	err := row.Scan(&p.ID, &p.DealID, &p.ChannelRef, &p.MessageID, &p.PostedAt,
		&p.VerifiedUntil, &verifiedAt, &p.IsDeleted, &p.IsEdited, &lastCheckedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan post: %w", err)
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		p.VerifiedAt = &t
	}
	if lastCheckedAt.Valid {
		t := lastCheckedAt.Time
		p.LastCheckedAt = &t
	}
	return &p, nil
}
