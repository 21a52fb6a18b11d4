package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore is a PostgreSQL-backed payment store.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a payment store backed by the given database.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreatePayment(ctx context.Context, p *Payment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, deal_id, escrow_address, encrypted_custody_key,
			deposit_link, amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.DealID, p.EscrowAddress, p.EncryptedCustodyKey,
		p.DepositLink, p.Amount, p.Status, p.CreatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByDeal(ctx context.Context, dealID string) (*Payment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, deal_id, escrow_address, encrypted_custody_key,
			COALESCE(deposit_link, ''), amount, status, paid_at, released_at, created_at
		FROM payments WHERE deal_id = $1`, dealID)
	return scanPayment(row)
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, dealID string, from, to Status, at time.Time) error {
	var column string
	switch to {
	case StatusPaid:
		column = "paid_at"
	case StatusReleased:
		column = "released_at"
	}

	query := `UPDATE payments SET status = $1 WHERE deal_id = $2 AND status = $3`
	args := []any{to, dealID, from}
	if column != "" {
		query = fmt.Sprintf(
			`UPDATE payments SET status = $1, %s = $4 WHERE deal_id = $2 AND status = $3`, column)
		args = append(args, at)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	if n == 0 {
		if _, err := s.GetByDeal(ctx, dealID); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status Status) ([]*Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, deal_id, escrow_address, encrypted_custody_key,
			COALESCE(deposit_link, ''), amount, status, paid_at, released_at, created_at
		FROM payments WHERE status = $1 ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []*Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetPayoutAddress(ctx context.Context, userID, addr string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payout_addresses (user_id, address, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET address = $2, updated_at = NOW()`,
		userID, addr,
	)
	if err != nil {
		return fmt.Errorf("set payout address: %w", err)
	}
	return nil
}

func (s *PostgresStore) PayoutAddress(ctx context.Context, userID string) (string, error) {
	var addr string
	err := s.db.QueryRowContext(ctx,
		`SELECT address FROM payout_addresses WHERE user_id = $1`, userID,
	).Scan(&addr)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoPayoutAddress
	}
	if err != nil {
		return "", fmt.Errorf("get payout address: %w", err)
	}
	if addr == "" {
		return "", ErrNoPayoutAddress
	}
	return addr, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*Payment, error) {
	var p Payment
	var paidAt, releasedAt sql.NullTime
	err := row.Scan(&p.ID, &p.DealID, &p.EscrowAddress, &p.EncryptedCustodyKey,
		&p.DepositLink, &p.Amount, &p.Status, &paidAt, &releasedAt, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	if paidAt.Valid {
		t := paidAt.Time
		p.PaidAt = &t
	}
	if releasedAt.Valid {
		t := releasedAt.Time
		p.ReleasedAt = &t
	}
	return &p, nil
}
