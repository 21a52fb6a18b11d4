package payment

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonpost/tonpost/internal/testutil"
)

// Integration tests against a real PostgreSQL. Skipped unless POSTGRES_URL
// is set.

// seedDeal satisfies the payments -> deals foreign key.
func seedDeal(t *testing.T, db *sql.DB, dealID string) {
	t.Helper()
	_, err := db.ExecContext(context.Background(), `
		INSERT INTO deals (id, status, channel_owner_id, advertiser_id,
			agreed_price, last_activity_at, created_at)
		VALUES ($1, 'AWAITING_PAYMENT', 'owner_1', 'adv_1', 5000000000, NOW(), NOW())`,
		dealID)
	require.NoError(t, err)
}

func pgPayment(dealID string) *Payment {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &Payment{
		ID:                  "pay_pg_" + dealID,
		DealID:              dealID,
		EscrowAddress:       "EQescrow_" + dealID,
		EncryptedCustodyKey: "aabbcc",
		DepositLink:         "ton://transfer/EQescrow?amount=5000000000",
		Amount:              5_000_000_000,
		Status:              StatusPending,
		CreatedAt:           now,
	}
}

func TestPostgresStore_CreateAndGetByDeal(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	seedDeal(t, db, "d1")
	p := pgPayment("d1")
	require.NoError(t, store.CreatePayment(ctx, p))

	got, err := store.GetByDeal(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, int64(5_000_000_000), got.Amount)
	assert.Equal(t, "aabbcc", got.EncryptedCustodyKey)
	assert.Nil(t, got.PaidAt)

	// One payment per deal.
	dup := pgPayment("d1")
	dup.ID = "pay_pg_other"
	err = store.CreatePayment(ctx, dup)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = store.GetByDeal(ctx, "d_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_StatusAdvance_StampsTimestamps(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	seedDeal(t, db, "d1")
	require.NoError(t, store.CreatePayment(ctx, pgPayment("d1")))

	paidAt := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, store.UpdateStatus(ctx, "d1", StatusPending, StatusPaid, paidAt))

	got, err := store.GetByDeal(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, got.Status)
	require.NotNil(t, got.PaidAt)
	assert.True(t, got.PaidAt.Equal(paidAt))
	assert.Nil(t, got.ReleasedAt)

	releasedAt := paidAt.Add(time.Minute)
	require.NoError(t, store.UpdateStatus(ctx, "d1", StatusPaid, StatusReleased, releasedAt))

	got, err = store.GetByDeal(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, StatusReleased, got.Status)
	require.NotNil(t, got.ReleasedAt)
	assert.True(t, got.ReleasedAt.Equal(releasedAt))
}

func TestPostgresStore_StatusConflicts(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	seedDeal(t, db, "d1")
	require.NoError(t, store.CreatePayment(ctx, pgPayment("d1")))
	now := time.Now().UTC()

	err := store.UpdateStatus(ctx, "d1", StatusPaid, StatusReleased, now)
	assert.ErrorIs(t, err, ErrConflict)

	err = store.UpdateStatus(ctx, "d_missing", StatusPending, StatusPaid, now)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_ListByStatus(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	for _, dealID := range []string{"d1", "d2", "d3"} {
		seedDeal(t, db, dealID)
		require.NoError(t, store.CreatePayment(ctx, pgPayment(dealID)))
	}
	require.NoError(t, store.UpdateStatus(ctx, "d2", StatusPending, StatusPaid, time.Now().UTC()))

	paid, err := store.ListByStatus(ctx, StatusPaid)
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Equal(t, "d2", paid[0].DealID)

	pending, err := store.ListByStatus(ctx, StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestPostgresStore_PayoutAddresses(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	_, err := store.PayoutAddress(ctx, "u1")
	assert.ErrorIs(t, err, ErrNoPayoutAddress)

	require.NoError(t, store.SetPayoutAddress(ctx, "u1", "EQowner_one"))
	addr, err := store.PayoutAddress(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "EQowner_one", addr)

	// Upsert replaces.
	require.NoError(t, store.SetPayoutAddress(ctx, "u1", "EQowner_two"))
	addr, err = store.PayoutAddress(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "EQowner_two", addr)
}
