package deal

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

func pgDeal(t *testing.T, db *sql.DB, status Status) *Deal {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	d := &Deal{
		ID:             "deal_pg_" + t.Name(),
		Status:         status,
		ChannelOwnerID: "owner_1",
		AdvertiserID:   "adv_1",
		AdFormatType:   "1/24",
		AgreedPrice:    5_000_000_000,
		LastActivityAt: now,
		CreatedAt:      now,
	}
	store := NewPostgresStore(db)
	require.NoError(t, store.CreateDeal(context.Background(), d))
	return d
}

func TestPostgresStore_CreateAndGet(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	d := pgDeal(t, db, StatusNegotiating)

	got, err := store.GetDeal(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)
	assert.Equal(t, StatusNegotiating, got.Status)
	assert.Equal(t, int64(5_000_000_000), got.AgreedPrice)
	assert.Nil(t, got.ScheduledPostTime)

	_, err = store.GetDeal(ctx, "deal_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_UpdateStatus_Conditional(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	d := pgDeal(t, db, StatusNegotiating)
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, store.UpdateStatus(ctx, d.ID, StatusNegotiating, StatusAwaitingPayment, now))

	// Second writer expecting the old status loses.
	err := store.UpdateStatus(ctx, d.ID, StatusNegotiating, StatusCancelled, now)
	assert.ErrorIs(t, err, ErrConflict)

	err = store.UpdateStatus(ctx, "deal_missing", StatusNegotiating, StatusCancelled, now)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := store.GetDeal(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingPayment, got.Status)
}

func TestPostgresStore_ListStale(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	d := pgDeal(t, db, StatusNegotiating)

	stale, err := store.ListStale(ctx,
		[]Status{StatusNegotiating, StatusCreativePending},
		time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, d.ID, stale[0].ID)

	// Cutoff in the past matches nothing.
	stale, err = store.ListStale(ctx,
		[]Status{StatusNegotiating},
		time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestPostgresStore_ListScheduledDue(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	d := pgDeal(t, db, StatusScheduled)
	postAt := time.Now().UTC().Add(-time.Minute).Truncate(time.Microsecond)
	require.NoError(t, store.SetScheduledPostTime(ctx, d.ID, postAt))

	due, err := store.ListScheduledDue(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, d.ID, due[0].ID)
	require.NotNil(t, due[0].ScheduledPostTime)
	assert.True(t, due[0].ScheduledPostTime.Equal(postAt))

	// Not due yet.
	require.NoError(t, store.SetScheduledPostTime(ctx, d.ID, time.Now().UTC().Add(time.Hour)))
	due, err = store.ListScheduledDue(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestPostgresStore_Creatives(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	d := pgDeal(t, db, StatusCreativePending)
	now := time.Now().UTC().Truncate(time.Microsecond)

	_, err := store.LatestCreative(ctx, d.ID)
	assert.ErrorIs(t, err, ErrCreativeNotFound)

	c1 := &Creative{
		ID: "crt_pg_1", DealID: d.ID, Version: 1,
		Content: "first draft", Status: CreativeSubmitted, CreatedAt: now,
	}
	c2 := &Creative{
		ID: "crt_pg_2", DealID: d.ID, Version: 2,
		Content: "second draft", MediaRefs: []string{"img_1", "img_2"},
		Status: CreativeSubmitted, CreatedAt: now,
	}
	require.NoError(t, store.CreateCreative(ctx, c1))
	require.NoError(t, store.CreateCreative(ctx, c2))

	latest, err := store.LatestCreative(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "crt_pg_2", latest.ID)
	assert.Equal(t, []string{"img_1", "img_2"}, latest.MediaRefs)

	all, err := store.ListCreatives(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 2, all[0].Version)

	require.NoError(t, store.UpdateCreativeStatus(ctx, c1.ID, CreativeRevisionRequested, "too long"))
	got, err := store.GetCreative(ctx, c1.ID)
	require.NoError(t, err)
	assert.Equal(t, CreativeRevisionRequested, got.Status)
	assert.Equal(t, "too long", got.Feedback)

	// Empty feedback keeps the previous one.
	require.NoError(t, store.UpdateCreativeStatus(ctx, c1.ID, CreativeSubmitted, ""))
	got, err = store.GetCreative(ctx, c1.ID)
	require.NoError(t, err)
	assert.Equal(t, "too long", got.Feedback)

	err = store.UpdateCreativeStatus(ctx, "crt_missing", CreativeApproved, "")
	assert.ErrorIs(t, err, ErrCreativeNotFound)
}
