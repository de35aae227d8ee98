package service

import (
	"context"
	"testing"
	"time"

	"mobileshop/internal/infrastructure/cache"
	"mobileshop/internal/model"
	"mobileshop/internal/repository"
	"mobileshop/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newNumberService(t *testing.T) (*NumberService, *fakeCache, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	fc := newFakeCache()
	svc := NewNumberService(db, fc, testConfig(), zap.NewNop())
	return svc, fc, db
}

// backdateHold forces a reservation deadline into the past without waiting.
func backdateHold(t *testing.T, db *gorm.DB, numberID int64) {
	t.Helper()
	require.NoError(t, db.Model(&model.PhoneNumber{}).
		Where("id = ?", numberID).
		UpdateColumn("reserved_until", time.Now().Add(-time.Second)).Error)
}

func TestReserveAndConflict(t *testing.T) {
	svc, fc, db := newNumberService(t)
	repo := repository.NewNumberRepository(db)
	ctx := context.Background()

	n := &model.PhoneNumber{Number: "010-9999-0001", Status: model.NumberStatusAvailable}
	require.NoError(t, repo.Create(ctx, n))

	got, err := svc.Reserve(ctx, n.ID, 100, 0)
	require.NoError(t, err)
	assert.Equal(t, model.NumberStatusReserved, got.Status)
	require.NotNil(t, got.ReservedUntil)
	// Default TTL is applied when none is given.
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), *got.ReservedUntil, time.Minute)

	// Reservation invalidated the listing cache.
	assert.Contains(t, fc.deleted, cache.AvailableNumbersKey())

	_, err = svc.Reserve(ctx, n.ID, 200, 0)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	_, err = svc.Reserve(ctx, 9999, 100, 0)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestGetLazilyExpiresHolds(t *testing.T) {
	svc, _, db := newNumberService(t)
	repo := repository.NewNumberRepository(db)
	ctx := context.Background()

	n := &model.PhoneNumber{Number: "010-9999-0001", Status: model.NumberStatusAvailable}
	require.NoError(t, repo.Create(ctx, n))

	_, err := svc.Reserve(ctx, n.ID, 100, time.Second)
	require.NoError(t, err)

	// Force the deadline into the past rather than sleeping.
	backdateHold(t, db, n.ID)

	got, err := svc.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.NumberStatusAvailable, got.Status)
}

func TestGetByNumber(t *testing.T) {
	svc, _, db := newNumberService(t)
	repo := repository.NewNumberRepository(db)
	ctx := context.Background()

	n := &model.PhoneNumber{Number: "010-9999-0001", Status: model.NumberStatusAvailable}
	require.NoError(t, repo.Create(ctx, n))

	got, err := svc.GetByNumber(ctx, "010-9999-0001")
	require.NoError(t, err)
	assert.Equal(t, n.ID, got.ID)

	_, err = svc.GetByNumber(ctx, "010-0000-0000")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	// Lookups by dial string reclaim lapsed holds too.
	_, err = svc.Reserve(ctx, n.ID, 100, time.Second)
	require.NoError(t, err)
	backdateHold(t, db, n.ID)

	got, err = svc.GetByNumber(ctx, "010-9999-0001")
	require.NoError(t, err)
	assert.Equal(t, model.NumberStatusAvailable, got.Status)
}

func TestReclaimExpired(t *testing.T) {
	svc, _, db := newNumberService(t)
	repo := repository.NewNumberRepository(db)
	ctx := context.Background()

	for _, num := range []string{"010-9999-0001", "010-9999-0002"} {
		n := &model.PhoneNumber{Number: num, Status: model.NumberStatusAvailable}
		require.NoError(t, repo.Create(ctx, n))
		require.NoError(t, repo.Reserve(ctx, nil, n.ID, 100, time.Now().Add(time.Minute)))
		backdateHold(t, db, n.ID)
	}
	live := &model.PhoneNumber{Number: "010-9999-0003", Status: model.NumberStatusAvailable}
	require.NoError(t, repo.Create(ctx, live))
	require.NoError(t, repo.Reserve(ctx, nil, live.ID, 200, time.Now().Add(30*time.Minute)))

	reclaimed, err := svc.ReclaimExpired(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, reclaimed)

	// The live hold is untouched.
	got, err := repo.GetByID(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, model.NumberStatusReserved, got.Status)
}

func TestReleaseOwnershipChecked(t *testing.T) {
	svc, _, db := newNumberService(t)
	repo := repository.NewNumberRepository(db)
	ctx := context.Background()

	n := &model.PhoneNumber{Number: "010-9999-0001", Status: model.NumberStatusAvailable}
	require.NoError(t, repo.Create(ctx, n))
	_, err := svc.Reserve(ctx, n.ID, 100, 0)
	require.NoError(t, err)

	err = svc.Release(ctx, n.ID, 200)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	require.NoError(t, svc.Release(ctx, n.ID, 100))
}
