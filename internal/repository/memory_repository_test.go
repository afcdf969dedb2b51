package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maheshrc27/crosspost/internal/common"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScheduled(id string, accountID int64, at time.Time) *models.PostGroup {
	return &models.PostGroup{
		ID:            id,
		AccountID:     accountID,
		Content:       "hello",
		ConnectionIDs: []int64{1},
		ScheduledTime: &at,
		Status:        models.PostStatusScheduled,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
}

func TestMemoryStore_QuotaCapUnderConcurrentCreates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	const limit = 10

	var wg sync.WaitGroup
	var accepted, rejected atomic.Int32
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.Create(ctx, newScheduled(fmt.Sprintf("g%d", i), 1, time.Now().Add(time.Hour)), limit)
			switch {
			case err == nil:
				accepted.Add(1)
			case assert.ErrorIs(t, err, common.ErrQuotaExceeded):
				rejected.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(limit), accepted.Load())
	assert.Equal(t, int32(64-limit), rejected.Load())

	pending, err := store.PendingCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, limit, pending)
}

func TestMemoryStore_MarkProcessingOnlyOnce(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newScheduled("g1", 1, time.Now().Add(-time.Second)), 5))

	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.MarkProcessing(ctx, "g1", time.Now())
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestMemoryStore_FinalizeReleasesQuotaOnce(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newScheduled("g1", 1, time.Now()), 5))
	_, err := store.MarkProcessing(ctx, "g1", time.Now())
	require.NoError(t, err)

	ok, err := store.Finalize(ctx, "g1", models.PostStatusPublished, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Finalize(ctx, "g1", models.PostStatusFailed, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	pending, _ := store.PendingCount(ctx, 1)
	assert.Equal(t, 0, pending)

	g, err := store.GetByID(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPublished, g.Status)
}

func TestMemoryStore_DeleteCascades(t *testing.T) {
	store := NewMemoryStore()
	media := store.Media()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newScheduled("g1", 1, time.Now().Add(time.Hour)), 5))
	require.NoError(t, media.Attach(ctx, &models.MediaReference{ID: "m1", PostGroupID: "g1", Kind: models.MediaKindImage}, 4))
	require.NoError(t, store.CreatePlatformPosts(ctx, []*models.PlatformPost{
		{ID: "p1", PostGroupID: "g1", ConnectionID: 1, Status: models.PlatformPostPending},
	}))

	removed, err := store.Delete(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, removed, 1)

	_, err = store.GetByID(ctx, "g1")
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = media.GetByID(ctx, "m1")
	assert.ErrorIs(t, err, common.ErrNotFound)
	posts, _ := store.ListPlatformPosts(ctx, "g1")
	assert.Empty(t, posts)

	pending, _ := store.PendingCount(ctx, 1)
	assert.Equal(t, 0, pending)
}

func TestMemoryStore_AttachEnforcesMediaMix(t *testing.T) {
	store := NewMemoryStore()
	media := store.Media()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newScheduled("g1", 1, time.Now().Add(time.Hour)), 5))

	require.NoError(t, media.Attach(ctx, &models.MediaReference{ID: "i1", PostGroupID: "g1", Kind: models.MediaKindImage}, 2))
	require.NoError(t, media.Attach(ctx, &models.MediaReference{ID: "i2", PostGroupID: "g1", Kind: models.MediaKindImage}, 2))

	err := media.Attach(ctx, &models.MediaReference{ID: "i3", PostGroupID: "g1", Kind: models.MediaKindImage}, 2)
	assert.ErrorIs(t, err, common.ErrInvalidMediaRequest)

	err = media.Attach(ctx, &models.MediaReference{ID: "v1", PostGroupID: "g1", Kind: models.MediaKindVideo}, 2)
	assert.ErrorIs(t, err, common.ErrInvalidMediaRequest)

	list, _ := media.ListByPostGroup(ctx, "g1")
	require.Len(t, list, 2)
	assert.Equal(t, 1, list[1].DisplayOrder)
}

func TestMemoryStore_UpdatePlatformPostIsMonotonic(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.CreatePlatformPosts(ctx, []*models.PlatformPost{
		{ID: "p1", PostGroupID: "g1", ConnectionID: 1, Status: models.PlatformPostPending},
	}))

	ok, err := store.UpdatePlatformPost(ctx, &models.PlatformPost{ID: "p1", PostGroupID: "g1", Status: models.PlatformPostProcessing}, models.PlatformPostPending)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.UpdatePlatformPost(ctx, &models.PlatformPost{ID: "p1", PostGroupID: "g1", Status: models.PlatformPostProcessing}, models.PlatformPostPending)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.UpdatePlatformPost(ctx, &models.PlatformPost{ID: "p1", PostGroupID: "g1", Status: models.PlatformPostPending}, models.PlatformPostPublished)
	assert.ErrorIs(t, err, common.ErrInvalidState)
}

func TestMemoryStore_UpdateRejectsStaleScheduledTime(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	first := time.Now().Add(time.Hour).UTC()
	require.NoError(t, store.Create(ctx, newScheduled("g1", 1, first), 5))

	// Two editors read the group at the same time.
	a, err := store.GetByID(ctx, "g1")
	require.NoError(t, err)
	b, err := store.GetByID(ctx, "g1")
	require.NoError(t, err)
	readA, readB := a.ScheduledTime, b.ScheduledTime

	far := first.Add(3 * time.Hour)
	a.ScheduledTime = &far
	require.NoError(t, store.Update(ctx, a, models.PostStatusScheduled, readA, 5))

	near := first.Add(time.Hour)
	b.ScheduledTime = &near
	err = store.Update(ctx, b, models.PostStatusScheduled, readB, 5)
	assert.ErrorIs(t, err, common.ErrInvalidState)

	got, err := store.GetByID(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, got.ScheduledTime.Equal(far))
}
