package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTasks struct {
	mu        sync.Mutex
	published []string
	fail      bool
}

func (r *recordingTasks) EnqueuePublish(_ context.Context, groupID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("redis unavailable")
	}
	r.published = append(r.published, groupID)
	return nil
}

func (r *recordingTasks) EnqueueMediaProcess(context.Context, string) error    { return nil }
func (r *recordingTasks) EnqueueMediaCleanup(context.Context, []string) error { return nil }

func (r *recordingTasks) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.published)
}

func seed(t *testing.T, store *repository.MemoryStore, id string, status models.PostGroupStatus, at time.Time) {
	t.Helper()
	require.NoError(t, store.Create(context.Background(), &models.PostGroup{
		ID:            id,
		AccountID:     1,
		Content:       id,
		ConnectionIDs: []int64{1},
		ScheduledTime: &at,
		Status:        status,
	}, 100))
}

func TestSchedulerJob_ConcurrentTicksDispatchOnce(t *testing.T) {
	store := repository.NewMemoryStore()
	tasks := &recordingTasks{}
	seed(t, store, "due", models.PostStatusScheduled, time.Now().Add(-time.Minute))

	a := NewSchedulerJob(store, tasks, 10, time.Hour)
	b := NewSchedulerJob(store, tasks, 10, time.Hour)

	var wg sync.WaitGroup
	for _, s := range []*SchedulerJob{a, b, a, b} {
		wg.Add(1)
		go func(s *SchedulerJob) {
			defer wg.Done()
			s.Tick(context.Background())
		}(s)
	}
	wg.Wait()

	assert.Equal(t, 1, tasks.count())
	g, err := store.GetByID(context.Background(), "due")
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusProcessing, g.Status)
}

func TestSchedulerJob_OnlyScheduledAndDueGroups(t *testing.T) {
	store := repository.NewMemoryStore()
	tasks := &recordingTasks{}
	past := time.Now().Add(-time.Minute)
	seed(t, store, "due", models.PostStatusScheduled, past)
	seed(t, store, "later", models.PostStatusScheduled, time.Now().Add(time.Hour))
	seed(t, store, "draft", models.PostStatusDraft, past)

	s := NewSchedulerJob(store, tasks, 10, time.Hour)
	assert.Equal(t, 1, s.Tick(context.Background()))
	assert.Equal(t, []string{"due"}, tasks.published)

	for id, want := range map[string]models.PostGroupStatus{
		"later": models.PostStatusScheduled,
		"draft": models.PostStatusDraft,
	} {
		g, err := store.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, want, g.Status, id)
	}

	assert.Zero(t, s.Tick(context.Background()))
}

func TestSchedulerJob_RedispatchesStaleGroups(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	tasks := &recordingTasks{fail: true}
	seed(t, store, "due", models.PostStatusScheduled, time.Now().Add(-time.Minute))

	s := NewSchedulerJob(store, tasks, 10, 15*time.Minute)
	assert.Zero(t, s.Tick(ctx), "enqueue failed")

	tasks.fail = false
	assert.Zero(t, s.Tick(ctx), "not stale yet")

	s.now = func() time.Time { return time.Now().Add(20 * time.Minute) }
	assert.Equal(t, 1, s.Tick(ctx))
	assert.Equal(t, []string{"due"}, tasks.published)

	assert.Zero(t, s.Tick(ctx), "claim refreshed processing_since")
}
