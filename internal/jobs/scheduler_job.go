package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/service"
)

// SchedulerJob promotes due post groups to processing and hands them to the
// publish queue. Any number of instances may run; the store's conditional
// update decides which one dispatches a group.
type SchedulerJob struct {
	posts      repository.PostGroupRepository
	tasks      service.TaskEnqueuer
	batchSize  int
	staleAfter time.Duration
	now        func() time.Time
}

func NewSchedulerJob(
	posts repository.PostGroupRepository,
	tasks service.TaskEnqueuer,
	batchSize int,
	staleAfter time.Duration) *SchedulerJob {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &SchedulerJob{
		posts:      posts,
		tasks:      tasks,
		batchSize:  batchSize,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Run is the cron entry point.
func (c *SchedulerJob) Run() {
	ctx := context.Background()
	if n := c.Tick(ctx); n > 0 {
		slog.Info("scheduler dispatched post groups", "count", n)
	}
}

// Tick runs one pass and returns how many groups this instance dispatched.
func (c *SchedulerJob) Tick(ctx context.Context) int {
	now := c.now().UTC()
	dispatched := 0

	due, err := c.posts.ListDue(ctx, now, c.batchSize)
	if err != nil {
		slog.Error("list due post groups", "error", err)
	}
	for _, id := range due {
		won, err := c.posts.MarkProcessing(ctx, id, now)
		if err != nil {
			slog.Error("promote post group", "post_group_id", id, "error", err)
			continue
		}
		if !won {
			continue
		}
		if c.dispatch(ctx, id) {
			dispatched++
		}
	}

	if c.staleAfter <= 0 {
		return dispatched
	}

	before := now.Add(-c.staleAfter)
	stale, err := c.posts.ListStale(ctx, before, c.batchSize)
	if err != nil {
		slog.Error("list stale post groups", "error", err)
		return dispatched
	}
	for _, id := range stale {
		won, err := c.posts.ClaimStale(ctx, id, before, now)
		if err != nil {
			slog.Error("reclaim post group", "post_group_id", id, "error", err)
			continue
		}
		if !won {
			continue
		}
		slog.Warn("re-dispatching stale post group", "post_group_id", id)
		if c.dispatch(ctx, id) {
			dispatched++
		}
	}
	return dispatched
}

// A failed enqueue leaves the group processing; the stale pass picks it up.
func (c *SchedulerJob) dispatch(ctx context.Context, id string) bool {
	if err := c.tasks.EnqueuePublish(ctx, id); err != nil {
		slog.Error("enqueue publish", "post_group_id", id, "error", err)
		return false
	}
	return true
}
