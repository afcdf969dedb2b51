package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/crosspost/internal/service"
)

// Dispatcher enqueues background work on asynq.
type Dispatcher struct {
	client      *asynq.Client
	maxRetry    int
	uniqueFor   time.Duration
	taskTimeout time.Duration
}

var _ service.TaskEnqueuer = (*Dispatcher)(nil)

// NewDispatcher builds a dispatcher. uniqueFor bounds how long a second
// publish task for the same group is dropped as a duplicate.
func NewDispatcher(client *asynq.Client, maxRetry int, uniqueFor, taskTimeout time.Duration) *Dispatcher {
	return &Dispatcher{client: client, maxRetry: maxRetry, uniqueFor: uniqueFor, taskTimeout: taskTimeout}
}

func (d *Dispatcher) EnqueuePublish(ctx context.Context, groupID string) error {
	opts := []asynq.Option{asynq.MaxRetry(d.maxRetry)}
	if d.uniqueFor > 0 {
		opts = append(opts, asynq.Unique(d.uniqueFor))
	}
	if d.taskTimeout > 0 {
		opts = append(opts, asynq.Timeout(d.taskTimeout))
	}
	return d.enqueue(ctx, TaskTypePublishPostGroup, PublishPayload{PostGroupID: groupID}, opts...)
}

func (d *Dispatcher) EnqueueMediaProcess(ctx context.Context, mediaID string) error {
	return d.enqueue(ctx, TaskTypeMediaProcess, MediaProcessPayload{MediaID: mediaID},
		asynq.TaskID(TaskTypeMediaProcess+":"+mediaID),
		asynq.MaxRetry(d.maxRetry))
}

func (d *Dispatcher) EnqueueMediaCleanup(ctx context.Context, keys []string) error {
	return d.enqueue(ctx, TaskTypeMediaCleanup, MediaCleanupPayload{Keys: keys},
		asynq.MaxRetry(d.maxRetry))
}

func (d *Dispatcher) enqueue(ctx context.Context, typename string, payload any, opts ...asynq.Option) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	info, err := d.client.EnqueueContext(ctx, asynq.NewTask(typename, taskPayload), opts...)
	if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
		slog.Info("task already queued", "type", typename)
		return nil
	}
	if err != nil {
		return err
	}

	slog.Info("task enqueued", "type", typename, "id", info.ID)
	return nil
}
