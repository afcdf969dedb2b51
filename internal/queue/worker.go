package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/crosspost/internal/common"
)

func (j *Queue) HandlePublishTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode publish payload: %v: %w", err, asynq.SkipRetry)
	}

	if err := j.publisher.Publish(ctx, payload.PostGroupID); err != nil {
		slog.Error("publish task failed", "post_group_id", payload.PostGroupID, "error", err)
		return err
	}
	return nil
}

// HandleMediaProcessTask retries storage failures; a file that fails
// inspection has already been marked failed and is not retried.
func (j *Queue) HandleMediaProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload MediaProcessPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode media payload: %v: %w", err, asynq.SkipRetry)
	}

	_, err := j.media.Process(ctx, payload.MediaID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrValidation), errors.Is(err, common.ErrNotFound):
		slog.Info("media rejected", "media_id", payload.MediaID, "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	default:
		return err
	}
}

func (j *Queue) HandleMediaCleanupTask(ctx context.Context, task *asynq.Task) error {
	var payload MediaCleanupPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode cleanup payload: %v: %w", err, asynq.SkipRetry)
	}
	return j.media.DeleteObjects(ctx, payload.Keys)
}
