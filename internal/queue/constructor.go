package queue

import (
	"github.com/hibiken/asynq"
	"github.com/maheshrc27/crosspost/internal/service"
)

const (
	TaskTypePublishPostGroup = "publish:post_group"
	TaskTypeMediaProcess     = "media:process"
	TaskTypeMediaCleanup     = "media:cleanup"
)

type PublishPayload struct {
	PostGroupID string `json:"post_group_id"`
}

type MediaProcessPayload struct {
	MediaID string `json:"media_id"`
}

type MediaCleanupPayload struct {
	Keys []string `json:"keys"`
}

// Queue holds the task handlers run by the asynq worker.
type Queue struct {
	publisher service.PublishService
	media     service.MediaService
}

func NewQueue(publisher service.PublishService, media service.MediaService) *Queue {
	return &Queue{
		publisher: publisher,
		media:     media,
	}
}

func (j *Queue) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskTypePublishPostGroup, j.HandlePublishTask)
	mux.HandleFunc(TaskTypeMediaProcess, j.HandleMediaProcessTask)
	mux.HandleFunc(TaskTypeMediaCleanup, j.HandleMediaCleanupTask)
}
