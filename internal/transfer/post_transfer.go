package transfer

import (
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
)

type PostGroupRequest struct {
	Content       string                    `json:"content" validate:"max=65000"`
	ConnectionIDs []int64                   `json:"connection_ids" validate:"required,min=1,max=25,dive,gt=0"`
	ScheduledTime *time.Time                `json:"scheduled_time"`
	Settings      map[string]map[string]any `json:"settings"`
}

// PostGroupUpdate only touches the fields that are present.
type PostGroupUpdate struct {
	Content       *string                   `json:"content" validate:"omitempty,max=65000"`
	ConnectionIDs []int64                   `json:"connection_ids" validate:"omitempty,min=1,max=25,dive,gt=0"`
	ScheduledTime *time.Time                `json:"scheduled_time"`
	Status        *string                   `json:"status" validate:"omitempty,oneof=draft scheduled"`
	Settings      map[string]map[string]any `json:"settings"`
}

type PostGroupListQuery struct {
	Page     int
	Limit    int
	Status   string
	Platform string
	From     *time.Time
	To       *time.Time
}

type PostGroupList struct {
	Data  []*models.PostGroup `json:"data"`
	Page  int                 `json:"page"`
	Limit int                 `json:"limit"`
	Total int                 `json:"total"`
}
