package transfer

import "time"

type MediaUploadRequest struct {
	FileName    string `json:"file_name" validate:"required,max=255"`
	ContentType string `json:"content_type" validate:"required"`
	Kind        string `json:"kind" validate:"required,oneof=image video"`
}

type MediaUploadResponse struct {
	MediaID   string    `json:"media_id"`
	UploadURL string    `json:"upload_url"`
	PublicURL string    `json:"public_url"`
	ExpiresAt time.Time `json:"expires_at"`
}
