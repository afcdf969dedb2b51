package models

import (
	"time"

	"github.com/maheshrc27/crosspost/internal/common"
)

type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

type MediaStatus string

const (
	MediaStatusPendingUpload MediaStatus = "pending_upload"
	MediaStatusReady         MediaStatus = "ready"
	MediaStatusFailed        MediaStatus = "failed"
)

type MediaReference struct {
	ID           string         `db:"id" json:"id"`
	PostGroupID  string         `db:"post_group_id" json:"post_group_id"`
	Kind         MediaKind      `db:"kind" json:"kind"`
	FileName     string         `db:"file_name" json:"file_name"`
	ContentType  string         `db:"content_type" json:"content_type"`
	StorageKey   string         `db:"storage_key" json:"storage_key"`
	PublicURL    string         `db:"public_url" json:"public_url"`
	Status       MediaStatus    `db:"status" json:"status"`
	Metadata     *MediaMetadata `db:"metadata" json:"metadata,omitempty"`
	ConvertedKey string         `db:"converted_key" json:"-"`
	ConvertedURL string         `db:"converted_url" json:"converted_url,omitempty"`
	ErrorMessage string         `db:"error_message" json:"error,omitempty"`
	DisplayOrder int            `db:"display_order" json:"display_order"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// IsWebP reports whether the uploaded original is a WebP image.
func (m *MediaReference) IsWebP() bool {
	if m.Metadata != nil && m.Metadata.Format != "" {
		return m.Metadata.Format == "webp"
	}
	return m.ContentType == "image/webp"
}

// URLFor returns the URL a platform should fetch, preferring the JPEG
// conversion when the platform cannot take WebP.
func (m *MediaReference) URLFor(rejectsWebP bool) string {
	if rejectsWebP && m.IsWebP() && m.ConvertedURL != "" {
		return m.ConvertedURL
	}
	return m.PublicURL
}

// MediaMetadata is derived after the upload lands in object storage.
type MediaMetadata struct {
	Format      string  `json:"format,omitempty"`
	Width       int     `json:"width,omitempty"`
	Height      int     `json:"height,omitempty"`
	SizeBytes   int64   `json:"size_bytes,omitempty"`
	Codec       string  `json:"codec,omitempty"`
	FrameRate   float64 `json:"frame_rate,omitempty"`
	Bitrate     int64   `json:"bitrate,omitempty"`
	Duration    float64 `json:"duration_seconds,omitempty"`
	AspectRatio float64 `json:"aspect_ratio,omitempty"`
}

// CheckAttachment enforces the per-group media mix: one video, or up to
// imageCap images, never both.
func CheckAttachment(existing []*MediaReference, kind MediaKind, imageCap int) error {
	images, videos := 0, 0
	for _, m := range existing {
		switch m.Kind {
		case MediaKindImage:
			images++
		case MediaKindVideo:
			videos++
		}
	}

	switch kind {
	case MediaKindVideo:
		if images > 0 {
			return common.InvalidMedia("post group already has images; video cannot be mixed in")
		}
		if videos > 0 {
			return common.InvalidMedia("post group already has a video")
		}
	case MediaKindImage:
		if videos > 0 {
			return common.InvalidMedia("post group already has a video; images cannot be mixed in")
		}
		if imageCap <= 0 {
			return common.InvalidMedia("none of the target platforms accept images")
		}
		if images >= imageCap {
			return common.InvalidMedia("post group already holds the maximum of %d images", imageCap)
		}
	default:
		return common.InvalidMedia("unknown media kind %q", kind)
	}
	return nil
}
