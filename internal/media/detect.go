// Package media holds the file-level pieces of the media pipeline: type
// sniffing, video probing, WebP conversion and per-platform constraint checks.
package media

import (
	"strings"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"github.com/maheshrc27/crosspost/internal/common"
	"github.com/maheshrc27/crosspost/internal/models"
)

// SniffLen is how many leading bytes Detect needs.
const SniffLen = 262

var allowedTypes = map[string]models.MediaKind{
	"jpg":  models.MediaKindImage,
	"png":  models.MediaKindImage,
	"gif":  models.MediaKindImage,
	"webp": models.MediaKindImage,
	"mp4":  models.MediaKindVideo,
	"mov":  models.MediaKindVideo,
	"m4v":  models.MediaKindVideo,
}

type FileType struct {
	Extension string
	MIME      string
	Kind      models.MediaKind
}

// Detect identifies an uploaded file from its leading bytes.
func Detect(head []byte) (FileType, error) {
	kind, err := filetype.Match(head)
	if err != nil || kind == types.Unknown {
		return FileType{}, common.InvalidMedia("unsupported file type")
	}

	mk, ok := allowedTypes[kind.Extension]
	if !ok {
		return FileType{}, common.InvalidMedia("file type %s is not allowed", kind.Extension)
	}

	return FileType{Extension: kind.Extension, MIME: kind.MIME.Value, Kind: mk}, nil
}

// KindFromContentType maps a declared content type to a media kind.
func KindFromContentType(contentType string) (models.MediaKind, bool) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.HasPrefix(ct, "image/"):
		return models.MediaKindImage, true
	case strings.HasPrefix(ct, "video/"):
		return models.MediaKindVideo, true
	}
	return "", false
}
