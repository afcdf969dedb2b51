package media

import (
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"

	"github.com/maheshrc27/crosspost/internal/models"
	"golang.org/x/image/webp"
)

const jpegQuality = 90

// ImageMetadata reads dimensions without decoding the full image.
func ImageMetadata(r io.Reader, format string) (*models.MediaMetadata, error) {
	var (
		cfg image.Config
		err error
	)
	if format == "webp" {
		cfg, err = webp.DecodeConfig(r)
	} else {
		cfg, _, err = image.DecodeConfig(r)
	}
	if err != nil {
		return nil, fmt.Errorf("decode image config: %w", err)
	}

	return &models.MediaMetadata{
		Format:      format,
		Width:       cfg.Width,
		Height:      cfg.Height,
		AspectRatio: AspectRatio(cfg.Width, cfg.Height),
	}, nil
}

// WebPToJPEG re-encodes a WebP image as JPEG for platforms that reject WebP.
func WebPToJPEG(src io.Reader, dst io.Writer) error {
	img, err := webp.Decode(src)
	if err != nil {
		return fmt.Errorf("decode webp: %w", err)
	}
	if err := jpeg.Encode(dst, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return fmt.Errorf("encode jpeg: %w", err)
	}
	return nil
}
