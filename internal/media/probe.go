package media

import (
	"errors"
	"fmt"
	"io"
	"math"

	mp4 "github.com/abema/go-mp4"
	"github.com/maheshrc27/crosspost/internal/models"
)

var errNoVideoTrack = errors.New("no video track found")

// ProbeVideo extracts resolution, codec, frame rate, bitrate and duration
// from an MP4/MOV container.
func ProbeVideo(r io.ReadSeeker) (*models.MediaMetadata, error) {
	info, err := mp4.Probe(r)
	if err != nil {
		return nil, fmt.Errorf("probe video: %w", err)
	}

	var track *mp4.Track
	for _, t := range info.Tracks {
		if t.AVC != nil || t.Codec == mp4.CodecAVC1 {
			track = t
			break
		}
		if track == nil && t.Codec != mp4.CodecMP4A {
			track = t
		}
	}
	if track == nil {
		return nil, errNoVideoTrack
	}

	meta := &models.MediaMetadata{Codec: "unknown"}
	if track.Codec == mp4.CodecAVC1 || track.AVC != nil {
		meta.Codec = "h264"
	}
	if track.AVC != nil {
		meta.Width = int(track.AVC.Width)
		meta.Height = int(track.AVC.Height)
	}

	if track.Timescale > 0 {
		meta.Duration = float64(track.Duration) / float64(track.Timescale)
	}
	if meta.Duration == 0 && info.Timescale > 0 {
		meta.Duration = float64(info.Duration) / float64(info.Timescale)
	}

	if meta.Duration > 0 && len(track.Samples) > 0 {
		meta.FrameRate = round2(float64(len(track.Samples)) / meta.Duration)
	}

	var total int64
	for _, t := range info.Tracks {
		for _, s := range t.Samples {
			total += int64(s.Size)
		}
	}
	meta.SizeBytes = total
	if meta.Duration > 0 {
		meta.Bitrate = int64(float64(total*8) / meta.Duration)
	}

	meta.AspectRatio = AspectRatio(meta.Width, meta.Height)
	meta.Duration = round2(meta.Duration)
	return meta, nil
}

func AspectRatio(width, height int) float64 {
	if width <= 0 || height <= 0 {
		return 0
	}
	return round2(float64(width) / float64(height))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
