package media

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/maheshrc27/crosspost/internal/common"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDetect(t *testing.T) {
	ft, err := Detect(pngBytes(t, 4, 2))
	require.NoError(t, err)
	assert.Equal(t, "png", ft.Extension)
	assert.Equal(t, models.MediaKindImage, ft.Kind)

	webpHead := append([]byte("RIFF\x00\x00\x00\x00WEBPVP8 "), make([]byte, 20)...)
	ft, err = Detect(webpHead)
	require.NoError(t, err)
	assert.Equal(t, "webp", ft.Extension)

	mp4Head := append([]byte("\x00\x00\x00\x18ftypisom"), make([]byte, 20)...)
	ft, err = Detect(mp4Head)
	require.NoError(t, err)
	assert.Equal(t, models.MediaKindVideo, ft.Kind)

	_, err = Detect([]byte("plain text is not media"))
	assert.ErrorIs(t, err, common.ErrInvalidMediaRequest)

	_, err = Detect(append([]byte("%PDF-1.7"), make([]byte, 20)...))
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestKindFromContentType(t *testing.T) {
	k, ok := KindFromContentType("image/webp")
	assert.True(t, ok)
	assert.Equal(t, models.MediaKindImage, k)

	k, ok = KindFromContentType(" Video/MP4 ")
	assert.True(t, ok)
	assert.Equal(t, models.MediaKindVideo, k)

	_, ok = KindFromContentType("application/pdf")
	assert.False(t, ok)
}

func TestImageMetadata(t *testing.T) {
	meta, err := ImageMetadata(bytes.NewReader(pngBytes(t, 40, 20)), "png")
	require.NoError(t, err)

	assert.Equal(t, 40, meta.Width)
	assert.Equal(t, 20, meta.Height)
	assert.Equal(t, 2.0, meta.AspectRatio)
}

func TestWebPToJPEG_InvalidInput(t *testing.T) {
	var out bytes.Buffer
	err := WebPToJPEG(bytes.NewReader([]byte("not a webp")), &out)

	assert.Error(t, err)
	assert.Zero(t, out.Len())
}

func TestProbeVideo_InvalidInput(t *testing.T) {
	_, err := ProbeVideo(bytes.NewReader([]byte("definitely not an mp4 container")))
	assert.Error(t, err)
}

func TestCheckForPlatform(t *testing.T) {
	ig, _ := platform.Lookup("instagram")
	x, _ := platform.Lookup("x")

	lowFPS := &models.MediaReference{
		ID: "v1", Kind: models.MediaKindVideo, Status: models.MediaStatusReady,
		Metadata: &models.MediaMetadata{FrameRate: 15, Duration: 30},
	}
	goodVideo := &models.MediaReference{
		ID: "v2", Kind: models.MediaKindVideo, Status: models.MediaStatusReady,
		Metadata: &models.MediaMetadata{FrameRate: 30, Duration: 30},
	}
	webp := &models.MediaReference{
		ID: "i1", Kind: models.MediaKindImage, Status: models.MediaStatusReady,
		ContentType: "image/webp",
	}
	converted := &models.MediaReference{
		ID: "i2", Kind: models.MediaKindImage, Status: models.MediaStatusReady,
		ContentType: "image/webp", ConvertedURL: "https://cdn/i2.jpg",
	}
	uploading := &models.MediaReference{ID: "i3", Kind: models.MediaKindImage, Status: models.MediaStatusPendingUpload}

	err := CheckForPlatform(ig, []*models.MediaReference{lowFPS})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrValidation)
	assert.Contains(t, err.Error(), "frame rate")

	assert.NoError(t, CheckForPlatform(x, []*models.MediaReference{lowFPS}))
	assert.NoError(t, CheckForPlatform(ig, []*models.MediaReference{goodVideo}))

	assert.ErrorIs(t, CheckForPlatform(ig, []*models.MediaReference{webp}), common.ErrValidation)
	assert.NoError(t, CheckForPlatform(x, []*models.MediaReference{webp}))
	assert.NoError(t, CheckForPlatform(ig, []*models.MediaReference{converted}))

	assert.ErrorIs(t, CheckForPlatform(x, []*models.MediaReference{uploading}), common.ErrValidation)
}

func TestMediaReferenceURLFor(t *testing.T) {
	m := &models.MediaReference{ContentType: "image/webp", PublicURL: "https://cdn/a.webp", ConvertedURL: "https://cdn/a.jpg"}

	assert.Equal(t, "https://cdn/a.jpg", m.URLFor(true))
	assert.Equal(t, "https://cdn/a.webp", m.URLFor(false))
}
