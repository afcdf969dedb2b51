package service

import (
	"context"
	"net/url"
	"testing"
	"time"

	cfg "github.com/maheshrc27/crosspost/configs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestR2Service_PresignPut(t *testing.T) {
	r2 := NewR2Service(cfg.R2{
		AccountID:  "acct",
		AccessKey:  "access",
		SecretKey:  "secret",
		BucketName: "uploads",
		PublicURL:  "https://cdn.example.com/",
		Endpoint:   "http://127.0.0.1:9000",
	})

	raw, err := r2.PresignPut(context.Background(), "media/g1/m1.jpg", "image/jpeg", 15*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", u.Host)
	assert.Equal(t, "/uploads/media/g1/m1.jpg", u.Path)
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))

	assert.Equal(t, "https://cdn.example.com/media/g1/m1.jpg", r2.PublicURL("media/g1/m1.jpg"))
}
