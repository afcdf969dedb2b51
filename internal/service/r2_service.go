package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	cfg "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/common"
)

// ObjectStorage is the slice of the bucket API the media pipeline needs.
type ObjectStorage interface {
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	PublicURL(key string) string
	Upload(ctx context.Context, key string, body []byte, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

type R2Service struct {
	config cfg.R2

	once   sync.Once
	client *s3.Client
	err    error
}

func NewR2Service(c cfg.R2) *R2Service {
	return &R2Service{config: c}
}

func (r *R2Service) R2Client(ctx context.Context) (*s3.Client, error) {
	r.once.Do(func() {
		awsCfg, err := config.LoadDefaultConfig(ctx,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(r.config.AccessKey, r.config.SecretKey, "")),
			config.WithRegion("auto"),
		)
		if err != nil {
			slog.Error("load r2 config", "error", err)
			r.err = err
			return
		}

		endpoint := r.config.Endpoint
		if endpoint == "" {
			endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r.config.AccountID)
		}
		r.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = r.config.Endpoint != ""
		})
	})
	return r.client, r.err
}

// PresignPut returns a URL the caller can PUT the file body to directly.
func (r *R2Service) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	client, err := r.R2Client(ctx)
	if err != nil {
		return "", common.Storage(err)
	}

	req, err := s3.NewPresignClient(client).PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.config.BucketName),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		slog.Info(err.Error())
		return "", common.Storage(err)
	}
	return req.URL, nil
}

func (r *R2Service) PublicURL(key string) string {
	return strings.TrimRight(r.config.PublicURL, "/") + "/" + key
}

func (r *R2Service) Upload(ctx context.Context, key string, body []byte, contentType string) error {
	client, err := r.R2Client(ctx)
	if err != nil {
		return common.Storage(err)
	}

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.config.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		slog.Info(err.Error())
		return common.Storage(err)
	}
	return nil
}

func (r *R2Service) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	client, err := r.R2Client(ctx)
	if err != nil {
		return nil, common.Storage(err)
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.config.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		slog.Info(err.Error())
		return nil, common.Storage(err)
	}
	return out.Body, nil
}

func (r *R2Service) Delete(ctx context.Context, key string) error {
	client, err := r.R2Client(ctx)
	if err != nil {
		return common.Storage(err)
	}

	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.config.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return common.Storage(err)
	}
	return nil
}
