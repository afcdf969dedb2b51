package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/maheshrc27/crosspost/internal/common"
	"github.com/maheshrc27/crosspost/internal/media"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/platform"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/transfer"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// TaskEnqueuer hands follow-up work to the background queue.
type TaskEnqueuer interface {
	EnqueuePublish(ctx context.Context, groupID string) error
	EnqueueMediaProcess(ctx context.Context, mediaID string) error
	EnqueueMediaCleanup(ctx context.Context, keys []string) error
}

type MediaService interface {
	RegisterUpload(ctx context.Context, accountID int64, groupID string, req *transfer.MediaUploadRequest) (*transfer.MediaUploadResponse, error)
	CompleteUpload(ctx context.Context, accountID int64, mediaID string) error
	Process(ctx context.Context, mediaID string) (*models.MediaReference, error)
	DeleteObjects(ctx context.Context, keys []string) error
}

type mediaService struct {
	posts     repository.PostGroupRepository
	media     repository.MediaRepository
	accounts  repository.SocialAccountRepository
	storage   ObjectStorage
	tasks     TaskEnqueuer
	validate  *validator.Validate
	uploadTTL time.Duration
	now       func() time.Time
}

func NewMediaService(
	posts repository.PostGroupRepository,
	mediaRepo repository.MediaRepository,
	accounts repository.SocialAccountRepository,
	storage ObjectStorage,
	tasks TaskEnqueuer,
	uploadTTL time.Duration) MediaService {
	return &mediaService{
		posts:     posts,
		media:     mediaRepo,
		accounts:  accounts,
		storage:   storage,
		tasks:     tasks,
		validate:  validator.New(),
		uploadTTL: uploadTTL,
		now:       time.Now,
	}
}

func (s *mediaService) RegisterUpload(ctx context.Context, accountID int64, groupID string, req *transfer.MediaUploadRequest) (*transfer.MediaUploadResponse, error) {
	if req == nil {
		return nil, common.InvalidMedia("request body is required")
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, common.InvalidMedia("%s", err.Error())
	}

	declared, ok := media.KindFromContentType(req.ContentType)
	if !ok || string(declared) != req.Kind {
		return nil, common.InvalidMedia("content type %s does not match kind %s", req.ContentType, req.Kind)
	}

	group, err := s.posts.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.AccountID != accountID {
		return nil, common.ErrNotFound
	}

	names, err := s.platformNames(ctx, group.ConnectionIDs)
	if err != nil {
		return nil, err
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("media/%s/%s%s", groupID, id, strings.ToLower(path.Ext(req.FileName)))

	uploadURL, err := s.storage.PresignPut(ctx, key, req.ContentType, s.uploadTTL)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	ref := &models.MediaReference{
		ID:          id,
		PostGroupID: groupID,
		Kind:        declared,
		FileName:    req.FileName,
		ContentType: req.ContentType,
		StorageKey:  key,
		PublicURL:   s.storage.PublicURL(key),
		Status:      models.MediaStatusPendingUpload,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.media.Attach(ctx, ref, platform.ImageCap(names)); err != nil {
		return nil, err
	}

	return &transfer.MediaUploadResponse{
		MediaID:   ref.ID,
		UploadURL: uploadURL,
		PublicURL: ref.PublicURL,
		ExpiresAt: now.Add(s.uploadTTL),
	}, nil
}

func (s *mediaService) platformNames(ctx context.Context, ids []int64) ([]string, error) {
	accounts, err := s.accounts.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(accounts))
	for _, a := range accounts {
		names = append(names, a.Platform)
	}
	return names, nil
}

func (s *mediaService) CompleteUpload(ctx context.Context, accountID int64, mediaID string) error {
	ref, err := s.media.GetByID(ctx, mediaID)
	if err != nil {
		return err
	}
	group, err := s.posts.GetByID(ctx, ref.PostGroupID)
	if err != nil {
		return err
	}
	if group.AccountID != accountID {
		return common.ErrNotFound
	}
	if ref.Status != models.MediaStatusPendingUpload {
		return nil
	}
	return s.tasks.EnqueueMediaProcess(ctx, mediaID)
}

// Process inspects an uploaded object and records its metadata. Files that
// fail inspection are marked failed and returned with a validation error;
// storage errors are returned as-is so the caller can retry.
func (s *mediaService) Process(ctx context.Context, mediaID string) (*models.MediaReference, error) {
	ref, err := s.media.GetByID(ctx, mediaID)
	if err != nil {
		return nil, err
	}
	if ref.Status != models.MediaStatusPendingUpload {
		return ref, nil
	}

	tmp, err := s.fetch(ctx, ref.StorageKey)
	if err != nil {
		return ref, err
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	inspectErr := s.inspect(ctx, ref, tmp)
	if inspectErr != nil {
		if !errors.Is(inspectErr, common.ErrValidation) {
			return ref, inspectErr
		}
		ref.Status = models.MediaStatusFailed
		ref.ErrorMessage = inspectErr.Error()
	} else {
		ref.Status = models.MediaStatusReady
		ref.ErrorMessage = ""
	}
	ref.UpdatedAt = s.now().UTC()

	if err := s.media.UpdateProcessed(ctx, ref); err != nil {
		return ref, err
	}
	slog.Info("media processed", "media_id", ref.ID, "status", ref.Status)
	return ref, inspectErr
}

func (s *mediaService) fetch(ctx context.Context, key string) (*os.File, error) {
	body, err := s.storage.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	tmp, err := os.CreateTemp("", "crosspost-media-*")
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, common.Storage(err)
	}
	return tmp, nil
}

func (s *mediaService) inspect(ctx context.Context, ref *models.MediaReference, f *os.File) error {
	head := make([]byte, media.SniffLen)
	if _, err := f.ReadAt(head, 0); err != nil && err != io.EOF {
		return err
	}

	ft, err := media.Detect(head)
	if err != nil {
		return err
	}
	if ft.Kind != ref.Kind {
		return common.InvalidMedia("uploaded file is %s but was registered as %s", ft.Kind, ref.Kind)
	}
	ref.ContentType = ft.MIME

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	if ft.Kind == models.MediaKindVideo {
		meta, err := media.ProbeVideo(f)
		if err != nil {
			return common.InvalidMedia("%s", err.Error())
		}
		meta.Format = ft.Extension
		meta.SizeBytes = info.Size()
		ref.Metadata = meta
		return nil
	}

	meta, err := media.ImageMetadata(f, ft.Extension)
	if err != nil {
		return common.InvalidMedia("%s", err.Error())
	}
	meta.SizeBytes = info.Size()
	ref.Metadata = meta

	if ft.Extension == "webp" {
		return s.convertWebP(ctx, ref, f)
	}
	return nil
}

func (s *mediaService) convertWebP(ctx context.Context, ref *models.MediaReference, f *os.File) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	var out bytes.Buffer
	if err := media.WebPToJPEG(f, &out); err != nil {
		return common.InvalidMedia("convert webp: %s", err.Error())
	}

	key := strings.TrimSuffix(ref.StorageKey, path.Ext(ref.StorageKey)) + ".jpg"
	if err := s.storage.Upload(ctx, key, out.Bytes(), "image/jpeg"); err != nil {
		return err
	}
	ref.ConvertedKey = key
	ref.ConvertedURL = s.storage.PublicURL(key)
	return nil
}

// DeleteObjects removes stored files. Every key is attempted; failures are
// logged and reported together.
func (s *mediaService) DeleteObjects(ctx context.Context, keys []string) error {
	var errs []error
	for _, key := range keys {
		if err := s.storage.Delete(ctx, key); err != nil {
			slog.Warn("media cleanup failed", "key", key, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StorageKeys lists every object a set of media references owns.
func StorageKeys(refs []*models.MediaReference) []string {
	var keys []string
	for _, m := range refs {
		if m.StorageKey != "" {
			keys = append(keys, m.StorageKey)
		}
		if m.ConvertedKey != "" {
			keys = append(keys, m.ConvertedKey)
		}
	}
	return keys
}
