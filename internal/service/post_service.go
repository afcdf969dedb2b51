package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/maheshrc27/crosspost/internal/common"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/platform"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/transfer"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

type PostService interface {
	Create(ctx context.Context, accountID int64, req *transfer.PostGroupRequest) (*models.PostGroup, error)
	Get(ctx context.Context, accountID int64, id string) (*models.PostGroup, error)
	List(ctx context.Context, accountID int64, q *transfer.PostGroupListQuery) (*transfer.PostGroupList, error)
	Update(ctx context.Context, accountID int64, id string, req *transfer.PostGroupUpdate) (*models.PostGroup, error)
	Delete(ctx context.Context, accountID int64, id string) error
	Quota(ctx context.Context, accountID int64) (*models.QuotaUsage, error)
}

type postService struct {
	posts    repository.PostGroupRepository
	accounts repository.SocialAccountRepository
	plans    PlanProvider
	media    MediaService
	tasks    TaskEnqueuer
	validate *validator.Validate
	now      func() time.Time
}

func NewPostService(
	posts repository.PostGroupRepository,
	accounts repository.SocialAccountRepository,
	plans PlanProvider,
	mediaSvc MediaService,
	tasks TaskEnqueuer) PostService {
	return &postService{
		posts:    posts,
		accounts: accounts,
		plans:    plans,
		media:    mediaSvc,
		tasks:    tasks,
		validate: validator.New(),
		now:      time.Now,
	}
}

func (s *postService) Create(ctx context.Context, accountID int64, req *transfer.PostGroupRequest) (*models.PostGroup, error) {
	if req == nil {
		return nil, common.Validation("request body is required")
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, common.Validation("%s", err.Error())
	}

	now := s.now().UTC()
	connIDs := dedupe(req.ConnectionIDs)
	names, err := s.ownedPlatforms(ctx, accountID, connIDs)
	if err != nil {
		return nil, err
	}
	settings, err := normalizeSettings(req.Settings, names)
	if err != nil {
		return nil, err
	}

	group := &models.PostGroup{
		AccountID:     accountID,
		Content:       req.Content,
		ConnectionIDs: connIDs,
		Settings:      settings,
		Status:        models.PostStatusDraft,
		PlatformPosts: []*models.PlatformPost{},
		Media:         []*models.MediaReference{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	limit := 0
	if req.ScheduledTime != nil {
		if !req.ScheduledTime.After(now) {
			return nil, common.Validation("scheduled_time must be in the future")
		}
		t := req.ScheduledTime.UTC()
		group.ScheduledTime = &t
		group.Status = models.PostStatusScheduled

		if limit, err = s.plans.PendingLimit(ctx, accountID); err != nil {
			return nil, err
		}
	}

	if group.ID, err = gonanoid.New(); err != nil {
		return nil, err
	}
	if err := s.posts.Create(ctx, group, limit); err != nil {
		return nil, err
	}

	slog.Info("post group created", "post_group_id", group.ID, "status", group.Status)
	return group, nil
}

func (s *postService) Get(ctx context.Context, accountID int64, id string) (*models.PostGroup, error) {
	group, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if group.AccountID != accountID {
		return nil, common.ErrNotFound
	}
	return group, nil
}

func (s *postService) List(ctx context.Context, accountID int64, q *transfer.PostGroupListQuery) (*transfer.PostGroupList, error) {
	if q == nil {
		q = &transfer.PostGroupListQuery{}
	}

	filter := models.PostGroupFilter{
		AccountID: accountID,
		Page:      q.Page,
		Limit:     q.Limit,
		From:      q.From,
		To:        q.To,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	switch {
	case filter.Limit < 1:
		filter.Limit = defaultPageLimit
	case filter.Limit > maxPageLimit:
		filter.Limit = maxPageLimit
	}

	if q.Status != "" {
		filter.Status = models.PostGroupStatus(q.Status)
		if !filter.Status.Valid() {
			return nil, common.Validation("unknown status %q", q.Status)
		}
	}
	if q.Platform != "" {
		a, ok := platform.Lookup(q.Platform)
		if !ok {
			return nil, common.Validation("unsupported platform %q", q.Platform)
		}
		filter.Platform = a.Name().String()
	}
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return nil, common.Validation("to must not be before from")
	}

	groups, total, err := s.posts.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if groups == nil {
		groups = []*models.PostGroup{}
	}
	return &transfer.PostGroupList{Data: groups, Page: filter.Page, Limit: filter.Limit, Total: total}, nil
}

func (s *postService) Update(ctx context.Context, accountID int64, id string, req *transfer.PostGroupUpdate) (*models.PostGroup, error) {
	if req == nil {
		return nil, common.Validation("request body is required")
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, common.Validation("%s", err.Error())
	}

	group, err := s.Get(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	if !group.Status.Editable() {
		return nil, common.InvalidState("post group is %s", group.Status)
	}
	expected, expectedTime := group.Status, group.ScheduledTime
	now := s.now().UTC()

	if req.Content != nil {
		group.Content = *req.Content
	}
	if req.ConnectionIDs != nil {
		group.ConnectionIDs = dedupe(req.ConnectionIDs)
	}
	names, err := s.ownedPlatforms(ctx, accountID, group.ConnectionIDs)
	if err != nil {
		return nil, err
	}
	if req.ConnectionIDs != nil {
		if err := checkImageCap(group.Media, platform.ImageCap(names)); err != nil {
			return nil, err
		}
	}
	if req.Settings != nil {
		group.Settings = req.Settings
	}
	if group.Settings, err = normalizeSettings(group.Settings, names); err != nil {
		return nil, err
	}

	if req.ScheduledTime != nil {
		if !req.ScheduledTime.After(now) {
			return nil, common.Validation("scheduled_time must be in the future")
		}
		if group.ScheduledTime != nil && req.ScheduledTime.Before(*group.ScheduledTime) {
			return nil, common.Validation("scheduled_time may only move forward")
		}
		t := req.ScheduledTime.UTC()
		group.ScheduledTime = &t
	}

	if req.Status != nil {
		group.Status = models.PostGroupStatus(*req.Status)
	}
	if group.Status == models.PostStatusScheduled && expected != models.PostStatusScheduled {
		if group.ScheduledTime == nil || !group.ScheduledTime.After(now) {
			return nil, common.Validation("scheduling requires a scheduled_time in the future")
		}
	}
	if !expected.CanTransition(group.Status) {
		return nil, common.InvalidState("cannot move post group from %s to %s", expected, group.Status)
	}

	limit := 0
	if group.Status.Pending() && !expected.Pending() {
		if limit, err = s.plans.PendingLimit(ctx, accountID); err != nil {
			return nil, err
		}
	}

	group.UpdatedAt = now
	if err := s.posts.Update(ctx, group, expected, expectedTime, limit); err != nil {
		return nil, err
	}
	return group, nil
}

// Delete removes the group and its children. Stored files are cleaned up
// afterwards; a cleanup failure never fails the delete.
func (s *postService) Delete(ctx context.Context, accountID int64, id string) error {
	if _, err := s.Get(ctx, accountID, id); err != nil {
		return err
	}

	refs, err := s.posts.Delete(ctx, id)
	if err != nil {
		return err
	}

	keys := StorageKeys(refs)
	if len(keys) == 0 {
		return nil
	}
	if s.tasks != nil {
		err := s.tasks.EnqueueMediaCleanup(ctx, keys)
		if err == nil {
			return nil
		}
		slog.Warn("enqueue media cleanup failed, deleting inline", "post_group_id", id, "error", err)
	}
	if s.media != nil {
		if err := s.media.DeleteObjects(ctx, keys); err != nil {
			slog.Warn("media cleanup incomplete", "post_group_id", id, "error", err)
		}
	}
	return nil
}

func (s *postService) Quota(ctx context.Context, accountID int64) (*models.QuotaUsage, error) {
	pending, err := s.posts.PendingCount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	limit, err := s.plans.PendingLimit(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &models.QuotaUsage{AccountID: accountID, Pending: pending, Limit: limit}, nil
}

// ownedPlatforms resolves connection ids to platform names, rejecting ids the
// account does not own.
func (s *postService) ownedPlatforms(ctx context.Context, accountID int64, ids []int64) ([]string, error) {
	accounts, err := s.accounts.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	owned := make(map[int64]string, len(accounts))
	for _, a := range accounts {
		if a.UserID == accountID {
			owned[a.ID] = a.Platform
		}
	}

	names := make([]string, 0, len(ids))
	for _, id := range ids {
		name, ok := owned[id]
		if !ok {
			return nil, common.Validation("connection %d not found", id)
		}
		if !platform.Supported(name) {
			return nil, common.Validation("connection %d uses unsupported platform %q", id, name)
		}
		names = append(names, name)
	}
	return names, nil
}

// normalizeSettings rekeys per-platform settings by canonical platform name
// and rejects keys that no target connection uses.
func normalizeSettings(settings map[string]map[string]any, targets []string) (map[string]map[string]any, error) {
	if settings == nil {
		return nil, nil
	}
	out := make(map[string]map[string]any, len(settings))
	for key, values := range settings {
		a, ok := platform.Lookup(key)
		if !ok {
			return nil, common.Validation("settings for unsupported platform %q", key)
		}
		found := false
		for _, t := range targets {
			if b, ok := platform.Lookup(t); ok && b.Name() == a.Name() {
				found = true
				break
			}
		}
		if !found {
			return nil, common.Validation("settings for %q but no connection targets it", key)
		}
		name := a.Name().String()
		if _, dup := out[name]; dup {
			return nil, common.Validation("settings for %q given more than once", name)
		}
		out[name] = values
	}
	return out, nil
}

func checkImageCap(refs []*models.MediaReference, imageCap int) error {
	images := 0
	for _, m := range refs {
		if m.Kind == models.MediaKindImage {
			images++
		}
	}
	if images > 0 && images > imageCap {
		return common.InvalidMedia("%d images attached but the targets accept at most %d", images, imageCap)
	}
	return nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
