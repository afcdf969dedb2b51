package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/maheshrc27/crosspost/internal/common"
	"github.com/maheshrc27/crosspost/internal/media"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/platform"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/transfer"
	"github.com/maheshrc27/crosspost/pkg/utils"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/sync/errgroup"
)

type PublishConfig struct {
	Concurrency    int
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

// PublishService drives one processing post group to a terminal status.
type PublishService interface {
	Publish(ctx context.Context, groupID string) error
}

type publishService struct {
	posts    repository.PostGroupRepository
	accounts repository.SocialAccountRepository
	media    MediaService
	client   PlatformClient
	key      []byte
	cfg      PublishConfig
	now      func() time.Time
}

func NewPublishService(
	posts repository.PostGroupRepository,
	accounts repository.SocialAccountRepository,
	mediaSvc MediaService,
	client PlatformClient,
	secretKey string,
	cfg PublishConfig) PublishService {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &publishService{
		posts:    posts,
		accounts: accounts,
		media:    mediaSvc,
		client:   client,
		key:      utils.DeriveKey(secretKey),
		cfg:      cfg,
		now:      time.Now,
	}
}

// connection is a resolved publishing target.
type connection struct {
	account *models.SocialAccount
	adapter platform.Adapter
	token   string
	err     error
}

// Publish is safe to call more than once for the same group: children that
// already reached a terminal status are never sent again, and the final
// status write is a compare-and-set on processing.
func (s *publishService) Publish(ctx context.Context, groupID string) error {
	group, err := s.posts.GetByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			slog.Warn("publish skipped, post group is gone", "post_group_id", groupID)
			return nil
		}
		return err
	}
	if group.Status != models.PostStatusProcessing {
		slog.Info("publish skipped", "post_group_id", groupID, "status", group.Status)
		return nil
	}

	refs := s.prepareMedia(ctx, group.Media)
	conns, err := s.resolveConnections(ctx, group)
	if err != nil {
		return err
	}

	posts := group.PlatformPosts
	if len(posts) == 0 {
		if err := s.posts.CreatePlatformPosts(ctx, s.plan(group, refs, conns)); err != nil {
			return err
		}
		if posts, err = s.posts.ListPlatformPosts(ctx, groupID); err != nil {
			return err
		}
	}

	byConn := map[int64][]*models.PlatformPost{}
	var order []int64
	for _, p := range posts {
		if _, ok := byConn[p.ConnectionID]; !ok {
			order = append(order, p.ConnectionID)
		}
		byConn[p.ConnectionID] = append(byConn[p.ConnectionID], p)
	}

	mediaByID := make(map[string]*models.MediaReference, len(refs))
	for _, m := range refs {
		mediaByID[m.ID] = m
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, connID := range order {
		units := byConn[connID]
		conn := conns[connID]
		g.Go(func() error {
			s.publishThread(ctx, conn, units, mediaByID)
			return nil
		})
	}
	_ = g.Wait()

	return s.finalize(ctx, groupID)
}

// prepareMedia runs the pipeline for any upload that was never processed.
// Failures leave the reference as-is; the per-platform gate reports them.
func (s *publishService) prepareMedia(ctx context.Context, refs []*models.MediaReference) []*models.MediaReference {
	out := make([]*models.MediaReference, 0, len(refs))
	for _, m := range refs {
		if m.Status == models.MediaStatusPendingUpload && s.media != nil {
			processed, err := s.media.Process(ctx, m.ID)
			if err != nil {
				slog.Warn("lazy media processing failed", "media_id", m.ID, "error", err)
			}
			if processed != nil {
				m = processed
			}
		}
		out = append(out, m)
	}
	return out
}

func (s *publishService) resolveConnections(ctx context.Context, group *models.PostGroup) (map[int64]*connection, error) {
	accounts, err := s.accounts.ListByIDs(ctx, group.ConnectionIDs)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*models.SocialAccount, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
	}

	conns := make(map[int64]*connection, len(group.ConnectionIDs))
	for _, id := range group.ConnectionIDs {
		c := &connection{}
		conns[id] = c

		a, ok := byID[id]
		if !ok || a.UserID != group.AccountID {
			c.err = common.Validation("connection %d no longer exists", id)
			continue
		}
		c.account = a

		adapter, ok := platform.Lookup(a.Platform)
		if !ok {
			c.err = common.Validation("unsupported platform %q", a.Platform)
			continue
		}
		c.adapter = adapter

		token, err := utils.Decrypt(a.AccessToken, s.key)
		if err != nil {
			c.err = common.Terminal(fmt.Errorf("connection %d: cannot read access token", id))
			continue
		}
		c.token = token
	}
	return conns, nil
}

// plan adapts the group once per connection. An adapter rejection becomes a
// single failed platform post so sibling platforms are unaffected.
func (s *publishService) plan(group *models.PostGroup, refs []*models.MediaReference, conns map[int64]*connection) []*models.PlatformPost {
	now := s.now().UTC()
	var out []*models.PlatformPost

	newPost := func(connID int64, name string, seq int) *models.PlatformPost {
		id, err := gonanoid.New()
		if err != nil {
			id = fmt.Sprintf("%s-%d-%d", group.ID, connID, seq)
		}
		return &models.PlatformPost{
			ID:           id,
			PostGroupID:  group.ID,
			ConnectionID: connID,
			Platform:     name,
			Sequence:     seq,
			Status:       models.PlatformPostPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}

	for _, connID := range group.ConnectionIDs {
		c := conns[connID]
		name := "unknown"
		if c.account != nil {
			name = c.account.Platform
		}
		if c.adapter != nil {
			name = c.adapter.Name().String()
		}

		var payloads []models.PlatformPayload
		err := c.err
		if err == nil {
			payloads, err = c.adapter.Adapt(platform.Post{
				Text:     group.Content,
				Media:    refs,
				Settings: group.PlatformSettings(name),
			})
		}

		if err != nil {
			p := newPost(connID, name, 0)
			p.Status = models.PlatformPostFailed
			p.ErrorMessage = err.Error()
			out = append(out, p)
			continue
		}

		for i, payload := range payloads {
			p := newPost(connID, name, i)
			p.Payload = payload
			out = append(out, p)
		}
	}
	return out
}

// publishThread sends the units of one connection in order. A reply chain
// cannot skip a part, so the first failure fails every later part.
func (s *publishService) publishThread(ctx context.Context, conn *connection, units []*models.PlatformPost, mediaByID map[string]*models.MediaReference) {
	replyTo := ""
	for i, unit := range units {
		switch unit.Status {
		case models.PlatformPostPublished:
			replyTo = unit.PlatformPostID
			continue
		case models.PlatformPostFailed:
			s.failRemaining(ctx, units[i+1:], "an earlier part of the thread failed")
			return
		}

		if conn == nil || conn.err != nil || conn.adapter == nil {
			msg := "connection unavailable"
			if conn != nil && conn.err != nil {
				msg = conn.err.Error()
			}
			s.fail(ctx, unit, msg)
			s.failRemaining(ctx, units[i+1:], "an earlier part of the thread failed")
			return
		}

		if unit.Status == models.PlatformPostPending && !s.move(ctx, unit, models.PlatformPostProcessing) {
			return
		}

		refs := make([]*models.MediaReference, 0, len(unit.Payload.MediaIDs))
		for _, id := range unit.Payload.MediaIDs {
			if m, ok := mediaByID[id]; ok {
				refs = append(refs, m)
			}
		}
		if len(refs) != len(unit.Payload.MediaIDs) {
			s.fail(ctx, unit, "attached media is no longer available")
			s.failRemaining(ctx, units[i+1:], "an earlier part of the thread failed")
			return
		}
		if err := media.CheckForPlatform(conn.adapter, refs); err != nil {
			s.fail(ctx, unit, err.Error())
			s.failRemaining(ctx, units[i+1:], "an earlier part of the thread failed")
			return
		}

		req := &transfer.RelayPublishRequest{
			AccountID:   conn.account.AccountID,
			AccessToken: conn.token,
			Text:        unit.Payload.Text,
			Settings:    unit.Payload.Settings,
			ReplyTo:     replyTo,
			Sequence:    unit.Sequence,
			Total:       unit.Payload.Total,
		}
		rejectsWebP := conn.adapter.Rules().RejectsWebP
		for _, m := range refs {
			req.Media = append(req.Media, transfer.RelayMedia{URL: m.URLFor(rejectsWebP), Kind: string(m.Kind)})
		}

		platformID, attempts, err := s.send(ctx, unit.Platform, req)
		unit.Attempts += attempts
		if err != nil {
			slog.Warn("platform publish failed",
				"post_group_id", unit.PostGroupID, "platform", unit.Platform,
				"sequence", unit.Sequence, "attempts", attempts, "error", err)
			s.fail(ctx, unit, err.Error())
			s.failRemaining(ctx, units[i+1:], "an earlier part of the thread failed")
			return
		}

		unit.PlatformPostID = platformID
		if !s.move(ctx, unit, models.PlatformPostPublished) {
			return
		}
		replyTo = platformID
	}
}

// send calls the platform client with a per-attempt timeout, retrying
// transient failures with exponential backoff.
func (s *publishService) send(ctx context.Context, name string, req *transfer.RelayPublishRequest) (string, int, error) {
	attempts := 0
	op := func() (string, error) {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()

		id, err := s.client.Publish(attemptCtx, name, req)
		if err == nil {
			return id, nil
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil && !common.IsRetryable(err) {
			err = common.Transient(err)
		}
		if !common.IsRetryable(err) {
			return "", backoff.Permanent(err)
		}
		return "", err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.InitialBackoff
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.cfg.MaxAttempts-1)), ctx)

	id, err := backoff.RetryWithData(op, policy)
	return id, attempts, err
}

func (s *publishService) move(ctx context.Context, p *models.PlatformPost, to models.PlatformPostStatus) bool {
	from := p.Status
	p.Status = to
	p.UpdatedAt = s.now().UTC()

	ok, err := s.posts.UpdatePlatformPost(ctx, p, from)
	if err != nil || !ok {
		slog.Error("platform post transition rejected",
			"platform_post_id", p.ID, "from", from, "to", to, "error", err)
		p.Status = from
		return false
	}
	return true
}

func (s *publishService) fail(ctx context.Context, p *models.PlatformPost, msg string) {
	p.ErrorMessage = msg
	s.move(ctx, p, models.PlatformPostFailed)
}

func (s *publishService) failRemaining(ctx context.Context, units []*models.PlatformPost, msg string) {
	for _, u := range units {
		if !u.Status.Terminal() {
			s.fail(ctx, u, msg)
		}
	}
}

func (s *publishService) finalize(ctx context.Context, groupID string) error {
	posts, err := s.posts.ListPlatformPosts(ctx, groupID)
	if err != nil {
		return err
	}

	status, done := models.AggregateStatus(posts)
	if !done {
		return fmt.Errorf("post group %s still has platform posts in flight", groupID)
	}

	ok, err := s.posts.Finalize(ctx, groupID, status, s.now().UTC())
	if err != nil {
		return err
	}
	if ok {
		slog.Info("post group finished", "post_group_id", groupID, "status", status)
	}
	return nil
}
