package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/maheshrc27/crosspost/internal/common"
	"github.com/maheshrc27/crosspost/internal/models"
)

// MemoryStore is an in-process PostGroupRepository, with Media exposing the
// matching MediaRepository over the same state. A single mutex gives it the
// atomicity the Postgres store gets from conditional updates.
type MemoryStore struct {
	mu        sync.Mutex
	groups    map[string]*models.PostGroup
	posts     map[string][]*models.PlatformPost
	media     map[string]*models.MediaReference
	pending   map[int64]int
	platforms map[int64]string
}

var _ PostGroupRepository = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		groups:    map[string]*models.PostGroup{},
		posts:     map[string][]*models.PlatformPost{},
		media:     map[string]*models.MediaReference{},
		pending:   map[int64]int{},
		platforms: map[int64]string{},
	}
}

// SetConnectionPlatform registers the platform of a connection id so List
// can filter by platform.
func (s *MemoryStore) SetConnectionPlatform(connectionID int64, platform string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.platforms[connectionID] = platform
}

func copyGroup(g *models.PostGroup) *models.PostGroup {
	c := *g
	c.ConnectionIDs = append([]int64(nil), g.ConnectionIDs...)
	if g.ScheduledTime != nil {
		t := *g.ScheduledTime
		c.ScheduledTime = &t
	}
	if g.ProcessingSince != nil {
		t := *g.ProcessingSince
		c.ProcessingSince = &t
	}
	if g.Settings != nil {
		c.Settings = make(map[string]map[string]any, len(g.Settings))
		for k, v := range g.Settings {
			inner := make(map[string]any, len(v))
			for ik, iv := range v {
				inner[ik] = iv
			}
			c.Settings[k] = inner
		}
	}
	c.PlatformPosts = nil
	c.Media = nil
	return &c
}

func copyPost(p *models.PlatformPost) *models.PlatformPost {
	c := *p
	c.Payload.MediaIDs = append([]string(nil), p.Payload.MediaIDs...)
	return &c
}

func copyMedia(m *models.MediaReference) *models.MediaReference {
	c := *m
	if m.Metadata != nil {
		meta := *m.Metadata
		c.Metadata = &meta
	}
	return &c
}

func (s *MemoryStore) reserve(accountID int64, limit int) error {
	if s.pending[accountID] >= limit {
		return common.ErrQuotaExceeded
	}
	s.pending[accountID]++
	return nil
}

func (s *MemoryStore) release(accountID int64) {
	if s.pending[accountID] > 0 {
		s.pending[accountID]--
	}
}

func (s *MemoryStore) Create(_ context.Context, group *models.PostGroup, pendingLimit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[group.ID]; ok {
		return common.InvalidState("post group %s already exists", group.ID)
	}
	if group.Status.Pending() {
		if err := s.reserve(group.AccountID, pendingLimit); err != nil {
			return err
		}
	}
	s.groups[group.ID] = copyGroup(group)
	return nil
}

func (s *MemoryStore) mediaFor(groupID string) []*models.MediaReference {
	out := []*models.MediaReference{}
	for _, m := range s.media {
		if m.PostGroupID == groupID {
			out = append(out, copyMedia(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayOrder < out[j].DisplayOrder })
	return out
}

func (s *MemoryStore) postsFor(groupID string) []*models.PlatformPost {
	out := []*models.PlatformPost{}
	for _, p := range s.posts[groupID] {
		out = append(out, copyPost(p))
	}
	return out
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*models.PostGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	c := copyGroup(g)
	c.PlatformPosts = s.postsFor(id)
	c.Media = s.mediaFor(id)
	return c, nil
}

func (s *MemoryStore) matches(g *models.PostGroup, f models.PostGroupFilter) bool {
	if g.AccountID != f.AccountID {
		return false
	}
	if f.Status != "" && g.Status != f.Status {
		return false
	}
	if f.Platform != "" {
		found := false
		for _, id := range g.ConnectionIDs {
			if s.platforms[id] == f.Platform {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	at := g.CreatedAt
	if g.ScheduledTime != nil {
		at = *g.ScheduledTime
	}
	if f.From != nil && at.Before(*f.From) {
		return false
	}
	if f.To != nil && at.After(*f.To) {
		return false
	}
	return true
}

func (s *MemoryStore) List(_ context.Context, filter models.PostGroupFilter) ([]*models.PostGroup, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []*models.PostGroup
	for _, g := range s.groups {
		if s.matches(g, filter) {
			all = append(all, g)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	out := []*models.PostGroup{}
	start := filter.Offset()
	for i := start; i < len(all) && i < start+filter.Limit; i++ {
		out = append(out, copyGroup(all[i]))
	}
	return out, len(all), nil
}

func (s *MemoryStore) Update(_ context.Context, group *models.PostGroup, expected models.PostGroupStatus, expectedTime *time.Time, pendingLimit int) error {
	if !expected.CanTransition(group.Status) {
		return common.InvalidState("cannot move post group from %s to %s", expected, group.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.groups[group.ID]
	if !ok || cur.Status != expected || !sameTime(cur.ScheduledTime, expectedTime) {
		return common.InvalidState("post group %s changed since it was read", group.ID)
	}

	switch {
	case !expected.Pending() && group.Status.Pending():
		if err := s.reserve(group.AccountID, pendingLimit); err != nil {
			return err
		}
	case expected.Pending() && !group.Status.Pending():
		s.release(group.AccountID)
	}

	next := copyGroup(group)
	next.CreatedAt = cur.CreatedAt
	next.ProcessingSince = cur.ProcessingSince
	s.groups[group.ID] = next
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) ([]*models.MediaReference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	if g.Status == models.PostStatusProcessing {
		return nil, common.InvalidState("post group %s is processing", id)
	}

	media := s.mediaFor(id)
	for _, m := range media {
		delete(s.media, m.ID)
	}
	delete(s.posts, id)
	delete(s.groups, id)
	if g.Status.Pending() {
		s.release(g.AccountID)
	}
	return media, nil
}

func (s *MemoryStore) ListDue(_ context.Context, now time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*models.PostGroup
	for _, g := range s.groups {
		if g.Status == models.PostStatusScheduled && g.ScheduledTime != nil && !g.ScheduledTime.After(now) {
			due = append(due, g)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledTime.Before(*due[j].ScheduledTime) })

	ids := []string{}
	for i := 0; i < len(due) && i < limit; i++ {
		ids = append(ids, due[i].ID)
	}
	return ids, nil
}

func (s *MemoryStore) ListStale(_ context.Context, before time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := []string{}
	for _, g := range s.groups {
		if len(ids) >= limit {
			break
		}
		if g.Status == models.PostStatusProcessing && g.ProcessingSince != nil && g.ProcessingSince.Before(before) {
			ids = append(ids, g.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) MarkProcessing(_ context.Context, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[id]
	if !ok || g.Status != models.PostStatusScheduled {
		return false, nil
	}
	g.Status = models.PostStatusProcessing
	g.ProcessingSince = &now
	g.UpdatedAt = now
	return true, nil
}

func (s *MemoryStore) ClaimStale(_ context.Context, id string, before, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[id]
	if !ok || g.Status != models.PostStatusProcessing || g.ProcessingSince == nil || !g.ProcessingSince.Before(before) {
		return false, nil
	}
	g.ProcessingSince = &now
	g.UpdatedAt = now
	return true, nil
}

func (s *MemoryStore) Finalize(_ context.Context, id string, status models.PostGroupStatus, now time.Time) (bool, error) {
	if !status.Terminal() {
		return false, common.InvalidState("%s is not a terminal status", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[id]
	if !ok || g.Status != models.PostStatusProcessing {
		return false, nil
	}
	g.Status = status
	g.ProcessingSince = nil
	g.UpdatedAt = now
	s.release(g.AccountID)
	return true, nil
}

func (s *MemoryStore) CreatePlatformPosts(_ context.Context, posts []*models.PlatformPost) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range posts {
		dup := false
		for _, existing := range s.posts[p.PostGroupID] {
			if existing.ConnectionID == p.ConnectionID && existing.Sequence == p.Sequence {
				dup = true
				break
			}
		}
		if !dup {
			s.posts[p.PostGroupID] = append(s.posts[p.PostGroupID], copyPost(p))
		}
	}
	for _, list := range s.posts {
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].ConnectionID == list[j].ConnectionID {
				return list[i].Sequence < list[j].Sequence
			}
			return list[i].ConnectionID < list[j].ConnectionID
		})
	}
	return nil
}

func (s *MemoryStore) ListPlatformPosts(_ context.Context, groupID string) ([]*models.PlatformPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.postsFor(groupID), nil
}

func (s *MemoryStore) UpdatePlatformPost(_ context.Context, post *models.PlatformPost, from models.PlatformPostStatus) (bool, error) {
	if !from.CanTransition(post.Status) {
		return false, common.InvalidState("platform post cannot move from %s to %s", from, post.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.posts[post.PostGroupID] {
		if p.ID != post.ID {
			continue
		}
		if p.Status != from {
			return false, nil
		}
		next := copyPost(p)
		next.Status = post.Status
		next.PlatformPostID = post.PlatformPostID
		next.ErrorMessage = post.ErrorMessage
		next.Attempts = post.Attempts
		next.UpdatedAt = post.UpdatedAt
		s.posts[post.PostGroupID][i] = next
		return true, nil
	}
	return false, nil
}

func (s *MemoryStore) PendingCount(_ context.Context, accountID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[accountID], nil
}

type memoryMedia struct {
	s *MemoryStore
}

func (s *MemoryStore) Media() MediaRepository {
	return memoryMedia{s: s}
}

func (r memoryMedia) Attach(_ context.Context, m *models.MediaReference, imageCap int) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[m.PostGroupID]
	if !ok {
		return common.ErrNotFound
	}
	if !g.Status.Editable() {
		return common.InvalidState("media cannot be attached to a %s post group", g.Status)
	}

	existing := s.mediaFor(m.PostGroupID)
	if err := models.CheckAttachment(existing, m.Kind, imageCap); err != nil {
		return err
	}
	m.DisplayOrder = len(existing)
	s.media[m.ID] = copyMedia(m)
	return nil
}

func (r memoryMedia) ListByPostGroup(_ context.Context, groupID string) ([]*models.MediaReference, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mediaFor(groupID), nil
}

func (r memoryMedia) GetByID(_ context.Context, id string) (*models.MediaReference, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.media[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return copyMedia(m), nil
}

func (r memoryMedia) UpdateProcessed(_ context.Context, m *models.MediaReference) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.media[m.ID]; !ok {
		return common.ErrNotFound
	}
	s.media[m.ID] = copyMedia(m)
	return nil
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
