package models

import "time"

type PostGroupStatus string

const (
	PostStatusDraft              PostGroupStatus = "draft"
	PostStatusScheduled          PostGroupStatus = "scheduled"
	PostStatusProcessing         PostGroupStatus = "processing"
	PostStatusPublished          PostGroupStatus = "published"
	PostStatusPartiallyPublished PostGroupStatus = "partially_published"
	PostStatusFailed             PostGroupStatus = "failed"
)

func (s PostGroupStatus) Valid() bool {
	switch s {
	case PostStatusDraft, PostStatusScheduled, PostStatusProcessing,
		PostStatusPublished, PostStatusPartiallyPublished, PostStatusFailed:
		return true
	}
	return false
}

// Editable reports whether callers may still update the group.
func (s PostGroupStatus) Editable() bool {
	return s == PostStatusDraft || s == PostStatusScheduled
}

// Pending reports whether the group counts against the account's quota.
func (s PostGroupStatus) Pending() bool {
	return s == PostStatusScheduled || s == PostStatusProcessing
}

func (s PostGroupStatus) Terminal() bool {
	return s == PostStatusPublished || s == PostStatusPartiallyPublished || s == PostStatusFailed
}

// CanTransition lists the only edges a post group may follow.
func (s PostGroupStatus) CanTransition(to PostGroupStatus) bool {
	switch s {
	case PostStatusDraft:
		return to == PostStatusDraft || to == PostStatusScheduled
	case PostStatusScheduled:
		return to == PostStatusDraft || to == PostStatusScheduled || to == PostStatusProcessing
	case PostStatusProcessing:
		return to.Terminal()
	}
	return false
}

type PlatformPostStatus string

const (
	PlatformPostPending    PlatformPostStatus = "pending"
	PlatformPostProcessing PlatformPostStatus = "processing"
	PlatformPostPublished  PlatformPostStatus = "published"
	PlatformPostFailed     PlatformPostStatus = "failed"
)

func (s PlatformPostStatus) Terminal() bool {
	return s == PlatformPostPublished || s == PlatformPostFailed
}

// CanTransition enforces pending -> processing -> published|failed.
// A pending post may fail directly when validation rejects it.
func (s PlatformPostStatus) CanTransition(to PlatformPostStatus) bool {
	switch s {
	case PlatformPostPending:
		return to == PlatformPostProcessing || to == PlatformPostFailed
	case PlatformPostProcessing:
		return to.Terminal()
	}
	return false
}

type PostGroup struct {
	ID              string                    `db:"id" json:"id"`
	AccountID       int64                     `db:"account_id" json:"account_id"`
	Content         string                    `db:"content" json:"content"`
	ConnectionIDs   []int64                   `db:"connection_ids" json:"connection_ids"`
	ScheduledTime   *time.Time                `db:"scheduled_time" json:"scheduled_time,omitempty"`
	Settings        map[string]map[string]any `db:"settings" json:"settings,omitempty"`
	Status          PostGroupStatus           `db:"status" json:"status"`
	PlatformPosts   []*PlatformPost           `json:"platform_posts"`
	Media           []*MediaReference         `json:"media"`
	CreatedAt       time.Time                 `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time                 `db:"updated_at" json:"updated_at"`
	ProcessingSince *time.Time                `db:"processing_since" json:"-"`
}

// PlatformSettings returns the caller-supplied settings for one platform.
func (g *PostGroup) PlatformSettings(platform string) map[string]any {
	if g.Settings == nil {
		return nil
	}
	return g.Settings[platform]
}

type PlatformPost struct {
	ID             string             `db:"id" json:"id"`
	PostGroupID    string             `db:"post_group_id" json:"post_group_id"`
	ConnectionID   int64              `db:"connection_id" json:"connection_id"`
	Platform       string             `db:"platform" json:"platform"`
	Sequence       int                `db:"sequence" json:"sequence"`
	Payload        PlatformPayload    `db:"payload" json:"payload"`
	Status         PlatformPostStatus `db:"status" json:"status"`
	PlatformPostID string             `db:"platform_post_id" json:"platform_post_id,omitempty"`
	ErrorMessage   string             `db:"error_message" json:"error,omitempty"`
	Attempts       int                `db:"attempts" json:"attempts"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `db:"updated_at" json:"updated_at"`
}

// PlatformPayload is one platform-ready unit produced by the adapter registry.
type PlatformPayload struct {
	Text     string         `json:"text"`
	MediaIDs []string       `json:"media_ids,omitempty"`
	Settings map[string]any `json:"settings,omitempty"`
	Total    int            `json:"total"`
}

type PostGroupFilter struct {
	AccountID int64
	Status    PostGroupStatus
	Platform  string
	From      *time.Time
	To        *time.Time
	Page      int
	Limit     int
}

func (f PostGroupFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// AggregateStatus folds child platform post statuses into the group status.
// The second result is false while any child is still non-terminal.
func AggregateStatus(posts []*PlatformPost) (PostGroupStatus, bool) {
	if len(posts) == 0 {
		return PostStatusFailed, true
	}

	published, failed := 0, 0
	for _, p := range posts {
		switch p.Status {
		case PlatformPostPublished:
			published++
		case PlatformPostFailed:
			failed++
		default:
			return PostStatusProcessing, false
		}
	}

	switch {
	case failed == 0:
		return PostStatusPublished, true
	case published == 0:
		return PostStatusFailed, true
	default:
		return PostStatusPartiallyPublished, true
	}
}
