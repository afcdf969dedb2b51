package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/crosspost/internal/common"
	"github.com/maheshrc27/crosspost/internal/models"
)

// PostGroupRepository persists post groups together with their platform
// posts and the per-account quota counter. Every status change is a
// compare-and-set against the status the caller expects.
type PostGroupRepository interface {
	Create(ctx context.Context, group *models.PostGroup, pendingLimit int) error
	GetByID(ctx context.Context, id string) (*models.PostGroup, error)
	List(ctx context.Context, filter models.PostGroupFilter) ([]*models.PostGroup, int, error)
	Update(ctx context.Context, group *models.PostGroup, expected models.PostGroupStatus, expectedTime *time.Time, pendingLimit int) error
	Delete(ctx context.Context, id string) ([]*models.MediaReference, error)

	ListDue(ctx context.Context, now time.Time, limit int) ([]string, error)
	ListStale(ctx context.Context, before time.Time, limit int) ([]string, error)
	MarkProcessing(ctx context.Context, id string, now time.Time) (bool, error)
	ClaimStale(ctx context.Context, id string, before, now time.Time) (bool, error)
	Finalize(ctx context.Context, id string, status models.PostGroupStatus, now time.Time) (bool, error)

	CreatePlatformPosts(ctx context.Context, posts []*models.PlatformPost) error
	ListPlatformPosts(ctx context.Context, groupID string) ([]*models.PlatformPost, error)
	UpdatePlatformPost(ctx context.Context, post *models.PlatformPost, from models.PlatformPostStatus) (bool, error)

	PendingCount(ctx context.Context, accountID int64) (int, error)
}

type postGroupRepository struct {
	db *sql.DB
}

func NewPostGroupRepository(db *sql.DB) PostGroupRepository {
	return &postGroupRepository{db: db}
}

const postGroupColumns = `id, account_id, content, connection_ids, scheduled_time, settings, status, processing_since, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPostGroup(s rowScanner) (*models.PostGroup, error) {
	var g models.PostGroup
	var connIDs []int64
	var settings []byte

	err := s.Scan(&g.ID, &g.AccountID, &g.Content, pq.Array(&connIDs), &g.ScheduledTime,
		&settings, &g.Status, &g.ProcessingSince, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}

	g.ConnectionIDs = connIDs
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &g.Settings); err != nil {
			return nil, fmt.Errorf("decode settings for %s: %w", g.ID, err)
		}
	}
	return &g, nil
}

func (r *postGroupRepository) Create(ctx context.Context, group *models.PostGroup, pendingLimit int) error {
	settings, err := json.Marshal(group.Settings)
	if err != nil {
		return err
	}

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if group.Status.Pending() {
			if err := reserveQuota(ctx, tx, group.AccountID, pendingLimit); err != nil {
				return err
			}
		}

		query := `
			INSERT INTO post_groups (id, account_id, content, connection_ids, scheduled_time, settings, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`
		_, err := tx.ExecContext(ctx, query, group.ID, group.AccountID, group.Content, pq.Array(group.ConnectionIDs),
			group.ScheduledTime, settings, group.Status, group.CreatedAt, group.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return err
		}
		return nil
	})
}

func (r *postGroupRepository) GetByID(ctx context.Context, id string) (*models.PostGroup, error) {
	query := `SELECT ` + postGroupColumns + ` FROM post_groups WHERE id = $1`
	group, err := scanPostGroup(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, common.ErrNotFound
		}
		slog.Info(err.Error())
		return nil, err
	}

	group.PlatformPosts, err = r.ListPlatformPosts(ctx, id)
	if err != nil {
		return nil, err
	}
	group.Media, err = listMedia(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	return group, nil
}

func (r *postGroupRepository) List(ctx context.Context, filter models.PostGroupFilter) ([]*models.PostGroup, int, error) {
	where := []string{"account_id = $1"}
	args := []any{filter.AccountID}

	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Platform != "" {
		args = append(args, filter.Platform)
		where = append(where, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM social_accounts sa WHERE sa.id = ANY(post_groups.connection_ids) AND sa.platform = $%d)", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		where = append(where, fmt.Sprintf("COALESCE(scheduled_time, created_at) >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where = append(where, fmt.Sprintf("COALESCE(scheduled_time, created_at) <= $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM post_groups WHERE `+cond, args...).Scan(&total); err != nil {
		slog.Info(err.Error())
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM post_groups WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		postGroupColumns, cond, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset())...)
	if err != nil {
		slog.Info(err.Error())
		return nil, 0, err
	}
	defer rows.Close()

	groups := []*models.PostGroup{}
	for rows.Next() {
		g, err := scanPostGroup(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, 0, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, 0, err
	}
	return groups, total, nil
}

// Update writes the editable fields only if the stored status and
// scheduled time still equal what the caller read. Losing that race to the
// scheduler or to another update surfaces as ErrInvalidState.
func (r *postGroupRepository) Update(ctx context.Context, group *models.PostGroup, expected models.PostGroupStatus, expectedTime *time.Time, pendingLimit int) error {
	if !expected.CanTransition(group.Status) {
		return common.InvalidState("cannot move post group from %s to %s", expected, group.Status)
	}

	settings, err := json.Marshal(group.Settings)
	if err != nil {
		return err
	}

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		query := `
			UPDATE post_groups
			SET content = $2,
				connection_ids = $3,
				scheduled_time = $4,
				settings = $5,
				status = $6,
				updated_at = $7
			WHERE id = $1 AND status = $8 AND scheduled_time IS NOT DISTINCT FROM $9
		`
		res, err := tx.ExecContext(ctx, query, group.ID, group.Content, pq.Array(group.ConnectionIDs),
			group.ScheduledTime, settings, group.Status, group.UpdatedAt, expected, expectedTime)
		if err != nil {
			slog.Info(err.Error())
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected != 1 {
			return common.InvalidState("post group %s changed since it was read", group.ID)
		}

		switch {
		case !expected.Pending() && group.Status.Pending():
			return reserveQuota(ctx, tx, group.AccountID, pendingLimit)
		case expected.Pending() && !group.Status.Pending():
			return releaseQuota(ctx, tx, group.AccountID)
		}
		return nil
	})
}

// Delete removes the group and its children in one transaction and returns
// the media that was attached so the caller can clean up object storage.
func (r *postGroupRepository) Delete(ctx context.Context, id string) ([]*models.MediaReference, error) {
	var media []*models.MediaReference

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var status models.PostGroupStatus
		var accountID int64
		err := tx.QueryRowContext(ctx, `SELECT status, account_id FROM post_groups WHERE id = $1 FOR UPDATE`, id).
			Scan(&status, &accountID)
		if err != nil {
			if err == sql.ErrNoRows {
				return common.ErrNotFound
			}
			slog.Info(err.Error())
			return err
		}
		if status == models.PostStatusProcessing {
			return common.InvalidState("post group %s is processing", id)
		}

		media, err = listMedia(ctx, tx, id)
		if err != nil {
			return err
		}

		for _, q := range []string{
			`DELETE FROM platform_posts WHERE post_group_id = $1`,
			`DELETE FROM media_references WHERE post_group_id = $1`,
			`DELETE FROM post_groups WHERE id = $1`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				slog.Info(err.Error())
				return err
			}
		}

		if status.Pending() {
			return releaseQuota(ctx, tx, accountID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return media, nil
}

func (r *postGroupRepository) listIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *postGroupRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return r.listIDs(ctx, `
		SELECT id FROM post_groups
		WHERE status = 'scheduled' AND scheduled_time <= $1
		ORDER BY scheduled_time
		LIMIT $2
	`, now, limit)
}

func (r *postGroupRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]string, error) {
	return r.listIDs(ctx, `
		SELECT id FROM post_groups
		WHERE status = 'processing' AND processing_since < $1
		ORDER BY processing_since
		LIMIT $2
	`, before, limit)
}

func (r *postGroupRepository) exec1(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}

// MarkProcessing is the scheduler's compare-and-set. Only one caller can
// observe true for a given group.
func (r *postGroupRepository) MarkProcessing(ctx context.Context, id string, now time.Time) (bool, error) {
	return r.exec1(ctx, `
		UPDATE post_groups
		SET status = 'processing',
			processing_since = $2,
			updated_at = $2
		WHERE id = $1 AND status = 'scheduled'
	`, id, now)
}

func (r *postGroupRepository) ClaimStale(ctx context.Context, id string, before, now time.Time) (bool, error) {
	return r.exec1(ctx, `
		UPDATE post_groups
		SET processing_since = $3,
			updated_at = $3
		WHERE id = $1 AND status = 'processing' AND processing_since < $2
	`, id, before, now)
}

func (r *postGroupRepository) Finalize(ctx context.Context, id string, status models.PostGroupStatus, now time.Time) (bool, error) {
	if !status.Terminal() {
		return false, common.InvalidState("%s is not a terminal status", status)
	}

	var finalized bool
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var accountID int64
		err := tx.QueryRowContext(ctx, `
			UPDATE post_groups
			SET status = $2,
				processing_since = NULL,
				updated_at = $3
			WHERE id = $1 AND status = 'processing'
			RETURNING account_id
		`, id, status, now).Scan(&accountID)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil
			}
			slog.Info(err.Error())
			return err
		}

		finalized = true
		return releaseQuota(ctx, tx, accountID)
	})
	return finalized, err
}
