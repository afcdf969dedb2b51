package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"

	"github.com/maheshrc27/crosspost/internal/common"
	"github.com/maheshrc27/crosspost/internal/models"
)

const platformPostColumns = `id, post_group_id, connection_id, platform, sequence, payload, status, platform_post_id, error_message, attempts, created_at, updated_at`

// CreatePlatformPosts inserts the sub-posts of one group. Rows that already
// exist for the same (group, connection, sequence) are left untouched so a
// re-dispatched group keeps its original children.
func (r *postGroupRepository) CreatePlatformPosts(ctx context.Context, posts []*models.PlatformPost) error {
	if len(posts) == 0 {
		return nil
	}

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		query := `
			INSERT INTO platform_posts (id, post_group_id, connection_id, platform, sequence, payload, status, error_message, attempts, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (post_group_id, connection_id, sequence) DO NOTHING
		`
		for _, p := range posts {
			payload, err := json.Marshal(p.Payload)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, query, p.ID, p.PostGroupID, p.ConnectionID, p.Platform, p.Sequence,
				payload, p.Status, p.ErrorMessage, p.Attempts, p.CreatedAt, p.UpdatedAt)
			if err != nil {
				slog.Info(err.Error())
				return err
			}
		}
		return nil
	})
}

func (r *postGroupRepository) ListPlatformPosts(ctx context.Context, groupID string) ([]*models.PlatformPost, error) {
	query := `SELECT ` + platformPostColumns + ` FROM platform_posts WHERE post_group_id = $1 ORDER BY connection_id, sequence`
	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	posts := []*models.PlatformPost{}
	for rows.Next() {
		var p models.PlatformPost
		var payload []byte
		err := rows.Scan(&p.ID, &p.PostGroupID, &p.ConnectionID, &p.Platform, &p.Sequence, &payload,
			&p.Status, &p.PlatformPostID, &p.ErrorMessage, &p.Attempts, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &p.Payload); err != nil {
				return nil, err
			}
		}
		posts = append(posts, &p)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return posts, nil
}

// UpdatePlatformPost moves a sub-post forward from the given status. It
// returns false when another writer already moved it.
func (r *postGroupRepository) UpdatePlatformPost(ctx context.Context, post *models.PlatformPost, from models.PlatformPostStatus) (bool, error) {
	if !from.CanTransition(post.Status) {
		return false, common.InvalidState("platform post cannot move from %s to %s", from, post.Status)
	}

	return r.exec1(ctx, `
		UPDATE platform_posts
		SET status = $2,
			platform_post_id = $3,
			error_message = $4,
			attempts = $5,
			updated_at = $6
		WHERE id = $1 AND status = $7
	`, post.ID, post.Status, post.PlatformPostID, post.ErrorMessage, post.Attempts, post.UpdatedAt, from)
}
