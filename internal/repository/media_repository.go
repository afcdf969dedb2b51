package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"

	"github.com/maheshrc27/crosspost/internal/common"
	"github.com/maheshrc27/crosspost/internal/models"
)

type MediaRepository interface {
	Attach(ctx context.Context, m *models.MediaReference, imageCap int) error
	GetByID(ctx context.Context, id string) (*models.MediaReference, error)
	ListByPostGroup(ctx context.Context, groupID string) ([]*models.MediaReference, error)
	UpdateProcessed(ctx context.Context, m *models.MediaReference) error
}

type mediaRepository struct {
	db *sql.DB
}

func NewMediaRepository(db *sql.DB) MediaRepository {
	return &mediaRepository{db: db}
}

const mediaColumns = `id, post_group_id, kind, file_name, content_type, storage_key, public_url, status, metadata, converted_key, converted_url, error_message, display_order, created_at, updated_at`

func scanMedia(s rowScanner) (*models.MediaReference, error) {
	var m models.MediaReference
	var metadata []byte

	err := s.Scan(&m.ID, &m.PostGroupID, &m.Kind, &m.FileName, &m.ContentType, &m.StorageKey, &m.PublicURL,
		&m.Status, &metadata, &m.ConvertedKey, &m.ConvertedURL, &m.ErrorMessage, &m.DisplayOrder,
		&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(metadata) > 0 {
		m.Metadata = &models.MediaMetadata{}
		if err := json.Unmarshal(metadata, m.Metadata); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

func listMedia(ctx context.Context, q querier, groupID string) ([]*models.MediaReference, error) {
	query := `SELECT ` + mediaColumns + ` FROM media_references WHERE post_group_id = $1 ORDER BY display_order`
	rows, err := q.QueryContext(ctx, query, groupID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	media := []*models.MediaReference{}
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		media = append(media, m)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return media, nil
}

// Attach records a new upload against a group. The group row is locked for
// the duration so two concurrent registrations cannot both pass the media
// combination check.
func (r *mediaRepository) Attach(ctx context.Context, m *models.MediaReference, imageCap int) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var status models.PostGroupStatus
		err := tx.QueryRowContext(ctx, `SELECT status FROM post_groups WHERE id = $1 FOR UPDATE`, m.PostGroupID).Scan(&status)
		if err != nil {
			if err == sql.ErrNoRows {
				return common.ErrNotFound
			}
			slog.Info(err.Error())
			return err
		}
		if !status.Editable() {
			return common.InvalidState("media cannot be attached to a %s post group", status)
		}

		existing, err := listMedia(ctx, tx, m.PostGroupID)
		if err != nil {
			return err
		}
		if err := models.CheckAttachment(existing, m.Kind, imageCap); err != nil {
			return err
		}
		m.DisplayOrder = len(existing)

		query := `
			INSERT INTO media_references (id, post_group_id, kind, file_name, content_type, storage_key, public_url, status, display_order, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`
		_, err = tx.ExecContext(ctx, query, m.ID, m.PostGroupID, m.Kind, m.FileName, m.ContentType, m.StorageKey,
			m.PublicURL, m.Status, m.DisplayOrder, m.CreatedAt, m.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return err
		}
		return nil
	})
}

func (r *mediaRepository) GetByID(ctx context.Context, id string) (*models.MediaReference, error) {
	query := `SELECT ` + mediaColumns + ` FROM media_references WHERE id = $1`
	m, err := scanMedia(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, common.ErrNotFound
		}
		slog.Info(err.Error())
		return nil, err
	}
	return m, nil
}

func (r *mediaRepository) ListByPostGroup(ctx context.Context, groupID string) ([]*models.MediaReference, error) {
	return listMedia(ctx, r.db, groupID)
}

func (r *mediaRepository) UpdateProcessed(ctx context.Context, m *models.MediaReference) error {
	var metadata any
	if m.Metadata != nil {
		b, err := json.Marshal(m.Metadata)
		if err != nil {
			return err
		}
		metadata = b
	}

	query := `
		UPDATE media_references
		SET status = $2,
			content_type = $3,
			metadata = $4,
			converted_key = $5,
			converted_url = $6,
			error_message = $7,
			updated_at = $8
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, m.ID, m.Status, m.ContentType, metadata, m.ConvertedKey,
		m.ConvertedURL, m.ErrorMessage, m.UpdatedAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return common.ErrNotFound
	}
	return nil
}
