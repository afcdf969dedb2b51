package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/maheshrc27/crosspost/internal/common"
)

type ApiKeyRepository interface {
	GetUserID(ctx context.Context, apiKey string) (int64, error)
}

type apiKeyRepository struct {
	db *sql.DB
}

func NewApiKeyRepository(db *sql.DB) ApiKeyRepository {
	return &apiKeyRepository{db: db}
}

func (r *apiKeyRepository) GetUserID(ctx context.Context, apiKey string) (int64, error) {
	var userID int64
	query := "SELECT user_id FROM api_keys WHERE api_key = $1"
	err := r.db.QueryRowContext(ctx, query, apiKey).Scan(&userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, common.ErrNotFound
		}
		slog.Info(err.Error())
		return 0, err
	}
	return userID, nil
}
