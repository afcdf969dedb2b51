package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/lib/pq"
	"github.com/maheshrc27/crosspost/internal/models"
)

// SocialAccountRepository reads platform connections. Connecting and
// refreshing accounts happens outside this service.
type SocialAccountRepository interface {
	ListByIDs(ctx context.Context, ids []int64) ([]*models.SocialAccount, error)
}

type socialAccountRepository struct {
	db *sql.DB
}

func NewSocialAccountRepository(db *sql.DB) SocialAccountRepository {
	return &socialAccountRepository{db: db}
}

func (r *socialAccountRepository) ListByIDs(ctx context.Context, ids []int64) ([]*models.SocialAccount, error) {
	query := `
		SELECT id, user_id, platform, account_id, account_username, access_token, account_status, created_at, updated_at
		FROM social_accounts
		WHERE id = ANY($1)
	`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.SocialAccount
	for rows.Next() {
		var sa models.SocialAccount
		err := rows.Scan(&sa.ID, &sa.UserID, &sa.Platform, &sa.AccountID, &sa.AccountUsername,
			&sa.AccessToken, &sa.AccountStatus, &sa.CreatedAt, &sa.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		accounts = append(accounts, &sa)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return accounts, nil
}
