package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/maheshrc27/crosspost/internal/common"
	"github.com/maheshrc27/crosspost/internal/models"
)

type SubscriptionRepository interface {
	GetByUserID(ctx context.Context, userID int64) (*models.Subscription, error)
}

type subscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) GetByUserID(ctx context.Context, userID int64) (*models.Subscription, error) {
	var s models.Subscription
	query := `
		SELECT id, user_id, subscription_id, subscription_end_date, status
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY subscription_end_date DESC
		LIMIT 1
	`
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&s.ID, &s.UserID, &s.SubscriptionID, &s.SubscriptionEndDate, &s.Status)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, common.ErrNotFound
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &s, nil
}
