package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/maheshrc27/crosspost/internal/common"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// reserveQuota takes one pending slot for the account. The check and the
// increment are a single conditional update, so concurrent reservations for
// the same account serialize on the row lock and never overshoot the limit.
func reserveQuota(ctx context.Context, q querier, accountID int64, limit int) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO account_quotas (account_id, pending)
		VALUES ($1, 0)
		ON CONFLICT (account_id) DO NOTHING
	`, accountID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	res, err := q.ExecContext(ctx, `
		UPDATE account_quotas
		SET pending = pending + 1,
			updated_at = NOW()
		WHERE account_id = $1 AND pending < $2
	`, accountID, limit)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		return common.ErrQuotaExceeded
	}
	return nil
}

func releaseQuota(ctx context.Context, q querier, accountID int64) error {
	_, err := q.ExecContext(ctx, `
		UPDATE account_quotas
		SET pending = GREATEST(pending - 1, 0),
			updated_at = NOW()
		WHERE account_id = $1
	`, accountID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postGroupRepository) PendingCount(ctx context.Context, accountID int64) (int, error) {
	var pending int
	err := r.db.QueryRowContext(ctx, `SELECT pending FROM account_quotas WHERE account_id = $1`, accountID).Scan(&pending)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		slog.Info(err.Error())
		return 0, err
	}
	return pending, nil
}
