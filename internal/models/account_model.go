package models

import (
	"time"
)

const SubscriptionStatusActive = "active"

type Subscription struct {
	ID                  int64     `db:"id" json:"id"`
	UserID              int64     `db:"user_id" json:"user_id"`
	SubscriptionID      string    `db:"subscription_id" json:"subscription_id"`
	SubscriptionEndDate time.Time `db:"subscription_end_date" json:"subscription_end_date"`
	Status              string    `db:"status" json:"status"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// Active reports whether the subscription grants the paid plan at t.
func (s *Subscription) Active(t time.Time) bool {
	return s.Status == SubscriptionStatusActive && s.SubscriptionEndDate.After(t)
}

type QuotaUsage struct {
	AccountID int64 `json:"account_id"`
	Pending   int   `json:"pending"`
	Limit     int   `json:"limit"`
}
