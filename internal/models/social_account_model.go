package models

import (
	"time"
)

// SocialAccount is a connected platform account. Connections are managed
// elsewhere; this service only reads them.
type SocialAccount struct {
	ID              int64     `db:"id" json:"id"`
	UserID          int64     `db:"user_id" json:"user_id"`
	Platform        string    `db:"platform" json:"platform"`
	AccountID       string    `db:"account_id" json:"account_id"`
	AccountUsername string    `db:"account_username" json:"account_username"`
	AccessToken     string    `db:"access_token" json:"-"`
	AccountStatus   string    `db:"account_status" json:"account_status"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}
