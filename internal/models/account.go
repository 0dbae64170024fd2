package models

import "time"

// Account is a tracked Pixiv creator identity mapped to a local identifier.
type Account struct {
	AccountID   string    `json:"account_id" gorm:"primaryKey;column:account_id"`
	PixivUserID int64     `json:"pixiv_user_id" gorm:"column:pixiv_user_id;not null"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"column:updated_at;not null"`
}

// TableName sets the table name for the Account model
func (Account) TableName() string {
	return "accounts"
}
