package models

import "time"

// AccountDaily holds one row per account per calendar day with follower and
// following counts. Re-collection on the same day overwrites the row
// (last-write-wins) instead of appending a second one.
type AccountDaily struct {
	AccountID  string    `json:"account_id" gorm:"primaryKey;column:account_id"`
	Date       string    `json:"date" gorm:"primaryKey;column:date"` // YYYY-MM-DD
	Followers  *int64    `json:"followers" gorm:"column:followers"`
	Following  *int64    `json:"following" gorm:"column:following"`
	CapturedAt time.Time `json:"captured_at" gorm:"column:captured_at;not null"`
}

// TableName sets the table name for the AccountDaily model
func (AccountDaily) TableName() string {
	return "account_daily"
}
