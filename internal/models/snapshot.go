package models

import "time"

// PostSnapshot is one timestamped measurement of a post's engagement metrics.
// Rows are append-only: the four-column key is unique and a duplicate insert
// is silently dropped by the store, never overwritten.
//
// Counter fields are pointers so that an upstream value of 0 stays
// distinguishable from a value the API simply did not return.
type PostSnapshot struct {
	AccountID     string    `json:"account_id" gorm:"primaryKey;column:account_id"`
	IllustID      int64     `json:"illust_id" gorm:"primaryKey;column:illust_id"`
	CapturedAt    time.Time `json:"captured_at" gorm:"primaryKey;column:captured_at"`
	SourceMode    string    `json:"source_mode" gorm:"primaryKey;column:source_mode"`
	BookmarkCount *int64    `json:"bookmark_count" gorm:"column:bookmark_count"`
	BookmarkRate  *float64  `json:"bookmark_rate" gorm:"column:bookmark_rate"`
	LikeCount     *int64    `json:"like_count" gorm:"column:like_count"`
	ViewCount     *int64    `json:"view_count" gorm:"column:view_count"`
	CommentCount  *int64    `json:"comment_count" gorm:"column:comment_count"`
}

// TableName sets the table name for the PostSnapshot model
func (PostSnapshot) TableName() string {
	return "post_snapshots"
}
