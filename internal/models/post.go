package models

import (
	"encoding/json"
	"time"
)

// Post is a single piece of content belonging to an account. The composite
// (account_id, illust_id) key identifies it; re-ingestion updates the mutable
// fields and never deletes a row.
type Post struct {
	AccountID  string    `json:"account_id" gorm:"primaryKey;column:account_id"`
	IllustID   int64     `json:"illust_id" gorm:"primaryKey;column:illust_id"`
	CreateDate time.Time `json:"create_date" gorm:"column:create_date;not null"`
	TagsJSON   string    `json:"tags_json" gorm:"column:tags_json;not null"`
	Type       *string   `json:"type" gorm:"column:type"`
	PageCount  *int      `json:"page_count" gorm:"column:page_count"`
	XRestrict  *int      `json:"x_restrict" gorm:"column:x_restrict"`
	Title      *string   `json:"title" gorm:"column:title"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"column:updated_at;not null"`
}

// TableName sets the table name for the Post model
func (Post) TableName() string {
	return "posts"
}

// SetTags serializes the ordered tag list into the tags_json column.
func (p *Post) SetTags(tags []string) error {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return err
	}
	p.TagsJSON = string(b)
	return nil
}

// Tags deserializes the tags_json column back into an ordered tag list.
func (p *Post) Tags() []string {
	var tags []string
	if err := json.Unmarshal([]byte(p.TagsJSON), &tags); err != nil {
		return nil
	}
	return tags
}
