package models

import (
	"time"

	"github.com/google/uuid"
)

// CollectorRun records the outcome of one per-account collector invocation.
type CollectorRun struct {
	ID            uuid.UUID  `json:"id" gorm:"primaryKey;column:id;type:uuid"`
	AccountID     string     `json:"account_id" gorm:"column:account_id;index"`
	Mode          string     `json:"mode" gorm:"column:mode"`
	StartedAt     time.Time  `json:"started_at" gorm:"column:started_at;not null"`
	FinishedAt    *time.Time `json:"finished_at" gorm:"column:finished_at"`
	SnapshotCount int        `json:"snapshot_count" gorm:"column:snapshot_count;default:0"`
	Error         string     `json:"error" gorm:"column:error"`
}

// TableName sets the table name for the CollectorRun model
func (CollectorRun) TableName() string {
	return "collector_runs"
}
