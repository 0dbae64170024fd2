// Package store implements the durable persistence operations of the
// collection pipeline: idempotent upserts, the append-only snapshot insert,
// and the targeted reads the orchestrator needs to drive its decisions.
package store

import (
	"fmt"
	"time"

	"pixiv-stats/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store wraps a gorm handle, which may be a transaction: a collection run
// passes its transaction in and commits once at the end.
type Store struct {
	db *gorm.DB
}

// New creates a Store over db.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// UpsertAccount inserts or refreshes an account row, stamping updated_at.
func (s *Store) UpsertAccount(accountID string, pixivUserID int64) error {
	account := models.Account{
		AccountID:   accountID,
		PixivUserID: pixivUserID,
		UpdatedAt:   time.Now().UTC().Truncate(time.Second),
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"pixiv_user_id", "updated_at"}),
	}).Create(&account).Error
	if err != nil {
		return fmt.Errorf("upsert account %s: %w", accountID, err)
	}
	return nil
}

// UpsertPost inserts a post on first sighting and updates its mutable fields
// on every subsequent one. create_date is always taken from upstream.
func (s *Store) UpsertPost(post *models.Post) error {
	post.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_id"}, {Name: "illust_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"create_date", "tags_json", "type", "page_count", "x_restrict", "title", "updated_at",
		}),
	}).Create(post).Error
	if err != nil {
		return fmt.Errorf("upsert post %s/%d: %w", post.AccountID, post.IllustID, err)
	}
	return nil
}

// InsertSnapshot appends a snapshot row unless the identical four-column key
// already exists, in which case it silently no-ops. The existing measurement
// is never overwritten; the check is explicit rather than an upsert side
// effect.
func (s *Store) InsertSnapshot(snap *models.PostSnapshot) error {
	var count int64
	err := s.db.Model(&models.PostSnapshot{}).
		Where("account_id = ? AND illust_id = ? AND captured_at = ? AND source_mode = ?",
			snap.AccountID, snap.IllustID, snap.CapturedAt, snap.SourceMode).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("check snapshot %s/%d: %w", snap.AccountID, snap.IllustID, err)
	}
	if count > 0 {
		return nil
	}
	if err := s.db.Create(snap).Error; err != nil {
		return fmt.Errorf("insert snapshot %s/%d: %w", snap.AccountID, snap.IllustID, err)
	}
	return nil
}

// UpsertAccountDaily writes the one-row-per-account-per-day follower summary.
// Re-collection on the same day overwrites followers, following, and
// captured_at (last-write-wins).
func (s *Store) UpsertAccountDaily(daily *models.AccountDaily) error {
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"followers", "following", "captured_at"}),
	}).Create(daily).Error
	if err != nil {
		return fmt.Errorf("upsert account daily %s/%s: %w", daily.AccountID, daily.Date, err)
	}
	return nil
}

// KnownPostIDs returns every post ID already stored for the account, as the
// orchestrator's pre-run known-set.
func (s *Store) KnownPostIDs(accountID string) (map[int64]struct{}, error) {
	var ids []int64
	err := s.db.Model(&models.Post{}).
		Where("account_id = ?", accountID).
		Pluck("illust_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("known post ids for %s: %w", accountID, err)
	}
	known := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
	}
	return known, nil
}

// RecentPostIDs returns post IDs created at or after since, newest first.
func (s *Store) RecentPostIDs(accountID string, since time.Time) ([]int64, error) {
	var ids []int64
	err := s.db.Model(&models.Post{}).
		Where("account_id = ? AND create_date >= ?", accountID, since).
		Order("create_date DESC").
		Pluck("illust_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("recent post ids for %s: %w", accountID, err)
	}
	return ids, nil
}

// RecordRun persists one per-account run outcome.
func (s *Store) RecordRun(run *models.CollectorRun) error {
	if err := s.db.Create(run).Error; err != nil {
		return fmt.Errorf("record run %s: %w", run.AccountID, err)
	}
	return nil
}
