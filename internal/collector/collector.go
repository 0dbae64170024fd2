// Package collector decides, per account and per mode, which upstream
// entities are new vs. known, which need a fresh metrics snapshot, and
// writes the results through the store.
package collector

import (
	"context"
	"fmt"
	"log"
	"time"

	"pixiv-stats/internal/models"
	"pixiv-stats/internal/pixiv"
	"pixiv-stats/internal/store"
)

// API is the slice of the Pixiv client the collector consumes. Tests swap in
// a fake.
type API interface {
	UserDetail(ctx context.Context, userID int64) (map[string]any, error)
	IllustDetail(ctx context.Context, illustID int64) (map[string]any, error)
	UserIllusts(ctx context.Context, userID int64, maxPages int) ([]any, error)
}

// Options bound one run's work per account.
type Options struct {
	RecentHours          int // posts created within this window stay snapshot-eligible
	MaxPages             int // page cap for the post listing
	MaxDetailsPerAccount int // per-run cap on metrics-detail calls
	Now                  func() time.Time
}

// Collector orchestrates collection for accounts. It holds no durable state;
// decision inputs are fetched fresh from the store at the start of each run.
type Collector struct {
	store *store.Store
	opts  Options
}

// New creates a Collector. Zero option fields get the defaults.
func New(st *store.Store, opts Options) *Collector {
	if opts.RecentHours <= 0 {
		opts.RecentHours = 24
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 3
	}
	if opts.MaxDetailsPerAccount <= 0 {
		opts.MaxDetailsPerAccount = 20
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Collector{store: st, opts: opts}
}

// CollectAccountDaily fetches the account profile once and upserts the
// follower summary for the current UTC calendar day.
func (c *Collector) CollectAccountDaily(ctx context.Context, api API, accountID string, userID int64) error {
	now := c.opts.Now().UTC()

	detail, err := api.UserDetail(ctx, userID)
	if err != nil {
		return fmt.Errorf("user detail for %s: %w", accountID, err)
	}
	stats := pixiv.ExtractUserStats(detail)

	return c.store.UpsertAccountDaily(&models.AccountDaily{
		AccountID:  accountID,
		Date:       now.Format("2006-01-02"),
		Followers:  stats.Followers,
		Following:  stats.Following,
		CapturedAt: now.Truncate(time.Minute),
	})
}

// SyncPosts lists the account's recent posts, upserts each, and collects a
// metrics snapshot for every post that is new or was created within the
// recent window, up to the per-run detail cap. Returns the number of
// snapshots collected.
func (c *Collector) SyncPosts(ctx context.Context, api API, accountID string, userID int64, sourceMode string) (int, error) {
	known, err := c.store.KnownPostIDs(accountID)
	if err != nil {
		return 0, err
	}

	illusts, err := api.UserIllusts(ctx, userID, c.opts.MaxPages)
	if err != nil {
		return 0, fmt.Errorf("list posts for %s: %w", accountID, err)
	}

	now := c.opts.Now().UTC()
	capturedAt := now.Truncate(time.Minute)
	cutoff := now.Add(-time.Duration(c.opts.RecentHours) * time.Hour)
	detailCount := 0

	for _, raw := range illusts {
		meta := pixiv.ExtractPostMeta(raw)
		if !meta.Usable() {
			log.Printf("[%s] skipping post with missing id or create_date", accountID)
			continue
		}

		createDate, err := NormalizeTimestamp(meta.CreateDate)
		if err != nil {
			log.Printf("[%s] skipping post %d: %v", accountID, meta.IllustID, err)
			continue
		}

		post := models.Post{
			AccountID:  accountID,
			IllustID:   meta.IllustID,
			CreateDate: createDate,
			Type:       meta.Type,
			PageCount:  meta.PageCount,
			XRestrict:  meta.XRestrict,
			Title:      meta.Title,
		}
		if err := post.SetTags(meta.Tags); err != nil {
			return detailCount, fmt.Errorf("serialize tags for %d: %w", meta.IllustID, err)
		}
		if err := c.store.UpsertPost(&post); err != nil {
			return detailCount, err
		}

		_, isKnown := known[meta.IllustID]
		if isKnown && createDate.Before(cutoff) {
			continue
		}
		if detailCount >= c.opts.MaxDetailsPerAccount {
			continue
		}

		if err := c.collectSnapshot(ctx, api, accountID, meta.IllustID, capturedAt, sourceMode); err != nil {
			return detailCount, err
		}
		detailCount++
	}

	return detailCount, nil
}

// CollectRecentSnapshots snapshots already-known posts created within the
// recent window, newest first, up to the per-run cap. With no recent posts
// it returns 0 without any upstream calls.
func (c *Collector) CollectRecentSnapshots(ctx context.Context, api API, accountID, sourceMode string) (int, error) {
	now := c.opts.Now().UTC()
	since := now.Add(-time.Duration(c.opts.RecentHours) * time.Hour).Truncate(time.Second)

	ids, err := c.store.RecentPostIDs(accountID, since)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if len(ids) > c.opts.MaxDetailsPerAccount {
		ids = ids[:c.opts.MaxDetailsPerAccount]
	}

	capturedAt := now.Truncate(time.Minute)
	count := 0
	for _, illustID := range ids {
		if err := c.collectSnapshot(ctx, api, accountID, illustID, capturedAt, sourceMode); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (c *Collector) collectSnapshot(ctx context.Context, api API, accountID string, illustID int64, capturedAt time.Time, sourceMode string) error {
	detail, err := api.IllustDetail(ctx, illustID)
	if err != nil {
		return fmt.Errorf("illust detail %d: %w", illustID, err)
	}
	metrics := pixiv.ExtractPostMetrics(detail)

	return c.store.InsertSnapshot(&models.PostSnapshot{
		AccountID:     accountID,
		IllustID:      illustID,
		CapturedAt:    capturedAt,
		SourceMode:    sourceMode,
		BookmarkCount: metrics.Bookmarks,
		BookmarkRate:  metrics.BookmarkRate(),
		LikeCount:     metrics.Likes,
		ViewCount:     metrics.Views,
		CommentCount:  metrics.Comments,
	})
}

// timestampLayouts are tried in order after RFC3339. Layouts without a zone
// are interpreted as UTC.
var timestampLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// NormalizeTimestamp parses an upstream timestamp, assumes UTC when no zone
// is present, converts to UTC, and truncates to whole seconds.
func NormalizeTimestamp(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC().Truncate(time.Second), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Truncate(time.Second), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}
