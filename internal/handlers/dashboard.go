// Package handlers serves the read-only dashboard queries over the stats
// database.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"pixiv-stats/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// DashboardHandler answers aggregate queries over the collected time series.
type DashboardHandler struct {
	db *gorm.DB
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(db *gorm.DB) *DashboardHandler {
	return &DashboardHandler{db: db}
}

// HealthCheck reports service liveness.
func (h *DashboardHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListAccounts returns all tracked accounts ordered by id.
func (h *DashboardHandler) ListAccounts(c *gin.Context) {
	var accounts []models.Account
	if err := h.db.Order("account_id").Find(&accounts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, accounts)
}

// DailyRow is one follower-daily row annotated with the day-over-day delta.
// captured_at is selected as text because the ALL rollup aggregates it.
type DailyRow struct {
	AccountID      string `json:"account_id"`
	Date           string `json:"date"`
	Followers      *int64 `json:"followers"`
	Following      *int64 `json:"following"`
	CapturedAt     string `json:"captured_at"`
	FollowersDelta int64  `json:"followers_delta"`
	IsDecrease     bool   `json:"is_decrease"`
}

// AccountDaily returns the per-day follower rollup for one account, or the
// summed rollup across all accounts when the id is "ALL". Rows are ordered
// by date and carry follower deltas against the previous day.
func (h *DashboardHandler) AccountDaily(c *gin.Context) {
	accountID := c.Param("id")

	var rows []DailyRow
	var err error
	if accountID == "ALL" {
		err = h.db.Raw(`
			SELECT
				'ALL' AS account_id,
				date,
				SUM(COALESCE(followers, 0)) AS followers,
				SUM(COALESCE(following, 0)) AS following,
				MAX(CAST(captured_at AS TEXT)) AS captured_at
			FROM account_daily
			GROUP BY date
			ORDER BY date`).Scan(&rows).Error
	} else {
		err = h.db.Raw(`
			SELECT account_id, date, followers, following,
				CAST(captured_at AS TEXT) AS captured_at
			FROM account_daily
			WHERE account_id = ?
			ORDER BY date`, accountID).Scan(&rows).Error
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	addFollowerDeltas(rows)
	c.JSON(http.StatusOK, rows)
}

// addFollowerDeltas fills FollowersDelta/IsDecrease in date order. The first
// row (and rows following a missing value) get a delta of 0.
func addFollowerDeltas(rows []DailyRow) {
	var prev *int64
	for i := range rows {
		cur := rows[i].Followers
		if prev != nil && cur != nil {
			rows[i].FollowersDelta = *cur - *prev
		}
		rows[i].IsDecrease = rows[i].FollowersDelta < 0
		if cur != nil {
			prev = cur
		}
	}
}

// PostRow is one post joined to its latest snapshot.
type PostRow struct {
	AccountID     string     `json:"account_id"`
	IllustID      int64      `json:"illust_id"`
	Title         *string    `json:"title"`
	CreateDate    time.Time  `json:"create_date"`
	TagsJSON      string     `json:"tags_json"`
	Type          *string    `json:"type"`
	PageCount     *int       `json:"page_count"`
	XRestrict     *int       `json:"x_restrict"`
	CapturedAt    *time.Time `json:"captured_at"`
	BookmarkCount *int64     `json:"bookmark_count"`
	BookmarkRate  *float64   `json:"bookmark_rate"`
	LikeCount     *int64     `json:"like_count"`
	ViewCount     *int64     `json:"view_count"`
	CommentCount  *int64     `json:"comment_count"`
	SourceMode    *string    `json:"source_mode"`
}

// PostsWithLatestSnapshot returns posts for an account (or "ALL"), newest
// first, each left-joined to its most recent snapshot. Rows collected before
// bookmark_rate was stored fall back to bookmark_count / view_count.
func (h *DashboardHandler) PostsWithLatestSnapshot(c *gin.Context) {
	accountID := c.Param("id")
	postType := c.DefaultQuery("type", "ALL")
	limit := intQuery(c, "limit", 200)

	where := ""
	args := []any{}
	if accountID != "ALL" {
		where = "WHERE p.account_id = ?"
		args = append(args, accountID)
	}
	if postType != "ALL" {
		if where == "" {
			where = "WHERE p.type = ?"
		} else {
			where += " AND p.type = ?"
		}
		args = append(args, postType)
	}
	args = append(args, limit)

	query := `
		WITH ranked_snapshots AS (
			SELECT
				ps.*,
				ROW_NUMBER() OVER (
					PARTITION BY ps.account_id, ps.illust_id
					ORDER BY ps.captured_at DESC, ps.source_mode DESC
				) AS rn
			FROM post_snapshots ps
		)
		SELECT
			p.account_id,
			p.illust_id,
			p.title,
			p.create_date,
			p.tags_json,
			p.type,
			p.page_count,
			p.x_restrict,
			rs.captured_at,
			rs.bookmark_count,
			CASE
				WHEN rs.bookmark_rate IS NOT NULL THEN rs.bookmark_rate
				WHEN rs.view_count > 0 THEN (1.0 * rs.bookmark_count / rs.view_count)
				ELSE NULL
			END AS bookmark_rate,
			rs.like_count,
			rs.view_count,
			rs.comment_count,
			rs.source_mode
		FROM posts p
		LEFT JOIN ranked_snapshots rs
			ON p.account_id = rs.account_id
			AND p.illust_id = rs.illust_id
			AND rs.rn = 1
		` + where + `
		ORDER BY p.create_date DESC
		LIMIT ?`

	var rows []PostRow
	if err := h.db.Raw(query, args...).Scan(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}

// SnapshotRow is one point of a post's growth curve.
type SnapshotRow struct {
	AccountID     string    `json:"account_id"`
	IllustID      int64     `json:"illust_id"`
	CapturedAt    time.Time `json:"captured_at"`
	BookmarkCount *int64    `json:"bookmark_count"`
	BookmarkRate  *float64  `json:"bookmark_rate"`
	LikeCount     *int64    `json:"like_count"`
	ViewCount     *int64    `json:"view_count"`
	CommentCount  *int64    `json:"comment_count"`
	SourceMode    string    `json:"source_mode"`
	CreateDate    time.Time `json:"create_date"`
	Title         *string   `json:"title"`
}

// PostSnapshots returns the full snapshot series for one post, ascending.
func (h *DashboardHandler) PostSnapshots(c *gin.Context) {
	accountID := c.Param("id")
	illustID, err := strconv.ParseInt(c.Param("illustID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid illust id"})
		return
	}

	var rows []SnapshotRow
	err = h.db.Raw(`
		SELECT
			ps.account_id,
			ps.illust_id,
			ps.captured_at,
			ps.bookmark_count,
			CASE
				WHEN ps.bookmark_rate IS NOT NULL THEN ps.bookmark_rate
				WHEN ps.view_count > 0 THEN (1.0 * ps.bookmark_count / ps.view_count)
				ELSE NULL
			END AS bookmark_rate,
			ps.like_count,
			ps.view_count,
			ps.comment_count,
			ps.source_mode,
			p.create_date,
			p.title
		FROM post_snapshots ps
		JOIN posts p
		  ON p.account_id = ps.account_id
		 AND p.illust_id = ps.illust_id
		WHERE ps.account_id = ? AND ps.illust_id = ?
		ORDER BY ps.captured_at ASC`, accountID, illustID).Scan(&rows).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}

// benchmark metric names to their snapshot columns. Anything else falls back
// to bookmark_count.
var benchmarkMetrics = map[string]string{
	"bookmark_count": "ps.bookmark_count",
	"view_count":     "ps.view_count",
	"like_count":     "ps.like_count",
	"comment_count":  "ps.comment_count",
}

// BenchmarkRow ranks one post's snapshot nearest a target elapsed time.
type BenchmarkRow struct {
	AccountID           string    `json:"account_id"`
	IllustID            int64     `json:"illust_id"`
	Title               *string   `json:"title"`
	TagsJSON            string    `json:"tags_json"`
	CreateDate          time.Time `json:"create_date"`
	Type                *string   `json:"type"`
	CapturedAt          time.Time `json:"captured_at"`
	ElapsedHours        float64   `json:"elapsed_hours"`
	MetricValue         float64   `json:"metric_value"`
	BookmarkCount       *int64    `json:"bookmark_count"`
	BookmarkRate        *float64  `json:"bookmark_rate"`
	ViewCount           *int64    `json:"view_count"`
	LikeCount           *int64    `json:"like_count"`
	CommentCount        *int64    `json:"comment_count"`
	MetricPerHourTarget *float64  `json:"metric_per_hour_target"`
	MetricPerHourActual *float64  `json:"metric_per_hour_actual"`
	TargetDiffHours     float64   `json:"target_diff_hours"`
}

// GrowthBenchmark picks, per post, the snapshot whose elapsed time since the
// post's creation is closest to target_hours (within tolerance_hours) and
// ranks posts by metric-per-target-hour.
func (h *DashboardHandler) GrowthBenchmark(c *gin.Context) {
	accountID := c.DefaultQuery("account", "ALL")
	postType := c.DefaultQuery("type", "ALL")
	metricCol, ok := benchmarkMetrics[c.DefaultQuery("metric", "bookmark_count")]
	if !ok {
		metricCol = benchmarkMetrics["bookmark_count"]
	}
	targetHours, err := strconv.ParseFloat(c.DefaultQuery("target_hours", "24"), 64)
	if err != nil || targetHours <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid target_hours"})
		return
	}
	toleranceHours, err := strconv.ParseFloat(c.DefaultQuery("tolerance_hours", "6"), 64)
	if err != nil || toleranceHours < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tolerance_hours"})
		return
	}
	limit := intQuery(c, "limit", 300)

	where := "WHERE " + metricCol + " IS NOT NULL"
	args := []any{}
	if accountID != "ALL" {
		where += " AND p.account_id = ?"
		args = append(args, accountID)
	}
	if postType != "ALL" {
		where += " AND p.type = ?"
		args = append(args, postType)
	}

	query := `
		WITH base AS (
			SELECT
				p.account_id,
				p.illust_id,
				p.title,
				p.tags_json,
				p.create_date,
				p.type,
				ps.captured_at,
				ps.bookmark_count,
				CASE
					WHEN ps.bookmark_rate IS NOT NULL THEN ps.bookmark_rate
					WHEN ps.view_count > 0 THEN (1.0 * ps.bookmark_count / ps.view_count)
					ELSE NULL
				END AS bookmark_rate,
				ps.like_count,
				ps.view_count,
				ps.comment_count,
				((julianday(ps.captured_at) - julianday(p.create_date)) * 24.0) AS elapsed_hours,
				` + metricCol + ` AS metric_value
			FROM posts p
			JOIN post_snapshots ps
			  ON p.account_id = ps.account_id
			 AND p.illust_id = ps.illust_id
			` + where + `
		),
		ranked AS (
			SELECT
				*,
				ROW_NUMBER() OVER (
					PARTITION BY account_id, illust_id
					ORDER BY
						ABS(elapsed_hours - ?) ASC,
						CASE WHEN elapsed_hours >= ? THEN 0 ELSE 1 END
				) AS rn
			FROM base
			WHERE
				elapsed_hours >= 0
				AND ABS(elapsed_hours - ?) <= ?
		)
		SELECT
			account_id,
			illust_id,
			title,
			tags_json,
			create_date,
			type,
			captured_at,
			elapsed_hours,
			metric_value,
			bookmark_count,
			bookmark_rate,
			view_count,
			like_count,
			comment_count,
			(metric_value / ?) AS metric_per_hour_target,
			CASE
				WHEN elapsed_hours > 0 THEN (metric_value / elapsed_hours)
				ELSE NULL
			END AS metric_per_hour_actual,
			ABS(elapsed_hours - ?) AS target_diff_hours
		FROM ranked
		WHERE rn = 1
		ORDER BY metric_per_hour_target DESC
		LIMIT ?`

	args = append(args, targetHours, targetHours, targetHours, toleranceHours, targetHours, targetHours, limit)

	var rows []BenchmarkRow
	if err := h.db.Raw(query, args...).Scan(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func intQuery(c *gin.Context, key string, defaultValue int) int {
	raw := c.Query(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}
