package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pixiv-stats/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	h := NewDashboardHandler(db)
	r := gin.New()
	r.GET("/health", h.HealthCheck)
	r.GET("/api/accounts", h.ListAccounts)
	r.GET("/api/accounts/:id/daily", h.AccountDaily)
	r.GET("/api/accounts/:id/posts", h.PostsWithLatestSnapshot)
	r.GET("/api/accounts/:id/posts/:illustID/snapshots", h.PostSnapshots)
	r.GET("/api/benchmark", h.GrowthBenchmark)
	return r, db
}

func getJSON(t *testing.T, r *gin.Engine, path string, out any) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, "GET %s: %s", path, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func i64p(n int64) *int64     { return &n }
func f64p(f float64) *float64 { return &f }

func TestAccountDailyDeltas(t *testing.T) {
	r, db := setupRouter(t)

	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	rows := []models.AccountDaily{
		{AccountID: "main", Date: "2024-06-01", Followers: i64p(100), CapturedAt: base},
		{AccountID: "main", Date: "2024-06-02", Followers: i64p(105), CapturedAt: base.AddDate(0, 0, 1)},
		{AccountID: "main", Date: "2024-06-03", Followers: i64p(103), CapturedAt: base.AddDate(0, 0, 2)},
	}
	for i := range rows {
		require.NoError(t, db.Create(&rows[i]).Error)
	}

	var out []DailyRow
	getJSON(t, r, "/api/accounts/main/daily", &out)
	require.Len(t, out, 3)

	assert.Equal(t, int64(0), out[0].FollowersDelta)
	assert.Equal(t, int64(5), out[1].FollowersDelta)
	assert.False(t, out[1].IsDecrease)
	assert.Equal(t, int64(-2), out[2].FollowersDelta)
	assert.True(t, out[2].IsDecrease)
}

func TestAccountDailyAllRollup(t *testing.T) {
	r, db := setupRouter(t)

	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&models.AccountDaily{AccountID: "a", Date: "2024-06-01", Followers: i64p(100), CapturedAt: base}).Error)
	require.NoError(t, db.Create(&models.AccountDaily{AccountID: "b", Date: "2024-06-01", Followers: i64p(40), CapturedAt: base}).Error)

	var out []DailyRow
	getJSON(t, r, "/api/accounts/ALL/daily", &out)
	require.Len(t, out, 1)
	assert.Equal(t, "ALL", out[0].AccountID)
	require.NotNil(t, out[0].Followers)
	assert.Equal(t, int64(140), *out[0].Followers)
}

func seedPostWithSnapshots(t *testing.T, db *gorm.DB) time.Time {
	t.Helper()
	created := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	title := "seeded"
	post := models.Post{
		AccountID:  "main",
		IllustID:   10,
		CreateDate: created,
		TagsJSON:   `["tag"]`,
		Title:      &title,
		UpdatedAt:  created,
	}
	require.NoError(t, db.Create(&post).Error)
	return created
}

func TestPostsWithLatestSnapshotPicksNewest(t *testing.T) {
	r, db := setupRouter(t)
	created := seedPostWithSnapshots(t, db)

	older := models.PostSnapshot{
		AccountID: "main", IllustID: 10,
		CapturedAt: created.Add(1 * time.Hour), SourceMode: "daily",
		BookmarkCount: i64p(10), ViewCount: i64p(100), BookmarkRate: f64p(0.1),
	}
	// Newest snapshot has no stored rate: the query must derive it.
	newest := models.PostSnapshot{
		AccountID: "main", IllustID: 10,
		CapturedAt: created.Add(5 * time.Hour), SourceMode: "hourly",
		BookmarkCount: i64p(30), ViewCount: i64p(120),
	}
	require.NoError(t, db.Create(&older).Error)
	require.NoError(t, db.Create(&newest).Error)

	var out []PostRow
	getJSON(t, r, "/api/accounts/main/posts", &out)
	require.Len(t, out, 1)

	require.NotNil(t, out[0].BookmarkCount)
	assert.Equal(t, int64(30), *out[0].BookmarkCount)
	require.NotNil(t, out[0].BookmarkRate)
	assert.InDelta(t, 0.25, *out[0].BookmarkRate, 1e-9)
	require.NotNil(t, out[0].SourceMode)
	assert.Equal(t, "hourly", *out[0].SourceMode)
}

func TestPostsWithoutSnapshotsStillListed(t *testing.T) {
	r, db := setupRouter(t)
	seedPostWithSnapshots(t, db)

	var out []PostRow
	getJSON(t, r, "/api/accounts/main/posts", &out)
	require.Len(t, out, 1)
	assert.Nil(t, out[0].CapturedAt)
	assert.Nil(t, out[0].BookmarkRate)
}

func TestPostSnapshotSeriesAscending(t *testing.T) {
	r, db := setupRouter(t)
	created := seedPostWithSnapshots(t, db)

	for i, hours := range []int{5, 1, 3} {
		snap := models.PostSnapshot{
			AccountID: "main", IllustID: 10,
			CapturedAt: created.Add(time.Duration(hours) * time.Hour), SourceMode: "hourly",
			BookmarkCount: i64p(int64(i)),
		}
		require.NoError(t, db.Create(&snap).Error)
	}

	var out []SnapshotRow
	getJSON(t, r, "/api/accounts/main/posts/10/snapshots", &out)
	require.Len(t, out, 3)
	assert.True(t, out[0].CapturedAt.Before(out[1].CapturedAt))
	assert.True(t, out[1].CapturedAt.Before(out[2].CapturedAt))
}

func TestGrowthBenchmarkPicksClosestToTarget(t *testing.T) {
	r, db := setupRouter(t)
	created := seedPostWithSnapshots(t, db)

	for _, s := range []struct {
		hours     int
		bookmarks int64
	}{
		{10, 100},
		{23, 230}, // closest to the 24h target
		{30, 300}, // within tolerance but further away
	} {
		snap := models.PostSnapshot{
			AccountID: "main", IllustID: 10,
			CapturedAt: created.Add(time.Duration(s.hours) * time.Hour), SourceMode: "daily",
			BookmarkCount: i64p(s.bookmarks), ViewCount: i64p(1000),
		}
		require.NoError(t, db.Create(&snap).Error)
	}

	var out []BenchmarkRow
	getJSON(t, r, "/api/benchmark?account=main&metric=bookmark_count&target_hours=24&tolerance_hours=6", &out)
	require.Len(t, out, 1)

	assert.Equal(t, int64(10), out[0].IllustID)
	assert.InDelta(t, 23.0, out[0].ElapsedHours, 0.01)
	assert.InDelta(t, 230.0, out[0].MetricValue, 0.01)
	require.NotNil(t, out[0].MetricPerHourTarget)
	assert.InDelta(t, 230.0/24.0, *out[0].MetricPerHourTarget, 0.01)
}

func TestGrowthBenchmarkInvalidTarget(t *testing.T) {
	r, _ := setupRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/benchmark?target_hours=nope", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAccounts(t *testing.T) {
	r, db := setupRouter(t)
	for _, id := range []string{"beta", "alpha"} {
		require.NoError(t, db.Create(&models.Account{AccountID: id, PixivUserID: 1, UpdatedAt: time.Now().UTC()}).Error)
	}

	var out []models.Account
	getJSON(t, r, "/api/accounts", &out)
	require.Len(t, out, 2)
	assert.Equal(t, "alpha", out[0].AccountID)
}

func TestHealthCheck(t *testing.T) {
	r, _ := setupRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}
