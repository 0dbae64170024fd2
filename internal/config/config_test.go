package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setAccountsEnv(t *testing.T) {
	t.Setenv("ENV_FILE", "nonexistent.env")
	t.Setenv("PIXIV_ACCOUNTS_JSON", `[{"account_id":"main","pixiv_user_id":12345,"refresh_token":"tok"}]`)
}

func TestLoadDefaults(t *testing.T) {
	setAccountsEnv(t)

	settings, err := Load()
	require.NoError(t, err)

	require.Len(t, settings.Accounts, 1)
	assert.Equal(t, "main", settings.Accounts[0].AccountID)
	assert.Equal(t, int64(12345), settings.Accounts[0].PixivUserID)

	assert.Equal(t, "data/pixiv_stats.db", settings.DBPath)
	assert.False(t, settings.EnableHourly)
	assert.Equal(t, 24, settings.SnapshotRecentHours)
	assert.Equal(t, 3, settings.UserIllustsMaxPages)
	assert.Equal(t, 20, settings.MaxDetailsPerAccount)
	assert.Equal(t, time.Second, settings.APIMinInterval)
	assert.Equal(t, 300*time.Millisecond, settings.APIJitter)
}

func TestLoadOverrides(t *testing.T) {
	setAccountsEnv(t)
	t.Setenv("DB_PATH", "/tmp/test.db")
	t.Setenv("ENABLE_HOURLY", "true")
	t.Setenv("SNAPSHOT_RECENT_HOURS", "48")
	t.Setenv("USER_ILLUSTS_MAX_PAGES", "5")
	t.Setenv("MAX_DETAILS_PER_ACCOUNT", "7")
	t.Setenv("API_MIN_INTERVAL_SEC", "0.5")
	t.Setenv("API_JITTER_SEC", "0")

	settings, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/test.db", settings.DBPath)
	assert.True(t, settings.EnableHourly)
	assert.Equal(t, 48, settings.SnapshotRecentHours)
	assert.Equal(t, 5, settings.UserIllustsMaxPages)
	assert.Equal(t, 7, settings.MaxDetailsPerAccount)
	assert.Equal(t, 500*time.Millisecond, settings.APIMinInterval)
	assert.Equal(t, time.Duration(0), settings.APIJitter)
}

func TestLoadMissingAccounts(t *testing.T) {
	t.Setenv("ENV_FILE", "nonexistent.env")
	t.Setenv("PIXIV_ACCOUNTS_JSON", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PIXIV_ACCOUNTS_JSON")
}

func TestLoadInvalidAccounts(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", "not-json"},
		{"empty array", "[]"},
		{"missing account_id", `[{"pixiv_user_id":1,"refresh_token":"t"}]`},
		{"missing user id", `[{"account_id":"a","refresh_token":"t"}]`},
		{"missing token", `[{"account_id":"a","pixiv_user_id":1}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ENV_FILE", "nonexistent.env")
			t.Setenv("PIXIV_ACCOUNTS_JSON", tt.payload)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		raw      string
		expected bool
	}{
		{"1", true},
		{"true", true},
		{"YES", true},
		{"on", true},
		{"0", false},
		{"false", false},
		{"anything", false},
	}

	for _, tt := range tests {
		if got := parseBool(tt.raw, false); got != tt.expected {
			t.Errorf("parseBool(%q) = %v, want %v", tt.raw, got, tt.expected)
		}
	}
	if !parseBool("", true) {
		t.Error("parseBool empty should return the default")
	}
}
