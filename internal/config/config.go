// Package config loads collector settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Account is one tracked creator credential from the accounts payload.
type Account struct {
	AccountID    string `json:"account_id"`
	PixivUserID  int64  `json:"pixiv_user_id"`
	RefreshToken string `json:"refresh_token"`
}

// Settings holds every knob the collector and dashboard read.
type Settings struct {
	Accounts             []Account
	DBPath               string
	EnableHourly         bool
	SnapshotRecentHours  int
	UserIllustsMaxPages  int
	MaxDetailsPerAccount int
	APIMinInterval       time.Duration
	APIJitter            time.Duration
}

// Load reads settings from the environment. The accounts payload is required
// and validated up front: a collection run must never start with a broken
// credential set.
func Load() (*Settings, error) {
	loadDotenv()

	raw := strings.TrimSpace(os.Getenv("PIXIV_ACCOUNTS_JSON"))
	if raw == "" {
		return nil, errors.New("PIXIV_ACCOUNTS_JSON is required")
	}

	var accounts []Account
	if err := json.Unmarshal([]byte(raw), &accounts); err != nil {
		return nil, fmt.Errorf("PIXIV_ACCOUNTS_JSON is not a valid JSON payload: %w", err)
	}
	if len(accounts) == 0 {
		return nil, errors.New("PIXIV_ACCOUNTS_JSON contains no accounts")
	}
	for i, a := range accounts {
		if a.AccountID == "" {
			return nil, fmt.Errorf("account %d: account_id is required", i)
		}
		if a.PixivUserID <= 0 {
			return nil, fmt.Errorf("account %q: pixiv_user_id is required", a.AccountID)
		}
		if a.RefreshToken == "" {
			return nil, fmt.Errorf("account %q: refresh_token is required", a.AccountID)
		}
	}

	return &Settings{
		Accounts:             accounts,
		DBPath:               DBPath(),
		EnableHourly:         parseBool(os.Getenv("ENABLE_HOURLY"), false),
		SnapshotRecentHours:  intEnv("SNAPSHOT_RECENT_HOURS", 24),
		UserIllustsMaxPages:  intEnv("USER_ILLUSTS_MAX_PAGES", 3),
		MaxDetailsPerAccount: intEnv("MAX_DETAILS_PER_ACCOUNT", 20),
		APIMinInterval:       durationEnv("API_MIN_INTERVAL_SEC", 1.0),
		APIJitter:            durationEnv("API_JITTER_SEC", 0.3),
	}, nil
}

// DBPath returns the sqlite database path. Exposed separately because the
// dashboard server needs it without requiring collector credentials.
func DBPath() string {
	return getEnv("DB_PATH", "data/pixiv_stats.db")
}

func loadDotenv() {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil {
		log.Println("No .env file found, using environment variables")
	}
}

// LoadDotenv seeds the environment from the configured .env file without
// requiring the full collector settings to be present.
func LoadDotenv() {
	loadDotenv()
}

func parseBool(raw string, defaultValue bool) bool {
	if raw == "" {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func intEnv(key string, defaultValue int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Invalid %s=%q, using default %d", key, raw, defaultValue)
		return defaultValue
	}
	return n
}

func durationEnv(key string, defaultSeconds float64) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	seconds := defaultSeconds
	if raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			log.Printf("Invalid %s=%q, using default %gs", key, raw, defaultSeconds)
		} else {
			seconds = f
		}
	}
	if seconds < 0 {
		seconds = 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
