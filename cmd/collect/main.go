package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"pixiv-stats/internal/collector"
	"pixiv-stats/internal/config"
	"pixiv-stats/internal/database"
	"pixiv-stats/internal/models"
	"pixiv-stats/internal/pixiv"
	"pixiv-stats/internal/store"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func main() {
	os.Exit(run())
}

func run() int {
	mode := flag.String("mode", "", "Collector mode: daily, hourly, or manual")
	accountID := flag.String("account", "", "Optional single account_id to run")
	flag.Parse()

	switch *mode {
	case "daily", "hourly", "manual":
	default:
		log.Printf("invalid --mode %q (want daily, hourly, or manual)", *mode)
		return 1
	}

	settings, err := config.Load()
	if err != nil {
		log.Printf("configuration error: %v", err)
		return 1
	}

	selected := settings.Accounts
	if *accountID != "" {
		selected = nil
		for _, a := range settings.Accounts {
			if a.AccountID == *accountID {
				selected = append(selected, a)
			}
		}
		if len(selected) == 0 {
			log.Printf("account_id not found: %s", *accountID)
			return 1
		}
	}

	db, err := database.Connect(settings.DBPath)
	if err != nil {
		log.Printf("database error: %v", err)
		return 1
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		log.Printf("migration error: %v", err)
		return 1
	}

	if *mode == "hourly" && !settings.EnableHourly {
		log.Println("Hourly job is disabled by ENABLE_HOURLY=false. Skipping.")
		return 0
	}

	// All writes for the run share one transaction, committed at the end.
	tx := db.Begin()
	if tx.Error != nil {
		log.Printf("begin transaction: %v", tx.Error)
		return 1
	}

	st := store.New(tx)
	coll := collector.New(st, collector.Options{
		RecentHours:          settings.SnapshotRecentHours,
		MaxPages:             settings.UserIllustsMaxPages,
		MaxDetailsPerAccount: settings.MaxDetailsPerAccount,
	})

	ctx := context.Background()
	for _, account := range selected {
		startedAt := time.Now().UTC()
		snapshots, err := collectAccount(ctx, st, coll, account, *mode, settings)
		if err != nil {
			tx.Rollback()
			recordFailedRun(db, account.AccountID, *mode, startedAt, err)
			log.Printf("[%s] collection failed: %v", account.AccountID, err)
			return 1
		}

		finishedAt := time.Now().UTC()
		runErr := st.RecordRun(&models.CollectorRun{
			ID:            uuid.New(),
			AccountID:     account.AccountID,
			Mode:          *mode,
			StartedAt:     startedAt,
			FinishedAt:    &finishedAt,
			SnapshotCount: snapshots,
		})
		if runErr != nil {
			tx.Rollback()
			log.Printf("[%s] collection failed: %v", account.AccountID, runErr)
			return 1
		}

		if *mode == "hourly" {
			log.Printf("[%s] hourly snapshots: %d", account.AccountID, snapshots)
		} else {
			log.Printf("[%s] %s collection done (%d snapshots).", account.AccountID, *mode, snapshots)
		}
	}

	if err := tx.Commit().Error; err != nil {
		log.Printf("commit failed: %v", err)
		return 1
	}
	return 0
}

// collectAccount runs one account's collection for the given mode and
// returns the number of snapshots collected.
func collectAccount(ctx context.Context, st *store.Store, coll *collector.Collector, account config.Account, mode string, settings *config.Settings) (int, error) {
	if err := st.UpsertAccount(account.AccountID, account.PixivUserID); err != nil {
		return 0, err
	}

	// One client per credential: pacing state must not be shared across
	// accounts.
	client, err := pixiv.NewClient(ctx, account.RefreshToken, pixiv.Options{
		MinInterval: settings.APIMinInterval,
		Jitter:      settings.APIJitter,
	})
	if err != nil {
		return 0, err
	}

	switch mode {
	case "daily", "manual":
		if err := coll.CollectAccountDaily(ctx, client, account.AccountID, account.PixivUserID); err != nil {
			return 0, err
		}
		return coll.SyncPosts(ctx, client, account.AccountID, account.PixivUserID, mode)
	case "hourly":
		return coll.CollectRecentSnapshots(ctx, client, account.AccountID, "hourly")
	default:
		return 0, fmt.Errorf("unknown mode %q", mode)
	}
}

// recordFailedRun writes a failure audit row outside the rolled-back
// transaction so the outcome survives.
func recordFailedRun(db *gorm.DB, accountID, mode string, startedAt time.Time, runErr error) {
	finishedAt := time.Now().UTC()
	failed := models.CollectorRun{
		ID:         uuid.New(),
		AccountID:  accountID,
		Mode:       mode,
		StartedAt:  startedAt,
		FinishedAt: &finishedAt,
		Error:      runErr.Error(),
	}
	if err := store.New(db).RecordRun(&failed); err != nil {
		log.Printf("failed to record run outcome: %v", err)
	}
}
