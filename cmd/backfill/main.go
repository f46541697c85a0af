// Package main provides the one-shot backfill CLI: it recomputes
// snapshot history for one account or all accounts and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/account-rollup/internal/config"
	"github.com/account-rollup/internal/period"
	"github.com/account-rollup/internal/service"
	"github.com/account-rollup/internal/storage"
	"github.com/account-rollup/internal/types"
)

func main() {
	var (
		accountID = flag.String("account", "", "Account to backfill (empty = all accounts)")
		startDate = flag.String("start", "", "Recompute from this date, YYYY-MM-DD (empty = full history)")
		simulated = flag.Bool("simulated", false, "Fold transfers into balances (no broker feed)")
		asOfDate  = flag.String("as-of", "", "Fixed processing date, YYYY-MM-DD (empty = now)")
	)
	flag.Parse()

	fmt.Println("Account Rollup Backfill")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	var from *time.Time
	if *startDate != "" {
		parsed, err := time.Parse("2006-01-02", *startDate)
		if err != nil {
			log.Fatalf("Invalid -start date %q: %v", *startDate, err)
		}
		parsed = parsed.UTC()
		from = &parsed
	}

	log.Println("Connecting to Postgres...")
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer postgres.Close()

	snapshotRepo := storage.NewBalanceSnapshotRepository(postgres.Pool())
	accountRepo := storage.NewAccountRepository(postgres.Pool())
	orderRepo := storage.NewOrderRepository(postgres.Pool())
	backfillJobRepo := storage.NewBackfillJobRepository(postgres.Pool())

	backfillService := service.NewBackfillService(snapshotRepo, accountRepo, orderRepo).
		WithJobStore(backfillJobRepo).
		WithSimulation(*simulated)

	if *asOfDate != "" {
		asOf, err := time.Parse("2006-01-02", *asOfDate)
		if err != nil {
			log.Fatalf("Invalid -as-of date %q: %v", *asOfDate, err)
		}
		// Anchor mid-day in the market timezone so the instant resolves
		// to the intended trading date.
		backfillService.WithClock(types.FixedClock{
			Instant: time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 12, 0, 0, 0, period.MarketTimezone),
		})
	}

	ctx := context.Background()

	if *accountID == "" {
		log.Println("Backfilling all accounts...")
		if err := backfillService.BackfillAll(ctx, from); err != nil {
			log.Fatalf("Backfill failed: %v", err)
		}
		log.Println("Backfill completed")
		return
	}

	account, err := accountRepo.GetByID(ctx, *accountID)
	if err != nil {
		log.Fatalf("Failed to load account %s: %v", *accountID, err)
	}
	if account == nil {
		log.Fatalf("Account %s not found", *accountID)
	}

	log.Printf("Backfilling account %s...", account.ID)
	if err := backfillService.BackfillAccount(ctx, account, from); err != nil {
		log.Fatalf("Backfill failed: %v", err)
	}
	log.Println("Backfill completed")
}
