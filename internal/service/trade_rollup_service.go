package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/account-rollup/internal/errors"
	"github.com/account-rollup/internal/models"
	"github.com/account-rollup/internal/period"
	"github.com/account-rollup/internal/rollup"
	"github.com/account-rollup/internal/types"
)

// TradeStore exposes the trade facts the engine reads.
type TradeStore interface {
	GetActiveSince(ctx context.Context, accountID string, closedOnOrAfter time.Time) ([]*models.Trade, error)
}

// TradeSnapshotStore is the persistence contract for trade gain
// snapshots.
type TradeSnapshotStore interface {
	GetByKey(ctx context.Context, accountID, tradeID string, periodType types.RollupPeriodType, periodEnd time.Time) (*models.TradeGainSnapshot, error)
	Upsert(ctx context.Context, snapshot *models.TradeGainSnapshot) error
}

// TradeRollupService snapshots per-trade gains for daily, weekly, and
// monthly periods. It covers all open trades plus trades closed since
// the last completed daily period, so a trade's final snapshots land on
// the day it closes.
type TradeRollupService struct {
	tradeRepo    TradeStore
	snapshotRepo TradeSnapshotStore
	clock        types.Clock
}

// NewTradeRollupService creates a new trade rollup service
func NewTradeRollupService(tradeRepo TradeStore, snapshotRepo TradeSnapshotStore) *TradeRollupService {
	return &TradeRollupService{
		tradeRepo:    tradeRepo,
		snapshotRepo: snapshotRepo,
		clock:        types.RealClock{},
	}
}

// WithClock overrides the clock for simulated or test runs.
func (s *TradeRollupService) WithClock(clock types.Clock) *TradeRollupService {
	s.clock = clock
	return s
}

// MarkTrades writes current-period gain snapshots for every active
// trade on the account. Per-trade failures are logged and do not stop
// the rest of the account's trades; the first error is returned after
// all trades have been attempted.
func (s *TradeRollupService) MarkTrades(ctx context.Context, accountID string) error {
	if accountID == "" {
		return errors.NewMissingAccountIDError()
	}

	cache := period.BuildPeriodCache(s.clock.Now())

	trades, err := s.tradeRepo.GetActiveSince(ctx, accountID, cache.LastCompletedDailyEnd())
	if err != nil {
		return fmt.Errorf("failed to load active trades for account %s: %w", accountID, err)
	}
	if len(trades) == 0 {
		return nil
	}

	var firstErr error
	marked := 0
	for _, trade := range trades {
		if err := s.markTrade(ctx, trade, cache); err != nil {
			log.Printf("[TradeRollup] Trade %s on account %s failed: %v", trade.ID, accountID, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		marked++
	}

	log.Printf("[TradeRollup] Account %s: marked %d/%d trades", accountID, marked, len(trades))
	return firstErr
}

func (s *TradeRollupService) markTrade(ctx context.Context, trade *models.Trade, cache *period.Cache) error {
	for _, periodType := range types.AllPeriodTypes {
		current := cache.Current[periodType]
		previous := cache.Previous[periodType]

		existing, err := s.snapshotRepo.GetByKey(ctx, trade.AccountID, trade.ID, periodType, current.End)
		if err != nil {
			return fmt.Errorf("failed to load %s trade snapshot: %w", periodType, err)
		}
		prior, err := s.snapshotRepo.GetByKey(ctx, trade.AccountID, trade.ID, periodType, previous.End)
		if err != nil {
			return fmt.Errorf("failed to load prior %s trade snapshot: %w", periodType, err)
		}

		snapshot, err := rollup.ComputeTradeSnapshot(rollup.TradeComputeInput{
			Trade:      trade,
			PeriodType: periodType,
			Period:     current,
			Existing:   existing,
			Previous:   prior,
		})
		if err != nil {
			return err
		}

		if err := s.snapshotRepo.Upsert(ctx, snapshot); err != nil {
			return fmt.Errorf("failed to upsert %s trade snapshot: %w", periodType, err)
		}
	}
	return nil
}
