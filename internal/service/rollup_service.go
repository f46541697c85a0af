// Package service contains the orchestrators that drive the rollup
// calculators against storage: the current-day mark, historical
// backfill, per-trade rollup, transfer ledger merge, and the refresh
// pipeline tying them together.
package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/account-rollup/internal/errors"
	"github.com/account-rollup/internal/models"
	"github.com/account-rollup/internal/period"
	"github.com/account-rollup/internal/rollup"
	"github.com/account-rollup/internal/types"
)

// BalanceSnapshotStore is the persistence contract for account balance
// snapshots.
type BalanceSnapshotStore interface {
	GetByKey(ctx context.Context, accountID string, periodType types.RollupPeriodType, periodEnd time.Time) (*models.AccountBalanceSnapshot, error)
	GetPrior(ctx context.Context, accountID string, periodType types.RollupPeriodType, before time.Time) (*models.AccountBalanceSnapshot, error)
	GetRange(ctx context.Context, accountID string, periodType types.RollupPeriodType, from, to time.Time) ([]*models.AccountBalanceSnapshot, error)
	GetAllFrom(ctx context.Context, accountID string, periodType types.RollupPeriodType, from *time.Time) ([]*models.AccountBalanceSnapshot, error)
	GetLatestTwo(ctx context.Context, accountID string, periodType types.RollupPeriodType) (latest, previous *models.AccountBalanceSnapshot, err error)
	Upsert(ctx context.Context, snapshot *models.AccountBalanceSnapshot) error
}

// AccountStore is the persistence contract for account records.
type AccountStore interface {
	List(ctx context.Context) ([]*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	UpdateStats(ctx context.Context, account *models.Account) error
}

// OrderStore exposes the order facts the engine reads.
type OrderStore interface {
	CountExecutedOn(ctx context.Context, accountID string, date time.Time) (int, error)
}

// HistoryStore is the chart-history mirror. Optional; a nil store
// disables mirroring.
type HistoryStore interface {
	AppendBalancePoint(ctx context.Context, point *models.BalanceHistoryPoint) error
}

// BalanceProvider reads the live total account value from the broker.
// A nil value with a nil error means the balance is unavailable this
// cycle; the account's rollup is skipped without writes.
type BalanceProvider interface {
	TotalAccountValue(ctx context.Context, account *models.Account) (*decimal.Decimal, error)
}

// RollupService performs the current-day mark: it reads the live broker
// balance and drives the rollup calculator for daily, weekly, and
// monthly periods in that order, then refreshes the account's
// all-time-high statistics.
type RollupService struct {
	snapshotRepo BalanceSnapshotStore
	accountRepo  AccountStore
	orderRepo    OrderStore
	historyRepo  HistoryStore
	broker       BalanceProvider
	clock        types.Clock
	simulated    bool
}

// NewRollupService creates a new rollup service
func NewRollupService(
	snapshotRepo BalanceSnapshotStore,
	accountRepo AccountStore,
	orderRepo OrderStore,
	broker BalanceProvider,
) *RollupService {
	return &RollupService{
		snapshotRepo: snapshotRepo,
		accountRepo:  accountRepo,
		orderRepo:    orderRepo,
		broker:       broker,
		clock:        types.RealClock{},
	}
}

// WithHistoryMirror enables the chart-history mirror. Mirror writes are
// best-effort: a failure is logged and never fails the mark.
func (s *RollupService) WithHistoryMirror(historyRepo HistoryStore) *RollupService {
	s.historyRepo = historyRepo
	return s
}

// WithClock overrides the clock for simulated or test runs.
func (s *RollupService) WithClock(clock types.Clock) *RollupService {
	s.clock = clock
	return s
}

// WithSimulation switches the calculator to simulation mode, where the
// period's transfer is folded into the balance before diffing because
// no independent balance feed reflects it.
func (s *RollupService) WithSimulation(simulated bool) *RollupService {
	s.simulated = simulated
	return s
}

// MarkCurrentDay runs one daily mark for the account. Weekly and
// monthly are computed after daily so their aggregation reads the
// just-updated daily set. An unavailable broker balance skips the
// account for this cycle without writing anything.
func (s *RollupService) MarkCurrentDay(ctx context.Context, account *models.Account) error {
	if account == nil || account.ID == "" {
		return errors.NewMissingAccountIDError()
	}

	balance, err := s.broker.TotalAccountValue(ctx, account)
	if err != nil {
		return errors.NewProviderError(account.Broker, err)
	}
	if balance == nil {
		log.Printf("[Rollup] Balance unavailable for account %s, skipping this cycle", account.ID)
		return nil
	}

	now := s.clock.Now()
	cache := period.BuildPeriodCache(now)
	daily := cache.Current[types.PeriodDaily]
	weekly := cache.Current[types.PeriodWeekly]
	monthly := cache.Current[types.PeriodMonthly]

	// One read covers the daily snapshots both weekly and monthly
	// aggregation will need.
	rangeStart := weekly.Start
	if monthly.Start.Before(rangeStart) {
		rangeStart = monthly.Start
	}
	rangeEnd := monthly.End
	if weekly.End.After(rangeEnd) {
		rangeEnd = weekly.End
	}

	dailies, err := s.snapshotRepo.GetRange(ctx, account.ID, types.PeriodDaily, rangeStart, rangeEnd)
	if err != nil {
		return fmt.Errorf("failed to load daily snapshots for account %s: %w", account.ID, err)
	}

	ordersToday, err := s.orderRepo.CountExecutedOn(ctx, account.ID, daily.End)
	if err != nil {
		return fmt.Errorf("failed to count executed orders for account %s: %w", account.ID, err)
	}

	// Daily first: the weekly and monthly passes below aggregate over
	// the refreshed daily set.
	dailySnap, err := s.computePeriod(ctx, account.ID, types.PeriodDaily, daily, *balance, findByPeriodEnd(dailies, daily.End), nil, ordersToday, now)
	if err != nil {
		return err
	}
	dailies = replaceByPeriodEnd(dailies, dailySnap)

	weeklyDailies := filterByBoundary(dailies, weekly)
	if _, err := s.computePeriod(ctx, account.ID, types.PeriodWeekly, weekly, *balance, nil, weeklyDailies, ordersToday, now); err != nil {
		return err
	}

	monthlyDailies := filterByBoundary(dailies, monthly)
	if _, err := s.computePeriod(ctx, account.ID, types.PeriodMonthly, monthly, *balance, nil, monthlyDailies, ordersToday, now); err != nil {
		return err
	}

	if err := s.updateAccountStats(ctx, account); err != nil {
		return err
	}

	s.mirrorDailyPoint(ctx, dailySnap)

	return nil
}

// computePeriod loads the remaining inputs for one period, runs the
// calculator, and upserts the result. existing may be pre-resolved (the
// daily pass already holds the range in memory); when nil it is fetched
// by key.
func (s *RollupService) computePeriod(
	ctx context.Context,
	accountID string,
	periodType types.RollupPeriodType,
	boundary period.Boundary,
	balance decimal.Decimal,
	existing *models.AccountBalanceSnapshot,
	dailies []*models.AccountBalanceSnapshot,
	ordersToday int,
	now time.Time,
) (*models.AccountBalanceSnapshot, error) {
	var err error
	if existing == nil {
		existing, err = s.snapshotRepo.GetByKey(ctx, accountID, periodType, boundary.End)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s snapshot for account %s: %w", periodType, accountID, err)
		}
	}

	previous, err := s.snapshotRepo.GetPrior(ctx, accountID, periodType, boundary.End)
	if err != nil {
		return nil, fmt.Errorf("failed to load prior %s snapshot for account %s: %w", periodType, accountID, err)
	}

	snapshot, err := rollup.ComputeSnapshot(rollup.ComputeInput{
		AccountID:           accountID,
		PeriodType:          periodType,
		Period:              boundary,
		Balance:             balance,
		Existing:            existing,
		Previous:            previous,
		Dailies:             dailies,
		OrdersExecutedToday: ordersToday,
		Simulated:           s.simulated,
		Now:                 now,
	})
	if err != nil {
		return nil, err
	}

	if err := s.snapshotRepo.Upsert(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to upsert %s snapshot for account %s: %w", periodType, accountID, err)
	}

	return snapshot, nil
}

// updateAccountStats recomputes the all-time-high and drawdown fields
// from the full daily history, bounded by the account's configured
// window start when set.
func (s *RollupService) updateAccountStats(ctx context.Context, account *models.Account) error {
	dailies, err := s.snapshotRepo.GetAllFrom(ctx, account.ID, types.PeriodDaily, account.RollupWindowStart)
	if err != nil {
		return fmt.Errorf("failed to load daily history for account %s: %w", account.ID, err)
	}

	var ath *decimal.Decimal
	var athDate *time.Time
	var lastBalance *decimal.Decimal

	for _, d := range dailies {
		if d.Balance == nil {
			continue
		}
		if ath == nil || d.Balance.GreaterThan(*ath) {
			ath = types.DecimalPtr(*d.Balance)
			athDate = types.TimePtr(d.PeriodEnd)
		}
		lastBalance = d.Balance
	}

	account.AllTimeHigh = ath
	account.AllTimeHighDate = athDate
	account.DrawdownFromATH = nil
	account.DrawdownPctFromATH = nil

	if ath != nil && lastBalance != nil {
		drawdown := ath.Sub(*lastBalance)
		account.DrawdownFromATH = &drawdown
		if !ath.IsZero() {
			account.DrawdownPctFromATH = types.DecimalPtr(drawdown.DivRound(*ath, 6))
		}
	}

	if err := s.accountRepo.UpdateStats(ctx, account); err != nil {
		return fmt.Errorf("failed to update stats for account %s: %w", account.ID, err)
	}

	return nil
}

// mirrorDailyPoint appends the marked daily snapshot to the chart
// history mirror. Best-effort only.
func (s *RollupService) mirrorDailyPoint(ctx context.Context, snapshot *models.AccountBalanceSnapshot) {
	if s.historyRepo == nil || snapshot.Balance == nil {
		return
	}

	point := &models.BalanceHistoryPoint{
		AccountID: snapshot.AccountID,
		Date:      snapshot.PeriodEnd,
		Balance:   *snapshot.Balance,
		Invested:  snapshot.InvestedAmount,
		NetGain:   snapshot.NetGain,
	}
	if err := s.historyRepo.AppendBalancePoint(ctx, point); err != nil {
		log.Printf("[Rollup] Warning: failed to mirror balance point for account %s: %v", snapshot.AccountID, err)
	}
}

// findByPeriodEnd returns the snapshot with the given period end, or nil.
func findByPeriodEnd(snapshots []*models.AccountBalanceSnapshot, periodEnd time.Time) *models.AccountBalanceSnapshot {
	for _, s := range snapshots {
		if s.PeriodEnd.Equal(periodEnd) {
			return s
		}
	}
	return nil
}

// replaceByPeriodEnd swaps the snapshot sharing updated's period end,
// or appends it when absent.
func replaceByPeriodEnd(snapshots []*models.AccountBalanceSnapshot, updated *models.AccountBalanceSnapshot) []*models.AccountBalanceSnapshot {
	for i, s := range snapshots {
		if s.PeriodEnd.Equal(updated.PeriodEnd) {
			snapshots[i] = updated
			return snapshots
		}
	}
	return append(snapshots, updated)
}

// filterByBoundary keeps the snapshots whose period end falls within
// the boundary.
func filterByBoundary(snapshots []*models.AccountBalanceSnapshot, boundary period.Boundary) []*models.AccountBalanceSnapshot {
	var filtered []*models.AccountBalanceSnapshot
	for _, s := range snapshots {
		if boundary.Contains(s.PeriodEnd) {
			filtered = append(filtered, s)
		}
	}
	return filtered
}
