package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/account-rollup/internal/errors"
	"github.com/account-rollup/internal/models"
	"github.com/account-rollup/internal/period"
	"github.com/account-rollup/internal/types"
)

func openTestTrade(id string) *models.Trade {
	return &models.Trade{
		ID:             id,
		AccountID:      "acct-1",
		Symbol:         "AAPL",
		OpenedAt:       time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		TotalGain:      decimal.NewFromInt(150),
		CurrentValue:   types.DecimalPtr(decimal.NewFromInt(1150)),
		CurrentCost:    types.DecimalPtr(decimal.NewFromInt(1000)),
		CurrentPrice:   types.DecimalPtr(decimal.NewFromInt(115)),
		OpenQuantity:   types.DecimalPtr(decimal.NewFromInt(10)),
		RealizedGain:   types.DecimalPtr(decimal.NewFromInt(50)),
		UnrealizedGain: types.DecimalPtr(decimal.NewFromInt(100)),
	}
}

func TestMarkTradesWritesAllPeriods(t *testing.T) {
	trades := &mockTradeRepo{trades: []*models.Trade{openTestTrade("trade-1")}}
	repo := newMockTradeSnapshotRepo()
	svc := NewTradeRollupService(trades, repo).
		WithClock(types.FixedClock{Instant: markInstant})

	if err := svc.MarkTrades(context.Background(), "acct-1"); err != nil {
		t.Fatalf("MarkTrades failed: %v", err)
	}

	cache := period.BuildPeriodCache(markInstant)
	for _, pt := range types.AllPeriodTypes {
		snap, _ := repo.GetByKey(context.Background(), "acct-1", "trade-1", pt, cache.Current[pt].End)
		if snap == nil {
			t.Fatalf("expected a %s trade snapshot", pt)
		}
		if !snap.TotalGain.Equal(decimal.NewFromInt(150)) {
			t.Errorf("%s: expected total gain 150, got %s", pt, snap.TotalGain)
		}
		if !snap.PeriodGain.IsZero() {
			t.Errorf("%s: expected zero period gain with no prior snapshot, got %s", pt, snap.PeriodGain)
		}
		if snap.TotalGainPct == nil || !snap.TotalGainPct.Equal(decimal.RequireFromString("0.15")) {
			t.Errorf("%s: expected total gain pct 0.15, got %v", pt, snap.TotalGainPct)
		}
		if snap.CurrentPriceAtPeriodEnd == nil || !snap.CurrentPriceAtPeriodEnd.Equal(decimal.NewFromInt(115)) {
			t.Errorf("%s: expected price snapshotted at 115, got %v", pt, snap.CurrentPriceAtPeriodEnd)
		}
	}
}

func TestMarkTradesPeriodGainFromPrior(t *testing.T) {
	trades := &mockTradeRepo{trades: []*models.Trade{openTestTrade("trade-1")}}
	repo := newMockTradeSnapshotRepo()
	svc := NewTradeRollupService(trades, repo).
		WithClock(types.FixedClock{Instant: markInstant})

	cache := period.BuildPeriodCache(markInstant)
	prevDaily := cache.Previous[types.PeriodDaily]
	repo.Upsert(context.Background(), &models.TradeGainSnapshot{
		AccountID:    "acct-1",
		TradeID:      "trade-1",
		PeriodType:   types.PeriodDaily,
		PeriodStart:  prevDaily.Start,
		PeriodEnd:    prevDaily.End,
		TotalGain:    decimal.NewFromInt(100),
		CurrentValue: types.DecimalPtr(decimal.NewFromInt(1100)),
	})

	if err := svc.MarkTrades(context.Background(), "acct-1"); err != nil {
		t.Fatalf("MarkTrades failed: %v", err)
	}

	snap, _ := repo.GetByKey(context.Background(), "acct-1", "trade-1", types.PeriodDaily, cache.Current[types.PeriodDaily].End)
	if !snap.PeriodGain.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected period gain 50 over the prior snapshot, got %s", snap.PeriodGain)
	}
	// Gain is relative to the prior period's value, not the current one.
	if !snap.PeriodGainPct.Equal(decimal.NewFromInt(50).DivRound(decimal.NewFromInt(1100), 6)) {
		t.Errorf("expected period gain pct against prior value 1100, got %s", snap.PeriodGainPct)
	}
}

func TestMarkTradesIncludesRecentlyClosed(t *testing.T) {
	closed := openTestTrade("trade-closed")
	closed.ClosedAt = types.TimePtr(markInstant)
	closed.CurrentPrice = nil
	closed.OpenQuantity = nil
	old := openTestTrade("trade-old")
	old.ClosedAt = types.TimePtr(time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC))

	trades := &mockTradeRepo{trades: []*models.Trade{closed, old}}
	repo := newMockTradeSnapshotRepo()
	svc := NewTradeRollupService(trades, repo).
		WithClock(types.FixedClock{Instant: markInstant})

	if err := svc.MarkTrades(context.Background(), "acct-1"); err != nil {
		t.Fatalf("MarkTrades failed: %v", err)
	}

	cache := period.BuildPeriodCache(markInstant)
	dailyEnd := cache.Current[types.PeriodDaily].End
	if snap, _ := repo.GetByKey(context.Background(), "acct-1", "trade-closed", types.PeriodDaily, dailyEnd); snap == nil {
		t.Error("expected a snapshot for the trade closed today")
	} else if snap.CurrentPriceAtPeriodEnd != nil {
		t.Error("expected price nulled on a closed trade")
	}
	if snap, _ := repo.GetByKey(context.Background(), "acct-1", "trade-old", types.PeriodDaily, dailyEnd); snap != nil {
		t.Error("expected no snapshot for a trade closed before the current periods")
	}
}

func TestMarkTradesContinuesPastFailure(t *testing.T) {
	// An invalid trade fails validation; the valid one must still be
	// marked and the first error surfaced.
	bad := openTestTrade("")
	good := openTestTrade("trade-2")
	trades := &mockTradeRepo{trades: []*models.Trade{bad, good}}
	repo := newMockTradeSnapshotRepo()
	svc := NewTradeRollupService(trades, repo).
		WithClock(types.FixedClock{Instant: markInstant})

	err := svc.MarkTrades(context.Background(), "acct-1")
	if err == nil {
		t.Fatal("expected the invalid trade's error to surface")
	}
	if !errors.IsFatal(err) {
		t.Errorf("expected a fatal validation error, got %v", err)
	}

	cache := period.BuildPeriodCache(markInstant)
	snap, _ := repo.GetByKey(context.Background(), "acct-1", "trade-2", types.PeriodDaily, cache.Current[types.PeriodDaily].End)
	if snap == nil {
		t.Error("expected the valid trade to be marked despite the failure")
	}
}

func TestMarkTradesMissingAccountID(t *testing.T) {
	svc := NewTradeRollupService(&mockTradeRepo{}, newMockTradeSnapshotRepo())

	err := svc.MarkTrades(context.Background(), "")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.IsFatal(err) {
		t.Errorf("expected a fatal validation error, got %v", err)
	}
}
