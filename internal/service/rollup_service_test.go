package service

import (
	"context"
	goerrors "errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/account-rollup/internal/errors"
	"github.com/account-rollup/internal/models"
	"github.com/account-rollup/internal/period"
	"github.com/account-rollup/internal/types"
)

// 10:00 New York on Tuesday 2024-03-05.
var markInstant = time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)

func testAccount() *models.Account {
	return &models.Account{ID: "acct-1", Name: "Main", Broker: "gateway"}
}

func newMarkService(repo *mockSnapshotRepo, accounts *mockAccountRepo, orders *mockOrderRepo, broker *mockBroker) *RollupService {
	return NewRollupService(repo, accounts, orders, broker).
		WithClock(types.FixedClock{Instant: markInstant})
}

func TestMarkCurrentDayFirstMark(t *testing.T) {
	repo := newMockSnapshotRepo()
	accounts := newMockAccountRepo(testAccount())
	orders := newMockOrderRepo()
	broker := &mockBroker{balance: types.DecimalPtr(decimal.NewFromInt(10000))}
	svc := newMarkService(repo, accounts, orders, broker)

	if err := svc.MarkCurrentDay(context.Background(), testAccount()); err != nil {
		t.Fatalf("MarkCurrentDay failed: %v", err)
	}

	cache := period.BuildPeriodCache(markInstant)
	for _, pt := range types.AllPeriodTypes {
		snap, _ := repo.GetByKey(context.Background(), "acct-1", pt, cache.Current[pt].End)
		if snap == nil {
			t.Fatalf("expected a %s snapshot", pt)
		}
		if snap.Balance == nil || !snap.Balance.Equal(decimal.NewFromInt(10000)) {
			t.Errorf("%s: expected balance 10000, got %v", pt, snap.Balance)
		}
		if snap.BalanceChangeAmount == nil || !snap.BalanceChangeAmount.IsZero() {
			t.Errorf("%s: expected zero change on first mark, got %v", pt, snap.BalanceChangeAmount)
		}
	}

	updated := accounts.updated["acct-1"]
	if updated == nil {
		t.Fatal("expected account stats to be updated")
	}
	if updated.AllTimeHigh == nil || !updated.AllTimeHigh.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("expected all-time high 10000, got %v", updated.AllTimeHigh)
	}
}

func TestMarkCurrentDayComputesChangeAndGains(t *testing.T) {
	repo := newMockSnapshotRepo()
	accounts := newMockAccountRepo(testAccount())
	orders := newMockOrderRepo()
	broker := &mockBroker{balance: types.DecimalPtr(decimal.NewFromInt(10500))}
	svc := newMarkService(repo, accounts, orders, broker)

	cache := period.BuildPeriodCache(markInstant)
	daily := cache.Current[types.PeriodDaily]
	prior := period.GetPreviousRollupPeriod(types.PeriodDaily, daily.End)
	repo.Upsert(context.Background(), &models.AccountBalanceSnapshot{
		AccountID:      "acct-1",
		PeriodType:     types.PeriodDaily,
		PeriodStart:    prior.Start,
		PeriodEnd:      prior.End,
		Balance:        types.DecimalPtr(decimal.NewFromInt(10000)),
		InvestedAmount: types.DecimalPtr(decimal.NewFromInt(8000)),
	})

	if err := svc.MarkCurrentDay(context.Background(), testAccount()); err != nil {
		t.Fatalf("MarkCurrentDay failed: %v", err)
	}

	snap, _ := repo.GetByKey(context.Background(), "acct-1", types.PeriodDaily, daily.End)
	if snap == nil {
		t.Fatal("expected a daily snapshot")
	}
	if !snap.BalanceChangeAmount.Equal(decimal.NewFromInt(500)) {
		t.Errorf("expected change 500, got %s", snap.BalanceChangeAmount)
	}
	if snap.InvestedAmount == nil || !snap.InvestedAmount.Equal(decimal.NewFromInt(8000)) {
		t.Errorf("expected invested 8000 carried forward, got %v", snap.InvestedAmount)
	}
	if snap.NetGain == nil || !snap.NetGain.Equal(decimal.NewFromInt(2500)) {
		t.Errorf("expected net gain 2500, got %v", snap.NetGain)
	}

	updated := accounts.updated["acct-1"]
	if updated.DrawdownFromATH == nil || !updated.DrawdownFromATH.IsZero() {
		t.Errorf("expected zero drawdown at a new high, got %v", updated.DrawdownFromATH)
	}
}

func TestMarkCurrentDayDrawdown(t *testing.T) {
	repo := newMockSnapshotRepo()
	accounts := newMockAccountRepo(testAccount())
	orders := newMockOrderRepo()
	broker := &mockBroker{balance: types.DecimalPtr(decimal.NewFromInt(9000))}
	svc := newMarkService(repo, accounts, orders, broker)

	cache := period.BuildPeriodCache(markInstant)
	prior := period.GetPreviousRollupPeriod(types.PeriodDaily, cache.Current[types.PeriodDaily].End)
	repo.Upsert(context.Background(), &models.AccountBalanceSnapshot{
		AccountID:   "acct-1",
		PeriodType:  types.PeriodDaily,
		PeriodStart: prior.Start,
		PeriodEnd:   prior.End,
		Balance:     types.DecimalPtr(decimal.NewFromInt(10000)),
	})

	if err := svc.MarkCurrentDay(context.Background(), testAccount()); err != nil {
		t.Fatalf("MarkCurrentDay failed: %v", err)
	}

	updated := accounts.updated["acct-1"]
	if updated.AllTimeHigh == nil || !updated.AllTimeHigh.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("expected all-time high 10000, got %v", updated.AllTimeHigh)
	}
	if updated.AllTimeHighDate == nil || !updated.AllTimeHighDate.Equal(prior.End) {
		t.Errorf("expected all-time high date %s, got %v", prior.End, updated.AllTimeHighDate)
	}
	if updated.DrawdownFromATH == nil || !updated.DrawdownFromATH.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("expected drawdown 1000, got %v", updated.DrawdownFromATH)
	}
	if updated.DrawdownPctFromATH == nil || !updated.DrawdownPctFromATH.Equal(decimal.RequireFromString("0.1")) {
		t.Errorf("expected drawdown pct 0.1, got %v", updated.DrawdownPctFromATH)
	}
}

func TestMarkCurrentDayBalanceUnavailable(t *testing.T) {
	repo := newMockSnapshotRepo()
	accounts := newMockAccountRepo(testAccount())
	broker := &mockBroker{balance: nil}
	svc := newMarkService(repo, accounts, newMockOrderRepo(), broker)

	if err := svc.MarkCurrentDay(context.Background(), testAccount()); err != nil {
		t.Fatalf("expected a skip, got error: %v", err)
	}
	if repo.upserts != 0 {
		t.Errorf("unavailable balance wrote %d snapshots", repo.upserts)
	}
	if len(accounts.updated) != 0 {
		t.Error("unavailable balance updated account stats")
	}
}

func TestMarkCurrentDayBrokerError(t *testing.T) {
	repo := newMockSnapshotRepo()
	broker := &mockBroker{err: goerrors.New("connection refused")}
	svc := newMarkService(repo, newMockAccountRepo(testAccount()), newMockOrderRepo(), broker)

	err := svc.MarkCurrentDay(context.Background(), testAccount())
	if err == nil {
		t.Fatal("expected an error")
	}
	if errors.IsFatal(err) {
		t.Errorf("broker errors are transient, got fatal: %v", err)
	}
	if repo.upserts != 0 {
		t.Errorf("failed broker read wrote %d snapshots", repo.upserts)
	}
}

func TestMarkCurrentDayMissingAccount(t *testing.T) {
	svc := newMarkService(newMockSnapshotRepo(), newMockAccountRepo(), newMockOrderRepo(), &mockBroker{})

	for _, account := range []*models.Account{nil, {}} {
		err := svc.MarkCurrentDay(context.Background(), account)
		if err == nil {
			t.Fatal("expected an error")
		}
		if !errors.IsFatal(err) {
			t.Errorf("expected a fatal validation error, got %v", err)
		}
	}
}

func TestMarkCurrentDayMirrorsHistoryPoint(t *testing.T) {
	repo := newMockSnapshotRepo()
	history := &mockHistoryStore{}
	broker := &mockBroker{balance: types.DecimalPtr(decimal.NewFromInt(10000))}
	svc := newMarkService(repo, newMockAccountRepo(testAccount()), newMockOrderRepo(), broker).
		WithHistoryMirror(history)

	if err := svc.MarkCurrentDay(context.Background(), testAccount()); err != nil {
		t.Fatalf("MarkCurrentDay failed: %v", err)
	}

	if len(history.points) != 1 {
		t.Fatalf("expected 1 history point, got %d", len(history.points))
	}
	point := history.points[0]
	daily := period.BuildPeriodCache(markInstant).Current[types.PeriodDaily]
	if point.AccountID != "acct-1" || !point.Date.Equal(daily.End) {
		t.Errorf("unexpected history point %+v", point)
	}
	if !point.Balance.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("expected mirrored balance 10000, got %s", point.Balance)
	}
}

func TestMarkCurrentDayWeeklyAggregatesDailies(t *testing.T) {
	repo := newMockSnapshotRepo()
	orders := newMockOrderRepo()
	broker := &mockBroker{balance: types.DecimalPtr(decimal.NewFromInt(10200))}
	svc := newMarkService(repo, newMockAccountRepo(testAccount()), orders, broker)

	cache := period.BuildPeriodCache(markInstant)
	daily := cache.Current[types.PeriodDaily]
	weekly := cache.Current[types.PeriodWeekly]

	// Monday of the same week carries a transfer and executed orders.
	monday := period.GetPreviousRollupPeriod(types.PeriodDaily, daily.End)
	repo.Upsert(context.Background(), &models.AccountBalanceSnapshot{
		AccountID:      "acct-1",
		PeriodType:     types.PeriodDaily,
		PeriodStart:    monday.Start,
		PeriodEnd:      monday.End,
		Balance:        types.DecimalPtr(decimal.NewFromInt(10000)),
		TransferAmount: types.DecimalPtr(decimal.NewFromInt(1000)),
		OrdersExecuted: 3,
	})
	orders.setCount("acct-1", daily.End, 2)

	if err := svc.MarkCurrentDay(context.Background(), testAccount()); err != nil {
		t.Fatalf("MarkCurrentDay failed: %v", err)
	}

	weeklySnap, _ := repo.GetByKey(context.Background(), "acct-1", types.PeriodWeekly, weekly.End)
	if weeklySnap == nil {
		t.Fatal("expected a weekly snapshot")
	}
	if weeklySnap.TransferAmount == nil || !weeklySnap.TransferAmount.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("expected weekly transfer 1000, got %v", weeklySnap.TransferAmount)
	}
	if weeklySnap.OrdersExecuted != 5 {
		t.Errorf("expected 5 orders across the week, got %d", weeklySnap.OrdersExecuted)
	}
}
