package rollup

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/account-rollup/internal/errors"
	"github.com/account-rollup/internal/models"
	"github.com/account-rollup/internal/period"
	"github.com/account-rollup/internal/types"
)

func openTrade() *models.Trade {
	return &models.Trade{
		ID:             "trade-1",
		AccountID:      "acc-1",
		Symbol:         "AAPL",
		OpenedAt:       day(2024, time.February, 1),
		TotalGain:      d("150"),
		CurrentValue:   dp("1150"),
		CurrentCost:    dp("1000"),
		CurrentPrice:   dp("115"),
		OpenQuantity:   dp("10"),
		BreakevenPrice: dp("100"),
		RealizedGain:   dp("0"),
		UnrealizedGain: dp("150"),
	}
}

func TestComputeTradeSnapshotFirstPeriod(t *testing.T) {
	snap, err := ComputeTradeSnapshot(TradeComputeInput{
		Trade:      openTrade(),
		PeriodType: types.PeriodDaily,
		Period:     dailyBoundary(day(2024, time.March, 6)),
	})
	require.NoError(t, err)

	require.True(t, snap.PeriodGain.Equal(decimal.Zero), "no prior period means zero period gain")
	require.True(t, snap.PeriodGainPct.Equal(decimal.Zero))
	require.True(t, snap.TotalGain.Equal(d("150")))
	require.True(t, snap.TotalGainPct.Equal(d("0.15")))
	require.True(t, snap.CurrentPriceAtPeriodEnd.Equal(d("115")))
	require.True(t, snap.OpenQuantityAtPeriodEnd.Equal(d("10")))
}

func TestComputeTradeSnapshotPeriodGainAgainstPrevious(t *testing.T) {
	previous := &models.TradeGainSnapshot{
		AccountID:    "acc-1",
		TradeID:      "trade-1",
		PeriodType:   types.PeriodDaily,
		PeriodEnd:    day(2024, time.March, 5),
		TotalGain:    d("100"),
		CurrentValue: dp("1100"),
	}

	snap, err := ComputeTradeSnapshot(TradeComputeInput{
		Trade:      openTrade(),
		PeriodType: types.PeriodDaily,
		Period:     dailyBoundary(day(2024, time.March, 6)),
		Previous:   previous,
	})
	require.NoError(t, err)

	require.True(t, snap.PeriodGain.Equal(d("50")))
	// Divided by the previous period's value, not the current one.
	require.True(t, snap.PeriodGainPct.Equal(d("50").DivRound(d("1100"), 6)))
}

func TestComputeTradeSnapshotClosedTradeNullsOpenFields(t *testing.T) {
	trade := openTrade()
	trade.ClosedAt = types.TimePtr(day(2024, time.March, 6))
	trade.RealizedGain = dp("150")
	trade.UnrealizedGain = dp("0")

	snap, err := ComputeTradeSnapshot(TradeComputeInput{
		Trade:      trade,
		PeriodType: types.PeriodDaily,
		Period:     dailyBoundary(day(2024, time.March, 6)),
		Existing: &models.TradeGainSnapshot{
			AccountID:               "acc-1",
			TradeID:                 "trade-1",
			PeriodType:              types.PeriodDaily,
			PeriodEnd:               day(2024, time.March, 6),
			CurrentPriceAtPeriodEnd: dp("115"),
			OpenQuantityAtPeriodEnd: dp("10"),
			BreakevenAtPeriodEnd:    dp("100"),
		},
	})
	require.NoError(t, err)

	require.Nil(t, snap.CurrentPriceAtPeriodEnd)
	require.Nil(t, snap.OpenQuantityAtPeriodEnd)
	require.Nil(t, snap.BreakevenAtPeriodEnd)
	require.True(t, snap.RealizedGainAtPeriodEnd.Equal(d("150")))
	require.True(t, snap.UnrealizedGainAtPeriodEnd.Equal(d("0")))
}

func TestComputeTradeSnapshotZeroCostTotalGainPctNull(t *testing.T) {
	trade := openTrade()
	trade.CurrentCost = dp("0")

	snap, err := ComputeTradeSnapshot(TradeComputeInput{
		Trade:      trade,
		PeriodType: types.PeriodDaily,
		Period:     dailyBoundary(day(2024, time.March, 6)),
	})
	require.NoError(t, err)
	require.Nil(t, snap.TotalGainPct)
}

func TestComputeTradeSnapshotPrevValueZeroYieldsZeroPct(t *testing.T) {
	previous := &models.TradeGainSnapshot{
		AccountID:    "acc-1",
		TradeID:      "trade-1",
		PeriodType:   types.PeriodDaily,
		PeriodEnd:    day(2024, time.March, 5),
		TotalGain:    d("100"),
		CurrentValue: dp("0"),
	}

	snap, err := ComputeTradeSnapshot(TradeComputeInput{
		Trade:      openTrade(),
		PeriodType: types.PeriodDaily,
		Period:     dailyBoundary(day(2024, time.March, 6)),
		Previous:   previous,
	})
	require.NoError(t, err)
	require.True(t, snap.PeriodGain.Equal(d("50")))
	require.True(t, snap.PeriodGainPct.Equal(decimal.Zero))
}

func TestComputeTradeSnapshotValidation(t *testing.T) {
	_, err := ComputeTradeSnapshot(TradeComputeInput{
		Trade:      &models.Trade{AccountID: "acc-1"},
		PeriodType: types.PeriodDaily,
		Period:     dailyBoundary(day(2024, time.March, 6)),
	})
	require.Error(t, err)
	require.Equal(t, "MISSING_TRADE_ID", errors.Categorize(err).Code)

	_, err = ComputeTradeSnapshot(TradeComputeInput{
		Trade:      &models.Trade{ID: "trade-1"},
		PeriodType: types.PeriodDaily,
		Period:     dailyBoundary(day(2024, time.March, 6)),
	})
	require.Error(t, err)
	require.Equal(t, "MISSING_ACCOUNT_ID", errors.Categorize(err).Code)
}

func TestComputeTradeSnapshotReusesExisting(t *testing.T) {
	existing := &models.TradeGainSnapshot{
		AccountID:  "acc-1",
		TradeID:    "trade-1",
		PeriodType: types.PeriodWeekly,
		PeriodEnd:  day(2024, time.March, 8),
	}
	boundary := period.GetRollupPeriod(types.PeriodWeekly, day(2024, time.March, 6))

	snap, err := ComputeTradeSnapshot(TradeComputeInput{
		Trade:      openTrade(),
		PeriodType: types.PeriodWeekly,
		Period:     boundary,
		Existing:   existing,
	})
	require.NoError(t, err)
	require.Same(t, existing, snap)
	require.Equal(t, boundary.Start, snap.PeriodStart)
}
