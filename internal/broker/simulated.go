package broker

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/account-rollup/internal/models"
	"github.com/account-rollup/internal/period"
	"github.com/account-rollup/internal/types"
)

// SnapshotReader is the slice of snapshot storage the simulated
// provider needs.
type SnapshotReader interface {
	GetLatestTwo(ctx context.Context, accountID string, periodType types.RollupPeriodType) (latest, previous *models.AccountBalanceSnapshot, err error)
}

// SimulatedProvider serves account values for simulation runs, where no
// broker feed exists. It returns the last completed day's balance; the
// calculator folds the current period's transfers on top, so a
// simulated account's balance evolves purely from its transfer history.
//
// The current day's own snapshot is never used as the base: its balance
// already includes today's fold, and reusing it would double-count the
// day's transfers on every re-mark.
type SimulatedProvider struct {
	snapshots SnapshotReader
	clock     types.Clock
}

// NewSimulatedProvider creates a new simulated balance provider
func NewSimulatedProvider(snapshots SnapshotReader, clock types.Clock) *SimulatedProvider {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &SimulatedProvider{snapshots: snapshots, clock: clock}
}

// TotalAccountValue returns the balance of the most recent daily
// snapshot strictly before the current daily period, or zero for an
// account with no history yet.
func (p *SimulatedProvider) TotalAccountValue(ctx context.Context, account *models.Account) (*decimal.Decimal, error) {
	latest, previous, err := p.snapshots.GetLatestTwo(ctx, account.ID, types.PeriodDaily)
	if err != nil {
		return nil, err
	}

	today := period.GetRollupPeriod(types.PeriodDaily, period.MarketDate(p.clock.Now()))
	base := latest
	if base != nil && base.PeriodEnd.Equal(today.End) {
		base = previous
	}

	value := decimal.Zero
	if base != nil && base.Balance != nil {
		value = *base.Balance
	}
	return &value, nil
}
