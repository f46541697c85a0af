// Package rollup implements the pure rollup value calculators. Given an
// account's balance and snapshot history the calculators derive one
// period's metrics without touching storage; orchestration and
// persistence live in the service layer.
package rollup

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/account-rollup/internal/errors"
	"github.com/account-rollup/internal/models"
	"github.com/account-rollup/internal/period"
	"github.com/account-rollup/internal/types"
)

// pctPlaces is the scale used for ratio fields (balance change, net gain).
const pctPlaces = 6

// currencyPlaces is the scale used for stored currency amounts.
const currencyPlaces = 2

// ComputeInput carries everything the calculator needs for one period.
type ComputeInput struct {
	AccountID  string
	PeriodType types.RollupPeriodType
	Period     period.Boundary

	// Balance is the account value to record for this period: the live
	// broker balance for a current-day mark, or the stored daily balance
	// during backfill.
	Balance decimal.Decimal

	// Existing is the snapshot already persisted for this period end, if
	// any. It is reused so natural-key identity survives recomputation.
	Existing *models.AccountBalanceSnapshot

	// Previous is the snapshot of the same period type strictly
	// preceding this period end. Nil means no baseline exists.
	Previous *models.AccountBalanceSnapshot

	// Dailies are all daily snapshots whose period end falls within
	// [Period.Start, Period.End]. Ignored for daily computation.
	Dailies []*models.AccountBalanceSnapshot

	// OrdersExecutedToday is the freshly computed execution count for
	// the as-of date.
	OrdersExecutedToday int

	// Simulated marks a run without an independent balance feed: the
	// period's transfer is folded into Balance before diffing, since no
	// broker read would already reflect it.
	Simulated bool

	// Now is the balance update timestamp to record.
	Now time.Time
}

// ComputeSnapshot derives one period's snapshot from the input. The
// existing snapshot is mutated and returned when present; otherwise a
// new snapshot is constructed. The only error conditions are a missing
// account identifier and a duplicate daily snapshot at the target
// period end, both fatal for the caller's current step.
func ComputeSnapshot(in ComputeInput) (*models.AccountBalanceSnapshot, error) {
	if in.AccountID == "" {
		return nil, errors.NewMissingAccountIDError()
	}

	snap := in.Existing
	if snap == nil {
		snap = &models.AccountBalanceSnapshot{
			AccountID:   in.AccountID,
			PeriodType:  in.PeriodType,
			PeriodStart: in.Period.Start,
			PeriodEnd:   in.Period.End,
		}
	} else {
		// Boundaries are re-derived on every recompute; the natural key
		// (account, type, end) is what preserves identity.
		snap.PeriodStart = in.Period.Start
		snap.PeriodEnd = in.Period.End
	}

	// Transfer aggregation. A daily snapshot's transfer fields are
	// populated upstream by the ledger merge and must not be recomputed
	// here. Weekly and monthly sum their constituent dailies.
	var periodTransfer *decimal.Decimal
	if in.PeriodType == types.PeriodDaily {
		periodTransfer = cloneDecimal(snap.TransferAmount)
	} else {
		sum, desc := aggregateDailyTransfers(in.Dailies)
		periodTransfer = sum
		snap.TransferAmount = cloneDecimal(sum)
		snap.TransferDescription = desc
	}

	balance := in.Balance
	if in.Simulated && periodTransfer != nil && !periodTransfer.IsZero() {
		balance = balance.Add(*periodTransfer)
	}
	balance = balance.Round(currencyPlaces)
	snap.Balance = &balance
	snap.BalanceUpdateTime = types.TimePtr(in.Now)

	// Balance change vs. the previous snapshot. No previous snapshot is
	// the explicit "no baseline" state: zero change, zero percent.
	if in.Previous == nil {
		snap.BalanceChangeAmount = types.DecimalPtr(decimal.Zero)
		snap.BalanceChangePct = types.DecimalPtr(decimal.Zero)
	} else {
		prevBalance := decimal.Zero
		if in.Previous.Balance != nil {
			prevBalance = *in.Previous.Balance
		}
		change := balance.Sub(prevBalance).Round(currencyPlaces)
		snap.BalanceChangeAmount = &change
		if prevBalance.IsZero() {
			snap.BalanceChangePct = nil
		} else {
			snap.BalanceChangePct = types.DecimalPtr(change.DivRound(prevBalance, pctPlaces))
		}
	}

	// Invested amount carries forward from the previous snapshot and
	// grows only by this period's own transfers. It is never re-derived
	// by summing the invested amounts of child daily snapshots: those
	// each already carry the full basis forward and summing them would
	// multiply it.
	var invested *decimal.Decimal
	if in.Previous != nil {
		invested = cloneDecimal(in.Previous.InvestedAmount)
	}
	if periodTransfer != nil && !periodTransfer.IsZero() {
		if invested == nil {
			// First transfer establishes the initial basis.
			invested = types.DecimalPtr(periodTransfer.Round(currencyPlaces))
		} else {
			invested = types.DecimalPtr(invested.Add(*periodTransfer).Round(currencyPlaces))
		}
	}
	snap.InvestedAmount = invested

	if invested != nil && invested.IsPositive() {
		netGain := balance.Sub(*invested).Round(currencyPlaces)
		snap.NetGain = &netGain
		snap.NetGainPct = types.DecimalPtr(netGain.DivRound(*invested, pctPlaces))
	} else {
		snap.NetGain = nil
		snap.NetGainPct = nil
	}

	ordersExecuted, err := computeOrdersExecuted(in)
	if err != nil {
		return nil, err
	}
	snap.OrdersExecuted = ordersExecuted

	return snap, nil
}

// aggregateDailyTransfers sums the transfer amounts of daily snapshots
// carrying a non-null non-zero transfer and concatenates their
// descriptions. Returns (nil, nil) when no daily carries a transfer.
func aggregateDailyTransfers(dailies []*models.AccountBalanceSnapshot) (*decimal.Decimal, *string) {
	var sum decimal.Decimal
	var descriptions []string
	found := false

	for _, d := range dailies {
		if !d.HasTransfer() {
			continue
		}
		found = true
		sum = sum.Add(*d.TransferAmount)
		if d.TransferDescription != nil && *d.TransferDescription != "" {
			descriptions = append(descriptions, *d.TransferDescription)
		}
	}

	if !found {
		return nil, nil
	}

	sum = sum.Round(currencyPlaces)
	var desc *string
	if len(descriptions) > 0 {
		desc = types.StringPtr(strings.Join(descriptions, "\n"))
	}
	return &sum, desc
}

// computeOrdersExecuted resolves the execution count for the period.
// Daily takes the fresh count directly. Weekly and monthly sum their
// dailies, replacing the count of the daily at this period's end (if
// already present in the range) with the fresh value, since its stored
// count predates the current refresh.
func computeOrdersExecuted(in ComputeInput) (int, error) {
	if in.PeriodType == types.PeriodDaily {
		return in.OrdersExecutedToday, nil
	}

	total := 0
	matched := 0
	for _, d := range in.Dailies {
		total += d.OrdersExecuted
		if d.PeriodEnd.Equal(in.Period.End) {
			matched++
			total -= d.OrdersExecuted
			total += in.OrdersExecutedToday
		}
	}
	if matched > 1 {
		return 0, errors.NewDuplicateDailySnapshotError(in.AccountID, in.Period.End.Format("2006-01-02"))
	}
	return total, nil
}

// cloneDecimal copies a nullable decimal so calculator outputs never
// alias their inputs.
func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}
