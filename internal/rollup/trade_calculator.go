package rollup

import (
	"github.com/shopspring/decimal"

	"github.com/account-rollup/internal/errors"
	"github.com/account-rollup/internal/models"
	"github.com/account-rollup/internal/period"
	"github.com/account-rollup/internal/types"
)

// TradeComputeInput carries one trade's live state plus the snapshot
// history needed to derive one period's gain figures.
type TradeComputeInput struct {
	Trade      *models.Trade
	PeriodType types.RollupPeriodType
	Period     period.Boundary

	// Existing is the snapshot already persisted at this period end.
	Existing *models.TradeGainSnapshot

	// Previous is the snapshot at the previous period's end. Nil means
	// the trade has no history for the preceding period.
	Previous *models.TradeGainSnapshot
}

// ComputeTradeSnapshot derives one period's trade gain snapshot.
//
// PeriodGainPct divides by the previous period's CurrentValue, not the
// current one, to avoid look-ahead bias. TotalGainPct is recomputed
// fresh from the trade's live TotalGain and CurrentCost on every run
// rather than carried forward, so rounding drift cannot accumulate
// across incremental updates.
func ComputeTradeSnapshot(in TradeComputeInput) (*models.TradeGainSnapshot, error) {
	if in.Trade == nil || in.Trade.ID == "" {
		return nil, errors.NewMissingTradeIDError()
	}
	if in.Trade.AccountID == "" {
		return nil, errors.NewMissingAccountIDError()
	}

	snap := in.Existing
	if snap == nil {
		snap = &models.TradeGainSnapshot{
			AccountID:  in.Trade.AccountID,
			TradeID:    in.Trade.ID,
			PeriodType: in.PeriodType,
		}
	}
	snap.PeriodStart = in.Period.Start
	snap.PeriodEnd = in.Period.End

	snap.TotalGain = in.Trade.TotalGain.Round(currencyPlaces)

	if in.Previous != nil {
		snap.PeriodGain = in.Trade.TotalGain.Sub(in.Previous.TotalGain).Round(currencyPlaces)
	} else {
		snap.PeriodGain = decimal.Zero
	}

	if in.Previous != nil && in.Previous.CurrentValue != nil && !in.Previous.CurrentValue.IsZero() {
		snap.PeriodGainPct = snap.PeriodGain.DivRound(*in.Previous.CurrentValue, pctPlaces)
	} else {
		snap.PeriodGainPct = decimal.Zero
	}

	if in.Trade.CurrentCost != nil && !in.Trade.CurrentCost.IsZero() {
		snap.TotalGainPct = types.DecimalPtr(in.Trade.TotalGain.DivRound(*in.Trade.CurrentCost, pctPlaces))
	} else {
		snap.TotalGainPct = nil
	}

	snap.CurrentValue = cloneDecimal(in.Trade.CurrentValue)
	snap.CurrentCost = cloneDecimal(in.Trade.CurrentCost)

	if in.Trade.IsOpen() {
		snap.CurrentPriceAtPeriodEnd = cloneDecimal(in.Trade.CurrentPrice)
		snap.OpenQuantityAtPeriodEnd = cloneDecimal(in.Trade.OpenQuantity)
		snap.BreakevenAtPeriodEnd = cloneDecimal(in.Trade.BreakevenPrice)
	} else {
		snap.CurrentPriceAtPeriodEnd = nil
		snap.OpenQuantityAtPeriodEnd = nil
		snap.BreakevenAtPeriodEnd = nil
	}

	snap.RealizedGainAtPeriodEnd = cloneDecimal(in.Trade.RealizedGain)
	snap.UnrealizedGainAtPeriodEnd = cloneDecimal(in.Trade.UnrealizedGain)

	return snap, nil
}
