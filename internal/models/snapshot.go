package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/account-rollup/internal/types"
)

// AccountBalanceSnapshot represents one persisted rollup record for an
// account. Natural key: (AccountID, PeriodType, PeriodEnd). The record
// is created on the first transfer or first daily mark for a date and
// mutated in place on subsequent marks for the same period.
//
// Nullable money fields are pointers: a nil InvestedAmount means no
// cost basis has been established yet, which is distinct from a zero
// basis. BalanceChangeAmount/Pct of zero with no previous snapshot is
// the explicit "no baseline" state, not null.
type AccountBalanceSnapshot struct {
	AccountID           string                 `json:"accountId" db:"account_id"`
	PeriodType          types.RollupPeriodType `json:"periodType" db:"period_type"`
	PeriodStart         time.Time              `json:"periodStart" db:"period_start"`
	PeriodEnd           time.Time              `json:"periodEnd" db:"period_end"`
	Balance             *decimal.Decimal       `json:"balance,omitempty" db:"balance"`
	BalanceUpdateTime   *time.Time             `json:"balanceUpdateTime,omitempty" db:"balance_update_time"`
	BalanceChangeAmount *decimal.Decimal       `json:"balanceChangeAmount,omitempty" db:"balance_change_amount"`
	BalanceChangePct    *decimal.Decimal       `json:"balanceChangePct,omitempty" db:"balance_change_pct"`
	TransferAmount      *decimal.Decimal       `json:"transferAmount,omitempty" db:"transfer_amount"`
	TransferDescription *string                `json:"transferDescription,omitempty" db:"transfer_description"`
	InvestedAmount      *decimal.Decimal       `json:"investedAmount,omitempty" db:"invested_amount"`
	NetGain             *decimal.Decimal       `json:"netGain,omitempty" db:"net_gain"`
	NetGainPct          *decimal.Decimal       `json:"netGainPct,omitempty" db:"net_gain_pct"`
	OrdersExecuted      int                    `json:"ordersExecuted" db:"orders_executed"`
	Comment             *string                `json:"comment,omitempty" db:"comment"`
}

// HasTransfer reports whether the snapshot carries a non-null, non-zero
// transfer amount.
func (s *AccountBalanceSnapshot) HasTransfer() bool {
	return s.TransferAmount != nil && !s.TransferAmount.IsZero()
}

// TradeGainSnapshot represents one persisted rollup record for a trade.
// Natural key: (AccountID, TradeID, PeriodType, PeriodEnd).
//
// The price/quantity/breakeven fields are snapshotted only while the
// trade remains open and nulled once it closes. Realized and unrealized
// gains are copied through from the trade's live state as-is.
type TradeGainSnapshot struct {
	AccountID                 string                 `json:"accountId" db:"account_id"`
	TradeID                   string                 `json:"tradeId" db:"trade_id"`
	PeriodType                types.RollupPeriodType `json:"periodType" db:"period_type"`
	PeriodStart               time.Time              `json:"periodStart" db:"period_start"`
	PeriodEnd                 time.Time              `json:"periodEnd" db:"period_end"`
	PeriodGain                decimal.Decimal        `json:"periodGain" db:"period_gain"`
	PeriodGainPct             decimal.Decimal        `json:"periodGainPct" db:"period_gain_pct"`
	TotalGain                 decimal.Decimal        `json:"totalGain" db:"total_gain"`
	TotalGainPct              *decimal.Decimal       `json:"totalGainPct,omitempty" db:"total_gain_pct"`
	CurrentValue              *decimal.Decimal       `json:"currentValue,omitempty" db:"current_value"`
	CurrentCost               *decimal.Decimal       `json:"currentCost,omitempty" db:"current_cost"`
	CurrentPriceAtPeriodEnd   *decimal.Decimal       `json:"currentPriceAtPeriodEnd,omitempty" db:"current_price_at_period_end"`
	OpenQuantityAtPeriodEnd   *decimal.Decimal       `json:"openQuantityAtPeriodEnd,omitempty" db:"open_quantity_at_period_end"`
	BreakevenAtPeriodEnd      *decimal.Decimal       `json:"breakevenAtPeriodEnd,omitempty" db:"breakeven_at_period_end"`
	RealizedGainAtPeriodEnd   *decimal.Decimal       `json:"realizedGainAtPeriodEnd,omitempty" db:"realized_gain_at_period_end"`
	UnrealizedGainAtPeriodEnd *decimal.Decimal       `json:"unrealizedGainAtPeriodEnd,omitempty" db:"unrealized_gain_at_period_end"`
}

// BalanceHistoryPoint is one row of the chart-history mirror kept in
// ClickHouse. It duplicates the daily snapshot's headline numbers in an
// append-only store optimized for range scans.
type BalanceHistoryPoint struct {
	AccountID string           `json:"accountId"`
	Date      time.Time        `json:"date"`
	Balance   decimal.Decimal  `json:"balance"`
	Invested  *decimal.Decimal `json:"invested,omitempty"`
	NetGain   *decimal.Decimal `json:"netGain,omitempty"`
}
