package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/account-rollup/internal/types"
)

// Account represents a brokerage account tracked by the rollup engine.
// The all-time-high and drawdown fields are recomputed from full daily
// history after every current-day mark.
type Account struct {
	ID                 string           `json:"id" db:"id"`
	Name               string           `json:"name" db:"name"`
	Broker             string           `json:"broker" db:"broker"`
	RollupWindowStart  *time.Time       `json:"rollupWindowStart,omitempty" db:"rollup_window_start"`
	AllTimeHigh        *decimal.Decimal `json:"allTimeHigh,omitempty" db:"all_time_high"`
	AllTimeHighDate    *time.Time       `json:"allTimeHighDate,omitempty" db:"all_time_high_date"`
	DrawdownFromATH    *decimal.Decimal `json:"drawdownFromAth,omitempty" db:"drawdown_from_ath"`
	DrawdownPctFromATH *decimal.Decimal `json:"drawdownPctFromAth,omitempty" db:"drawdown_pct_from_ath"`
	CreatedAt          time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time        `json:"updatedAt" db:"updated_at"`
}

// Trade represents one open or closed trade with its live gain state.
// The import and repair pipeline that produces these facts is external;
// the rollup engine only reads them.
type Trade struct {
	ID             string           `json:"id" db:"id"`
	AccountID      string           `json:"accountId" db:"account_id"`
	Symbol         string           `json:"symbol" db:"symbol"`
	OpenedAt       time.Time        `json:"openedAt" db:"opened_at"`
	ClosedAt       *time.Time       `json:"closedAt,omitempty" db:"closed_at"`
	TotalGain      decimal.Decimal  `json:"totalGain" db:"total_gain"`
	CurrentValue   *decimal.Decimal `json:"currentValue,omitempty" db:"current_value"`
	CurrentCost    *decimal.Decimal `json:"currentCost,omitempty" db:"current_cost"`
	CurrentPrice   *decimal.Decimal `json:"currentPrice,omitempty" db:"current_price"`
	OpenQuantity   *decimal.Decimal `json:"openQuantity,omitempty" db:"open_quantity"`
	BreakevenPrice *decimal.Decimal `json:"breakevenPrice,omitempty" db:"breakeven_price"`
	RealizedGain   *decimal.Decimal `json:"realizedGain,omitempty" db:"realized_gain"`
	UnrealizedGain *decimal.Decimal `json:"unrealizedGain,omitempty" db:"unrealized_gain"`
}

// IsOpen reports whether the trade is still open.
func (t *Trade) IsOpen() bool {
	return t.ClosedAt == nil
}

// TransferTransaction represents a cash transfer fact from the broker
// transaction feed. Amount and Date are pointers because the feed can
// deliver malformed rows; the ledger merge rejects those as fatal.
type TransferTransaction struct {
	ExternalID  string                `json:"externalId" db:"external_id"`
	AccountID   string                `json:"accountId" db:"account_id"`
	Type        types.TransactionType `json:"type" db:"type"`
	Amount      *decimal.Decimal      `json:"amount,omitempty" db:"amount"`
	Date        *time.Time            `json:"date,omitempty" db:"date"`
	Description string                `json:"description" db:"description"`
}

// Quote represents the latest known price for a symbol. Quotes are
// written by an external fetcher; the refresh pipeline reads them under
// a share lock before updating trade rows.
type Quote struct {
	Symbol    string          `json:"symbol" db:"symbol"`
	Price     decimal.Decimal `json:"price" db:"price"`
	AsOf      time.Time       `json:"asOf" db:"as_of"`
	UpdatedAt time.Time       `json:"updatedAt" db:"updated_at"`
}
