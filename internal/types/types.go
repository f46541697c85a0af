// Package types provides common type definitions for the account rollup system.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// RollupPeriodType represents the granularity of a rollup bucket.
// Ordering matters for dependency purposes: daily < weekly < monthly,
// because weekly and monthly values derive from daily snapshots.
type RollupPeriodType string

const (
	// PeriodDaily represents a single business-day bucket
	PeriodDaily RollupPeriodType = "daily"
	// PeriodWeekly represents a Monday-Friday business-week bucket
	PeriodWeekly RollupPeriodType = "weekly"
	// PeriodMonthly represents a calendar-month bucket bounded by business days
	PeriodMonthly RollupPeriodType = "monthly"
)

// AllPeriodTypes lists the period types in dependency order.
// Daily must always be processed before weekly and monthly.
var AllPeriodTypes = []RollupPeriodType{PeriodDaily, PeriodWeekly, PeriodMonthly}

// Valid reports whether the period type is one of the known granularities.
func (p RollupPeriodType) Valid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return true
	}
	return false
}

// TransactionType represents the kind of a broker transaction
type TransactionType string

const (
	// TransactionTransfer represents a cash transfer in or out of an account
	TransactionTransfer TransactionType = "transfer"
	// TransactionDividend represents a dividend payment
	TransactionDividend TransactionType = "dividend"
	// TransactionTrade represents a buy or sell execution
	TransactionTrade TransactionType = "trade"
)

// BackfillStatus represents the status of a backfill job
type BackfillStatus string

const (
	// BackfillStatusQueued represents a job waiting to be processed
	BackfillStatusQueued BackfillStatus = "queued"
	// BackfillStatusInProgress represents a job currently being processed
	BackfillStatusInProgress BackfillStatus = "in_progress"
	// BackfillStatusCompleted represents a successfully completed job
	BackfillStatusCompleted BackfillStatus = "completed"
	// BackfillStatusFailed represents a failed job
	BackfillStatusFailed BackfillStatus = "failed"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// Clock abstracts the current time so rollup runs can be replayed
// deterministically against a simulated date.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual wall-clock time.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant. Used for simulated
// processing runs and tests.
type FixedClock struct {
	Instant time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return c.Instant }

// DecimalPtr returns a pointer to d.
func DecimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time {
	return &t
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
