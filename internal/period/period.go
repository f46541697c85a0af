// Package period provides business-day aligned rollup period math.
// All three period granularities resolve to boundaries that fall on
// business days (Monday-Friday) of the governing market calendar.
package period

import (
	"time"

	"github.com/account-rollup/internal/types"
)

// MarketTimezone is the calendar timezone governing business dates.
var MarketTimezone = mustLoadLocation("America/New_York")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// Boundary represents the start and end calendar dates of one rollup
// period. Both dates are business days, normalized to midnight UTC.
// For daily periods Start equals End.
type Boundary struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether date falls within the boundary, inclusive.
func (b Boundary) Contains(date time.Time) bool {
	d := DateOf(date)
	return !d.Before(b.Start) && !d.After(b.End)
}

// Equal reports whether two boundaries cover the same dates.
func (b Boundary) Equal(other Boundary) bool {
	return b.Start.Equal(other.Start) && b.End.Equal(other.End)
}

// DateOf strips the time-of-day component, keeping midnight UTC of the
// same calendar date. Period math operates on calendar dates only.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MarketDate converts a clock instant to the calendar date observed in
// the market timezone. A refresh running at 01:00 UTC still marks the
// previous New York trading date.
func MarketDate(t time.Time) time.Time {
	return DateOf(t.In(MarketTimezone))
}

// GetRollupPeriod returns the period boundary of the given type that
// contains date. Weekend dates collapse onto the business period that
// just ended: a Saturday daily period is the preceding Friday, and a
// weekend weekly reference belongs to the week ending that Friday.
func GetRollupPeriod(periodType types.RollupPeriodType, date time.Time) Boundary {
	d := DateOf(date)

	switch periodType {
	case types.PeriodWeekly:
		monday := mondayOfBusinessWeek(d)
		return Boundary{Start: monday, End: monday.AddDate(0, 0, 4)}

	case types.PeriodMonthly:
		first := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
		last := first.AddDate(0, 1, -1)
		return Boundary{Start: shiftForwardToWeekday(first), End: shiftBackToWeekday(last)}

	default: // daily
		d = shiftBackToWeekday(d)
		return Boundary{Start: d, End: d}
	}
}

// GetNextRollupPeriod returns the period immediately following the one
// containing date. Navigation is relative to the computed boundary, not
// the raw date: the day after a Friday daily period is Monday, and the
// month after a January reference is February's business span.
func GetNextRollupPeriod(periodType types.RollupPeriodType, date time.Time) Boundary {
	current := GetRollupPeriod(periodType, date)

	switch periodType {
	case types.PeriodWeekly:
		monday := current.Start.AddDate(0, 0, 7)
		return Boundary{Start: monday, End: monday.AddDate(0, 0, 4)}

	case types.PeriodMonthly:
		// Recompute from mid-month of the adjacent calendar month so the
		// weekend-edge shifts are re-derived, never arithmetically extended.
		anchor := time.Date(current.Start.Year(), current.Start.Month(), 15, 0, 0, 0, 0, time.UTC)
		return GetRollupPeriod(types.PeriodMonthly, anchor.AddDate(0, 1, 0))

	default:
		next := shiftForwardToWeekday(current.End.AddDate(0, 0, 1))
		return Boundary{Start: next, End: next}
	}
}

// GetPreviousRollupPeriod returns the period immediately preceding the
// one containing date. The day before a Monday daily period is Friday.
func GetPreviousRollupPeriod(periodType types.RollupPeriodType, date time.Time) Boundary {
	current := GetRollupPeriod(periodType, date)

	switch periodType {
	case types.PeriodWeekly:
		monday := current.Start.AddDate(0, 0, -7)
		return Boundary{Start: monday, End: monday.AddDate(0, 0, 4)}

	case types.PeriodMonthly:
		anchor := time.Date(current.Start.Year(), current.Start.Month(), 15, 0, 0, 0, 0, time.UTC)
		return GetRollupPeriod(types.PeriodMonthly, anchor.AddDate(0, -1, 0))

	default:
		prev := shiftBackToWeekday(current.Start.AddDate(0, 0, -1))
		return Boundary{Start: prev, End: prev}
	}
}

// Cache holds the current and previous boundaries for all three period
// types, computed in one pass so a single processing run never observes
// boundary drift between calls. AsOf may come from a simulated clock.
type Cache struct {
	AsOf     time.Time
	Current  map[types.RollupPeriodType]Boundary
	Previous map[types.RollupPeriodType]Boundary
}

// BuildPeriodCache computes the period cache for the given as-of instant.
func BuildPeriodCache(asOf time.Time) *Cache {
	date := MarketDate(asOf)
	cache := &Cache{
		AsOf:     date,
		Current:  make(map[types.RollupPeriodType]Boundary, len(types.AllPeriodTypes)),
		Previous: make(map[types.RollupPeriodType]Boundary, len(types.AllPeriodTypes)),
	}
	for _, pt := range types.AllPeriodTypes {
		cache.Current[pt] = GetRollupPeriod(pt, date)
		cache.Previous[pt] = GetPreviousRollupPeriod(pt, date)
	}
	return cache
}

// LastCompletedDailyEnd returns the end date of the most recently
// completed daily period relative to the cache's as-of date.
func (c *Cache) LastCompletedDailyEnd() time.Time {
	return c.Previous[types.PeriodDaily].End
}

// mondayOfBusinessWeek resolves the Monday of the business week that
// contains d. Weekend dates belong to the week that just ended.
func mondayOfBusinessWeek(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -5)
	case time.Sunday:
		return d.AddDate(0, 0, -6)
	default:
		return d.AddDate(0, 0, -(int(d.Weekday()) - 1))
	}
}

// shiftBackToWeekday moves a weekend date back to the preceding Friday.
func shiftBackToWeekday(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, -2)
	default:
		return d
	}
}

// shiftForwardToWeekday moves a weekend date forward to the next Monday.
func shiftForwardToWeekday(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, 2)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	default:
		return d
	}
}
