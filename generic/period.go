package generic

import "time"

// =============================================================================
// PERIOD - Date range a fiscal year covers
// =============================================================================

// Period is an inclusive range of calendar dates.
//
// Examples:
//   - Fiscal year 2026: Oct 1 2025 - Sep 30 2026
type Period struct {
	Start Date
	End   Date
}

// Contains returns true if the date is within the period [Start, End]
func (p Period) Contains(d Date) bool {
	return !d.Before(p.Start) && !d.After(p.End)
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// FISCAL CALENDAR
// =============================================================================

// FiscalYearStartMonth is the first month of the club's fiscal year.
// Dates on or after it belong to the fiscal year named after the next
// calendar year.
const FiscalYearStartMonth = time.October

// FiscalYear returns the fiscal year a date falls in, or 0 for the zero Date.
// 0 means "excluded from every fiscal-year bucket".
func FiscalYear(d Date) int {
	if d.IsZero() {
		return 0
	}
	if d.Month() >= FiscalYearStartMonth {
		return d.Year() + 1
	}
	return d.Year()
}

// FiscalYearOf parses a raw date string and returns its fiscal year.
// Empty or unparseable input yields 0.
func FiscalYearOf(raw string) int {
	d, ok := ParseDate(raw)
	if !ok {
		return 0
	}
	return FiscalYear(d)
}

// FiscalPeriod returns the date range of fiscal year fy.
func FiscalPeriod(fy int) Period {
	start := NewDate(fy-1, FiscalYearStartMonth, 1)
	return Period{Start: start, End: start.AddYears(1).AddDays(-1)}
}

// FiscalPeriodFor returns the fiscal period containing d.
func FiscalPeriodFor(d Date) Period {
	return FiscalPeriod(FiscalYear(d))
}
