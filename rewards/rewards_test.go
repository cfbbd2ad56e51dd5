package rewards_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/warp/clubportal/generic"
	"github.com/warp/clubportal/rewards"
	"github.com/warp/clubportal/worklog"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// today in fiscal year 2026
var today = generic.NewDate(2026, time.March, 15)

func logAt(date string, hours float64) worklog.LogEntry {
	return worklog.LogEntry{Date: generic.MustParseDate(date), Hours: generic.NewHours(hours), Status: worklog.StatusApproved}
}

func rollover(date string, hours float64) worklog.LogEntry {
	l := logAt(date, hours)
	l.ApplyToNextYear = true
	return l
}

func hoursTotal(h float64) []worklog.LogEntry {
	return []worklog.LogEntry{logAt("2026-01-10", h)}
}

func compute(logs []worklog.LogEntry, membership string) rewards.Summary {
	return rewards.DefaultPolicy().Compute(logs, membership, today)
}

// =============================================================================
// RELEVANT SET
// =============================================================================

func TestCompute_RolloverFromPriorYearCounts(t *testing.T) {
	// GIVEN: A FY2026 log and a FY2025 log flagged for rollover
	// WHEN: Computed for a Regular member in FY2026
	// THEN: Both count: 55 hours, 2 vouchers, $15 dues

	s := compute([]worklog.LogEntry{
		logAt("2025-11-15", 30),
		rollover("2025-06-01", 25),
	}, "Regular")

	assert.Equal(t, 2026, s.FiscalYear)
	assert.True(t, s.TotalHours.Equal(generic.NewHours(55)))
	assert.Equal(t, 2, s.Vouchers)
	assert.Equal(t, "$15 Dues", s.DuesStatus)
	assert.Equal(t, 15, *s.DuesAmount)
	assert.Equal(t, 2, s.CountedLogs)
}

func TestCompute_RolloverTwoYearsBackIgnored(t *testing.T) {
	s := compute([]worklog.LogEntry{rollover("2024-06-01", 40)}, "Regular")
	assert.True(t, s.TotalHours.IsZero())
}

func TestCompute_PriorYearWithoutRolloverIgnored(t *testing.T) {
	s := compute([]worklog.LogEntry{logAt("2025-09-30", 40)}, "Regular")
	assert.True(t, s.TotalHours.IsZero())
}

func TestCompute_UndatedAndBadHoursExcluded(t *testing.T) {
	s := compute([]worklog.LogEntry{
		{Date: generic.Date{}, Hours: generic.NewHours(10)},
		{Date: generic.NewDate(2026, 2, 1), Hours: generic.ParseHours("lots")},
		logAt("2026-02-02", 3),
	}, "Regular")

	assert.True(t, s.TotalHours.Equal(generic.NewHours(3)))
	assert.Equal(t, "Standard", s.DuesStatus)
	assert.Nil(t, s.DuesAmount)
}

func TestCompute_Idempotent(t *testing.T) {
	logs := []worklog.LogEntry{logAt("2025-10-01", 22.5), rollover("2025-01-01", 7)}
	assert.Equal(t, compute(logs, "Household"), compute(logs, "Household"))
}

// =============================================================================
// VOUCHERS
// =============================================================================

func TestVouchers_ThresholdGate(t *testing.T) {
	tests := []struct {
		hours    float64
		vouchers int
	}{
		{0, 0},
		{25, 0},
		{49, 0},
		{49.99, 0},
		{50, 2},
		{74.5, 2},
		{75, 3},
		{100, 4},
	}
	for _, tt := range tests {
		s := compute(hoursTotal(tt.hours), "Regular")
		assert.Equal(t, tt.vouchers, s.Vouchers, "hours=%v", tt.hours)
	}
}

// =============================================================================
// DUES
// =============================================================================

func TestDues_RegularTiers(t *testing.T) {
	tests := []struct {
		hours  float64
		status string
	}{
		{55, "$15 Dues"},
		{50, "$15 Dues"},
		{45, "$30 Dues"},
		{40, "$30 Dues"},
		{35, "$40 Dues"},
		{20, "$50 Dues"},
		{19.5, "Standard"},
		{0, "Standard"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, compute(hoursTotal(tt.hours), "Regular").DuesStatus, "hours=%v", tt.hours)
	}
}

func TestDues_HouseholdSurcharge(t *testing.T) {
	assert.Equal(t, "$50 Dues", compute(hoursTotal(35), "Household").DuesStatus)
	assert.Equal(t, "$25 Dues", compute(hoursTotal(50), "Household/Family").DuesStatus)
	assert.Equal(t, "$60 Dues", compute(hoursTotal(20), "family").DuesStatus)
	assert.Equal(t, "Standard + $10", compute(hoursTotal(5), "Household").DuesStatus)
}

func TestDues_FixedClasses(t *testing.T) {
	assert.Equal(t, "$0 (Lifetime)", compute(hoursTotal(0), "Lifetime").DuesStatus)
	assert.Equal(t, "$15 (Associate)", compute(hoursTotal(60), "associate member").DuesStatus)
	assert.Equal(t, 0, *compute(hoursTotal(0), "LIFETIME").DuesAmount)
}

func TestDues_Applicant(t *testing.T) {
	assert.Equal(t, "Not Eligible", compute(hoursTotal(9), "Applicant").DuesStatus)
	assert.Equal(t, "Can Be Voted In", compute(hoursTotal(10), "Applicant").DuesStatus)
	assert.Nil(t, compute(hoursTotal(10), "Applicant").DuesAmount)
}

func TestDues_FirstMatchWins(t *testing.T) {
	// Applicant and household never combine: applicant is checked first
	assert.Equal(t, "Can Be Voted In", compute(hoursTotal(35), "Household Applicant").DuesStatus)
	// Lifetime outranks associate
	assert.Equal(t, "$0 (Lifetime)", compute(hoursTotal(0), "Lifetime Associate").DuesStatus)
}

func TestDues_UnspecifiedMembershipIsStandard(t *testing.T) {
	assert.Equal(t, "$40 Dues", compute(hoursTotal(30), "").DuesStatus)
	assert.Equal(t, "$40 Dues", compute(hoursTotal(30), "Junior").DuesStatus)
}

// =============================================================================
// ENGINE
// =============================================================================

func TestEngine_UsesClock(t *testing.T) {
	// October 1 starts fiscal year 2026
	e := rewards.NewEngine(generic.FixedClock{At: time.Date(2025, time.October, 1, 9, 0, 0, 0, time.UTC)})

	s := e.ComputeRewards([]worklog.LogEntry{logAt("2025-10-01", 12), logAt("2025-09-30", 40)}, "Regular")

	assert.Equal(t, 2026, s.FiscalYear)
	assert.True(t, s.TotalHours.Equal(generic.NewHours(12)))
	assert.Equal(t, "2025-10-01", s.Period.Start.String())
	assert.Equal(t, "2026-09-30", s.Period.End.String())
}
