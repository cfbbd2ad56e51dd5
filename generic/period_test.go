package generic_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/warp/clubportal/generic"
)

func TestFiscalYear_MonthBoundaries(t *testing.T) {
	// GIVEN: Every month of 2025
	// THEN: Jan-Sep map to 2025, Oct-Dec map to 2026
	for m := time.January; m <= time.December; m++ {
		want := 2025
		if m >= time.October {
			want = 2026
		}
		assert.Equal(t, want, generic.FiscalYear(generic.NewDate(2025, m, 15)), "month %s", m)
	}
}

func TestFiscalYear_EdgeDays(t *testing.T) {
	assert.Equal(t, 2025, generic.FiscalYearOf("2025-09-30"))
	assert.Equal(t, 2026, generic.FiscalYearOf("2025-10-01"))
	assert.Equal(t, 2026, generic.FiscalYearOf("2025-12-31"))
	assert.Equal(t, 2026, generic.FiscalYearOf("2026-01-01"))
}

func TestFiscalYear_Unparseable(t *testing.T) {
	assert.Equal(t, 0, generic.FiscalYearOf(""))
	assert.Equal(t, 0, generic.FiscalYearOf("   "))
	assert.Equal(t, 0, generic.FiscalYearOf("not-a-date"))
	assert.Equal(t, 0, generic.FiscalYear(generic.Date{}))
}

func TestFiscalYear_HistoricalEncodings(t *testing.T) {
	tests := map[string]int{
		"2025-11-15":               2026,
		"11/15/2025":               2026,
		"2025/11/15":               2026,
		"2025-11-15T00:00:00.000Z": 2026,
		"2025-06-01T14:30:00Z":     2025,
		"Nov 15, 2025":             2026,
		"June 1, 2025":             2025,
		"6/1/2025 14:30":           2025,
	}
	for raw, want := range tests {
		assert.Equal(t, want, generic.FiscalYearOf(raw), raw)
	}
}

func TestFiscalPeriod(t *testing.T) {
	p := generic.FiscalPeriod(2026)
	assert.Equal(t, "2025-10-01", p.Start.String())
	assert.Equal(t, "2026-09-30", p.End.String())

	assert.True(t, p.Contains(generic.NewDate(2025, time.October, 1)))
	assert.True(t, p.Contains(generic.NewDate(2026, time.September, 30)))
	assert.False(t, p.Contains(generic.NewDate(2026, time.October, 1)))

	assert.Equal(t, p, generic.FiscalPeriodFor(generic.NewDate(2026, time.February, 2)))
}
