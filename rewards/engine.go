package rewards

import (
	"fmt"

	"github.com/warp/clubportal/generic"
	"github.com/warp/clubportal/worklog"
)

// =============================================================================
// COMPUTE - Pure reward calculation
// =============================================================================

// Compute derives the reward summary for the fiscal year containing today.
// It never fails: malformed dates and hours have already degraded to zero
// values and simply don't count.
func (p Policy) Compute(logs []worklog.LogEntry, membershipType string, today generic.Date) Summary {
	fy := generic.FiscalYear(today)
	s := Summary{FiscalYear: fy, Period: generic.FiscalPeriod(fy)}

	for _, l := range logs {
		if !Credited(l, fy) {
			continue
		}
		s.TotalHours = s.TotalHours.Add(l.Hours)
		s.CountedLogs++
	}

	s.Vouchers = p.Vouchers(s.TotalHours)
	s.DuesStatus, s.DuesAmount = p.dues(Classify(membershipType), s.TotalHours)
	return s
}

// Credited reports whether a log counts toward fiscal year fy.
func Credited(l worklog.LogEntry, fy int) bool {
	own := l.FiscalYear()
	if own == 0 || fy == 0 {
		return false
	}
	return own == fy || (l.ApplyToNextYear && own == fy-1)
}

func (p Policy) dues(class Class, total generic.Hours) (string, *int) {
	switch class {
	case ClassLifetime:
		return "$0 (Lifetime)", intPtr(0)
	case ClassAssociate:
		return "$15 (Associate)", intPtr(15)
	case ClassApplicant:
		if total.GreaterOrEqual(generic.HoursFromInt(p.ApplicantMinHours)) {
			return "Can Be Voted In", nil
		}
		return "Not Eligible", nil
	}

	base, ok := p.baseDues(total)
	if !ok {
		if class == ClassHousehold {
			return fmt.Sprintf("Standard + $%d", p.HouseholdSurcharge), nil
		}
		return "Standard", nil
	}
	if class == ClassHousehold {
		base += p.HouseholdSurcharge
	}
	return fmt.Sprintf("$%d Dues", base), intPtr(base)
}

func intPtr(v int) *int { return &v }

// =============================================================================
// ENGINE - Compute bound to a clock
// =============================================================================

// Engine evaluates rewards as of the clock's today.
type Engine struct {
	Policy Policy
	Clock  generic.Clock
}

func NewEngine(clock generic.Clock) *Engine {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	return &Engine{Policy: DefaultPolicy(), Clock: clock}
}

// ComputeRewards returns the summary for the current fiscal year.
func (e *Engine) ComputeRewards(logs []worklog.LogEntry, membershipType string) Summary {
	return e.Policy.Compute(logs, membershipType, generic.Today(e.Clock))
}
