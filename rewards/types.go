/*
Package rewards computes a member's fiscal-year hours, vouchers and dues.

PURPOSE:
  Volunteer hours earn rewards once per fiscal year. The engine looks at a
  member's logs, keeps those credited to the current fiscal year, and
  derives two things from the total: how many vouchers were earned and
  what the member owes in dues next year.

CREDITED LOGS:
  A log counts toward fiscal year FY when
    - its own date falls in FY, or
    - it is flagged to roll over and its date falls in FY-1.
  Undated logs (fiscal year 0) never count. Rollover moves a log forward
  by exactly one year, never more.

VOUCHERS:
  One voucher per full 25 hours, but only from 50 hours on.
  49 hours earn nothing; 55 hours earn 2.

DUES:
  Membership type decides which rule applies; first match wins:
    lifetime   -> $0 (Lifetime)
    associate  -> $15 (Associate)
    applicant  -> Can Be Voted In (10+ hours) / Not Eligible
    otherwise  -> tier by hours, +$10 for household/family memberships

SEE ALSO:
  - policies.go: The tier table
  - engine.go:   Compute and the clock-bound Engine
*/
package rewards

import (
	"github.com/warp/clubportal/generic"
)

// =============================================================================
// SUMMARY
// =============================================================================

// Summary is the reward picture of one member for one fiscal year.
type Summary struct {
	FiscalYear  int            `json:"fiscalYear"`
	Period      generic.Period `json:"-"`
	TotalHours  generic.Hours  `json:"totalHours"`
	Vouchers    int            `json:"vouchers"`
	DuesStatus  string         `json:"duesStatus"`
	DuesAmount  *int           `json:"duesAmount,omitempty"`
	CountedLogs int            `json:"countedLogs"`
}

// =============================================================================
// MEMBERSHIP CLASS
// =============================================================================

// Class is the dues rule a membership type falls under.
type Class int

const (
	ClassStandard Class = iota
	ClassHousehold
	ClassLifetime
	ClassAssociate
	ClassApplicant
)

func (c Class) String() string {
	switch c {
	case ClassHousehold:
		return "household"
	case ClassLifetime:
		return "lifetime"
	case ClassAssociate:
		return "associate"
	case ClassApplicant:
		return "applicant"
	}
	return "standard"
}
