package rewards

import (
	"strings"

	"github.com/warp/clubportal/generic"
)

// =============================================================================
// POLICY - Thresholds and the dues tier table
// =============================================================================

// Tier sets the dues owed once a member reaches MinHours.
type Tier struct {
	MinHours int
	Dues     int
}

// Policy holds every number the reward calculation uses.
type Policy struct {
	VoucherThreshold   int    // hours before any voucher is earned
	HoursPerVoucher    int    // hours per voucher once past the threshold
	ApplicantMinHours  int    // hours an applicant needs to be voted in
	HouseholdSurcharge int    // added to the tier for household memberships
	Tiers              []Tier // highest MinHours first
}

// DefaultPolicy is the club's current schedule.
func DefaultPolicy() Policy {
	return Policy{
		VoucherThreshold:   50,
		HoursPerVoucher:    25,
		ApplicantMinHours:  10,
		HouseholdSurcharge: 10,
		Tiers: []Tier{
			{MinHours: 50, Dues: 15},
			{MinHours: 40, Dues: 30},
			{MinHours: 30, Dues: 40},
			{MinHours: 20, Dues: 50},
		},
	}
}

// Classify maps a free-text membership type to its dues rule. Matching is
// case-insensitive substring matching, in precedence order.
func Classify(membershipType string) Class {
	t := strings.ToLower(membershipType)
	switch {
	case strings.Contains(t, "lifetime"):
		return ClassLifetime
	case strings.Contains(t, "associate"):
		return ClassAssociate
	case strings.Contains(t, "applicant"):
		return ClassApplicant
	case strings.Contains(t, "family"), strings.Contains(t, "household"):
		return ClassHousehold
	}
	return ClassStandard
}

// Vouchers returns the vouchers earned by total hours.
func (p Policy) Vouchers(total generic.Hours) int {
	if p.HoursPerVoucher <= 0 || !total.GreaterOrEqual(generic.HoursFromInt(p.VoucherThreshold)) {
		return 0
	}
	return int(total.Value.Div(generic.HoursFromInt(p.HoursPerVoucher).Value).Floor().IntPart())
}

// baseDues returns the tier reached by total hours, if any.
func (p Policy) baseDues(total generic.Hours) (int, bool) {
	for _, t := range p.Tiers {
		if total.GreaterOrEqual(generic.HoursFromInt(t.MinHours)) {
			return t.Dues, true
		}
	}
	return 0, false
}
