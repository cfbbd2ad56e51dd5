/*
Package members holds member profiles and folds legacy records into
registered accounts.

PURPOSE:
  A member is either registered (has a sign-in identity, stored under
  "members/{uid}") or legacy (imported from the old spreadsheets, stored
  under "legacy_members/{id}" until claimed). The first sign-in with a
  matching email merges the legacy record into the registered one.

SEE ALSO:
  - repository.go: Profile reads and updates
  - merge.go:      Legacy-to-registered merge
  - importer/:     Creates legacy and backup records
*/
package members

import (
	"strings"

	"github.com/warp/clubportal/generic"
	"github.com/warp/clubportal/permission"
	"github.com/warp/clubportal/worklog"
)

// Collections.
const (
	MembersCollection = "members"
	LegacyCollection  = worklog.LegacyMembers
)

func MemberRef(uid string) generic.DocRef {
	return generic.Collection(MembersCollection).Doc(uid)
}

func LegacyRef(id string) generic.DocRef {
	return generic.Collection(LegacyCollection).Doc(id)
}

// =============================================================================
// MEMBERSHIP TYPE
// =============================================================================

type MembershipType string

const (
	Regular   MembershipType = "Regular"
	Household MembershipType = "Household"
	Associate MembershipType = "Associate"
	Lifetime  MembershipType = "Lifetime"
	Junior    MembershipType = "Junior"
	Applicant MembershipType = "Applicant"
)

// ParseMembershipType normalizes external text. Empty input is Regular.
// Unrecognized text also becomes Regular, with ok false so callers can
// report it.
func ParseMembershipType(s string) (MembershipType, bool) {
	t := strings.ToLower(strings.TrimSpace(s))
	switch {
	case t == "" || t == "regular":
		return Regular, true
	case strings.Contains(t, "lifetime"):
		return Lifetime, true
	case strings.Contains(t, "associate"):
		return Associate, true
	case strings.Contains(t, "applicant"):
		return Applicant, true
	case strings.Contains(t, "household"), strings.Contains(t, "family"):
		return Household, true
	case strings.Contains(t, "junior"):
		return Junior, true
	}
	return Regular, false
}

// =============================================================================
// ACTIVITIES
// =============================================================================

// ActivityNames are the activity committees, in export column order.
var ActivityNames = []string{"Agility", "Obedience", "Rally", "Flyball", "Freestyle", "Conformation", "Earthdog"}

// ActivityKey is the stored key for a committee name.
func ActivityKey(name string) string { return strings.ToLower(name) }

// =============================================================================
// MEMBER
// =============================================================================

type Provenance string

const (
	Registered   Provenance = "registered"
	LegacyRecord Provenance = "legacy"
)

// Member is a stored profile. Provenance is derived from the collection a
// record lives in, it is never stored.
type Member struct {
	ID         string     `json:"-"`
	Provenance Provenance `json:"-"`

	UID            string          `json:"uid,omitempty"`
	Email          string          `json:"email"`
	FirstName      string          `json:"firstName"`
	LastName       string          `json:"lastName"`
	FirstName2     string          `json:"firstName2,omitempty"`
	LastName2      string          `json:"lastName2,omitempty"`
	MembershipType MembershipType  `json:"membershipType"`
	Role           permission.Role `json:"role"`

	Address   string `json:"address,omitempty"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	Zip       string `json:"zip,omitempty"`
	Phone     string `json:"phone,omitempty"`
	CellPhone string `json:"cellPhone,omitempty"`
	WorkPhone string `json:"workPhone,omitempty"`

	Breeds     string          `json:"breeds,omitempty"`
	Occupation string          `json:"occupation,omitempty"`
	Interests  string          `json:"interests,omitempty"`
	JoinedDate string          `json:"joinedDate,omitempty"`
	Activities map[string]bool `json:"activities,omitempty"`

	LegacyKey *int  `json:"legacyKey,omitempty"`
	IsActive  *bool `json:"isActive,omitempty"`
}

// Owner returns the log owner for this member.
func (m Member) Owner() worklog.Owner {
	if m.Provenance == LegacyRecord {
		return worklog.Legacy(m.ID)
	}
	return worklog.Active(m.ID)
}

// DisplayName renders "Last, First & First2".
func (m Member) DisplayName() string {
	name := m.LastName + ", " + m.FirstName
	if m.FirstName2 != "" {
		name += " & " + m.FirstName2
	}
	return name
}

// PermissionUser is the identity permission checks see.
func (m Member) PermissionUser() *permission.User {
	return &permission.User{ID: m.ID, Role: m.Role, LastName: m.LastName}
}

// Decode reads a member document.
func Decode(doc generic.Document) (Member, error) {
	var m Member
	if err := doc.Decode(&m); err != nil {
		return Member{}, err
	}
	m.ID = doc.Ref.ID
	m.Provenance = Registered
	if doc.Ref.Collection.Path == LegacyCollection {
		m.Provenance = LegacyRecord
	}
	m.Role = permission.ParseRole(string(m.Role))
	if m.MembershipType == "" {
		m.MembershipType = Regular
	}
	return m, nil
}

// NormalizeEmail is the form emails are matched in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
