/*
Package worklog records volunteer work and reconciles every create and edit.

PURPOSE:
  A LogEntry is one unit of volunteer work owned by a member. Active
  members' logs live in the top-level "logs" collection; logs of legacy
  (imported, unclaimed) members live under their legacy record until the
  member signs in and the records are merged.

KEY CONCEPTS IN THIS FILE (types.go):
  - Status:       approved | pending, nothing else
  - Owner:        Who a log belongs to, and where it is stored
  - LogEntry:     The stored log document
  - HistoryEntry: Pre-edit snapshot, stored insert-only under the log

SEE ALSO:
  - reconcile.go: Daily cap and approval rules
  - service.go:   Log lifecycle against the document store
  - rewards/:     Consumes LogEntry to compute dues and vouchers
*/
package worklog

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/warp/clubportal/generic"
)

// Collection layout.
const (
	ActiveLogs    = "logs"
	LegacyMembers = "legacy_members"
	LegacyLogs    = "legacyLogs"
	History       = "history"

	// LegacyPrefix marks a legacy member ID wherever active and legacy
	// owners share one identifier space (selection lists, URLs).
	LegacyPrefix = "LEGACY_"
)

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusApproved Status = "approved"
	StatusPending  Status = "pending"
)

// ParseStatus maps external text to a Status. Empty means approved, the
// creation default. Unknown values are rejected.
func ParseStatus(s string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "approved":
		return StatusApproved, true
	case "pending":
		return StatusPending, true
	}
	return "", false
}

// UnmarshalJSON keeps stored documents readable: empty is approved, any
// unrecognized value needs review and becomes pending.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(bytes.TrimSpace(data), &raw); err != nil {
		*s = StatusApproved
		return nil
	}
	if st, ok := ParseStatus(raw); ok {
		*s = st
		return nil
	}
	*s = StatusPending
	return nil
}

// =============================================================================
// OWNER
// =============================================================================

// Owner identifies whose logs are addressed and where they are stored.
type Owner struct {
	MemberID string
	Legacy   bool
}

func Active(memberID string) Owner { return Owner{MemberID: memberID} }
func Legacy(legacyID string) Owner { return Owner{MemberID: legacyID, Legacy: true} }

// ParseOwner reads "LEGACY_<id>" as a legacy owner, anything else as active.
func ParseOwner(s string) Owner {
	if id, ok := strings.CutPrefix(s, LegacyPrefix); ok {
		return Legacy(id)
	}
	return Active(s)
}

func (o Owner) String() string {
	if o.Legacy {
		return LegacyPrefix + o.MemberID
	}
	return o.MemberID
}

// Logs is the collection holding this owner's logs.
func (o Owner) Logs() generic.CollectionRef {
	if o.Legacy {
		return generic.Collection(LegacyMembers).Doc(o.MemberID).Sub(LegacyLogs)
	}
	return generic.Collection(ActiveLogs)
}

// LogRef addresses one of this owner's logs.
func (o Owner) LogRef(id string) generic.DocRef {
	return o.Logs().Doc(id)
}

func (o Owner) filters() []generic.Filter {
	if o.Legacy {
		return nil
	}
	return []generic.Filter{generic.Where("memberId", o.MemberID)}
}

// owns reports whether e belongs to o. Legacy logs are owned by their parent.
func (o Owner) owns(e LogEntry) bool {
	return o.Legacy || e.MemberID == o.MemberID
}

// =============================================================================
// LOG ENTRY
// =============================================================================

// LogEntry is one unit of volunteer work.
type LogEntry struct {
	ID              string        `json:"-"`
	MemberID        string        `json:"memberId,omitempty"`
	Date            generic.Date  `json:"date"`
	Activity        string        `json:"activity"`
	Hours           generic.Hours `json:"hours"`
	Status          Status        `json:"status"`
	ApplyToNextYear bool          `json:"applyToNextYear"`
	SourceSheetID   string        `json:"sourceSheetId,omitempty"`
	SubmittedAt     *time.Time    `json:"submittedAt,omitempty"`
	EditedAt        *time.Time    `json:"editedAt,omitempty"`
	ImportedAt      *time.Time    `json:"importedAt,omitempty"`
}

// FiscalYear is the fiscal year of the entry's own date, 0 if undated.
func (e LogEntry) FiscalYear() int { return generic.FiscalYear(e.Date) }

// Snapshot captures the editable state.
func (e LogEntry) Snapshot() Snapshot {
	return Snapshot{Date: e.Date, Activity: e.Activity, Hours: e.Hours}
}

// Decode reads a stored log document.
func Decode(doc generic.Document) (LogEntry, error) {
	var e LogEntry
	if err := doc.Decode(&e); err != nil {
		return LogEntry{}, err
	}
	e.ID = doc.Ref.ID
	if e.Status == "" {
		e.Status = StatusApproved
	}
	return e, nil
}

// DecodeAll reads documents, skipping none: a malformed field degrades to
// its zero value instead of failing.
func DecodeAll(docs []generic.Document) ([]LogEntry, error) {
	out := make([]LogEntry, 0, len(docs))
	for _, d := range docs {
		e, err := Decode(d)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// =============================================================================
// HISTORY
// =============================================================================

// Snapshot is the (date, activity, hours) state of a log at one point.
type Snapshot struct {
	Date     generic.Date  `json:"date"`
	Activity string        `json:"activity"`
	Hours    generic.Hours `json:"hours"`
}

// HistoryEntry records the state a log had immediately before an edit.
type HistoryEntry struct {
	Seq       int       `json:"seq"`
	ChangedAt time.Time `json:"changedAt"`
	ChangedBy string    `json:"changedBy"`
	OldData   Snapshot  `json:"oldData"`
}
